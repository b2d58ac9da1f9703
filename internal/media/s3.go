package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

const defaultMaxSize = 5 << 20

// S3Client is the subset of the S3 API used by S3Store.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds settings for S3 and S3-compatible services.
type S3Config struct {
	Bucket         string
	Region         string
	AccessKeyID    string
	SecretKey      string
	Endpoint       string // optional, for MinIO, R2 and similar
	PublicURL      string // base URL recipients fetch images from
	Prefix         string // key prefix, defaults to "notifications/"
	ForcePathStyle bool
	MaxSize        int
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithS3Client sets a pre-configured client. Used by tests.
func WithS3Client(client S3Client) S3Option {
	return func(s *S3Store) { s.client = client }
}

// WithUploadTimeout bounds each PutObject call.
func WithUploadTimeout(d time.Duration) S3Option {
	return func(s *S3Store) { s.uploadTimeout = d }
}

// S3Store implements Store on Amazon S3. It is safe for concurrent use.
type S3Store struct {
	client        S3Client
	bucket        string
	baseURL       string
	prefix        string
	maxSize       int
	uploadTimeout time.Duration
}

// NewS3Store creates an S3Store. Without WithS3Client the AWS default
// credential chain is used, overridden by static keys when both are set.
func NewS3Store(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidConfig
	}

	s := &S3Store{
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		maxSize: cfg.MaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prefix == "" {
		s.prefix = "notifications/"
	}
	if s.maxSize <= 0 {
		s.maxSize = defaultMaxSize
	}

	if s.client == nil {
		awsOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOpts = append(awsOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return nil, fmt.Errorf("%w: loading aws config: %v", ErrInvalidConfig, err)
		}
		s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	s.baseURL = cfg.PublicURL
	if s.baseURL == "" {
		if cfg.Endpoint != "" {
			s.baseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
		} else {
			s.baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	s.baseURL = strings.TrimSuffix(s.baseURL, "/") + "/"

	return s, nil
}

// Put uploads an image under a random key and returns its public URL.
func (s *S3Store) Put(ctx context.Context, data []byte) (*Object, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) > s.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), s.maxSize)
	}
	contentType, ext, err := sniffImage(data)
	if err != nil {
		return nil, err
	}

	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	key := s.prefix + uuid.NewString() + ext
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=300"),
	})
	if err != nil {
		return nil, classifyS3Error(err, "put")
	}

	return &Object{
		Key:         key,
		URL:         s.baseURL + key,
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

// Purge deletes the object at key.
func (s *S3Store) Purge(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil
		}
		return classifyS3Error(err, "delete")
	}
	return nil
}

// classifyS3Error maps S3 failures onto the package's sentinel errors.
func classifyS3Error(err error, op string) error {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, op)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", ErrAccessDenied, op)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrBucketNotFound, op)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "InternalError":
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
		}
	}
	return fmt.Errorf("s3 %s: %w", op, err)
}
