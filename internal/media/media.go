// Package media stores notification image attachments in object storage and
// removes them again once recipients have had time to fetch them.
package media

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
)

var (
	// ErrInvalidConfig is returned when a store is constructed without required settings.
	ErrInvalidConfig = errors.New("media: invalid configuration")
	// ErrEmpty is returned when Put is called with no data.
	ErrEmpty = errors.New("media: empty upload")
	// ErrNotImage is returned when uploaded bytes are not a recognized image type.
	ErrNotImage = errors.New("media: content is not an image")
	// ErrTooLarge is returned when an upload exceeds the configured size limit.
	ErrTooLarge = errors.New("media: upload too large")
	// ErrAccessDenied is returned when the backend rejects the credentials.
	ErrAccessDenied = errors.New("media: access denied")
	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("media: bucket not found")
	// ErrUnavailable is returned for throttling and transient backend failures.
	ErrUnavailable = errors.New("media: backend unavailable")
)

// Object describes a stored blob.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int
}

// Store uploads and purges image blobs.
type Store interface {
	// Put stores data and returns its public location.
	Put(ctx context.Context, data []byte) (*Object, error)
	// Purge deletes the object identified by key. Purging a missing object is not an error.
	Purge(ctx context.Context, key string) error
}

// sniffImage returns the content type and file extension for data, or
// ErrNotImage when it is not an image.
func sniffImage(data []byte) (string, string, error) {
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", "", ErrNotImage
	}
	var ext string
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	default:
		ext = ".img"
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return contentType, ext, nil
}
