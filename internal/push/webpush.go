package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/shaharia-lab/pushcast/internal/storage"
)

// VAPIDConfig identifies this application server to push services.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	// Subject is a mailto: or https: contact URI.
	Subject string
}

// WebPush implements Transport using the Web Push protocol with VAPID.
type WebPush struct {
	vapid  VAPIDConfig
	client webpush.HTTPClient
}

// WebPushOption configures a WebPush transport.
type WebPushOption func(*WebPush)

// WithHTTPClient sets the HTTP client used to reach push services.
func WithHTTPClient(c webpush.HTTPClient) WebPushOption {
	return func(w *WebPush) { w.client = c }
}

// NewWebPush returns a WebPush transport. Both VAPID keys are required.
func NewWebPush(cfg VAPIDConfig, opts ...WebPushOption) (*WebPush, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, errors.New("push: VAPID public and private keys are required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "mailto:admin@localhost"
	}
	w := &WebPush{vapid: cfg}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// GenerateVAPIDKeys returns a new base64url encoded VAPID key pair.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}

// Deliver encrypts payload for sub and posts it to the subscription's push service.
func (w *WebPush) Deliver(ctx context.Context, sub storage.Subscription, payload []byte, opts Options) Outcome {
	target, err := decodeSubscription(sub)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.vapid.Subject,
		VAPIDPublicKey:  w.vapid.PublicKey,
		VAPIDPrivateKey: w.vapid.PrivateKey,
		TTL:             int(opts.TTL.Seconds()),
		Urgency:         webpush.Urgency(opts.Urgency),
		Topic:           opts.Topic,
	})
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("sending to push service: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	status := Classify(resp.StatusCode)
	if status == StatusDelivered {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Outcome{Status: status, Code: resp.StatusCode}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return Outcome{
		Status: status,
		Code:   resp.StatusCode,
		Err: fmt.Errorf("push service responded %d %s: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body))),
	}
}

// decodeSubscription unpacks the stored PushSubscription JSON. The record's
// endpoint wins over the one embedded in the payload.
func decodeSubscription(sub storage.Subscription) (*webpush.Subscription, error) {
	var s webpush.Subscription
	if len(sub.Payload) > 0 {
		if err := json.Unmarshal(sub.Payload, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
		}
	}
	if sub.Endpoint != "" {
		s.Endpoint = sub.Endpoint
	}
	if s.Endpoint == "" || s.Keys.P256dh == "" || s.Keys.Auth == "" {
		return nil, fmt.Errorf("%w: endpoint and keys are required", ErrInvalidSubscription)
	}
	return &s, nil
}
