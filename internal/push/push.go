// Package push delivers encrypted payloads to browser push services.
package push

import (
	"context"
	"errors"
	"time"

	"github.com/shaharia-lab/pushcast/internal/storage"
)

// ErrInvalidSubscription is returned when a stored subscription cannot be
// decoded into a deliverable address.
var ErrInvalidSubscription = errors.New("push: invalid subscription")

// Status classifies the result of a single delivery.
type Status int

const (
	// StatusDelivered means the push service accepted the message.
	StatusDelivered Status = iota
	// StatusGone means the endpoint is permanently invalid and should be pruned.
	StatusGone
	// StatusFailed covers every other failure. The subscription is kept.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusGone:
		return "gone"
	default:
		return "failed"
	}
}

// Outcome is the result of delivering to one subscription.
type Outcome struct {
	Status Status
	// Code is the push service HTTP status, zero when no response was received.
	Code int
	Err  error
}

// Urgency is the Web Push urgency hint.
type Urgency string

// Urgency values defined by RFC 8030.
const (
	UrgencyVeryLow Urgency = "very-low"
	UrgencyLow     Urgency = "low"
	UrgencyNormal  Urgency = "normal"
	UrgencyHigh    Urgency = "high"
)

// Options are per-message delivery hints.
type Options struct {
	TTL     time.Duration
	Urgency Urgency
	Topic   string
}

// Transport delivers a payload to one subscription. Implementations never
// panic on bad input and always return an Outcome.
type Transport interface {
	Deliver(ctx context.Context, sub storage.Subscription, payload []byte, opts Options) Outcome
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, sub storage.Subscription, payload []byte, opts Options) Outcome

// Deliver calls f.
func (f TransportFunc) Deliver(ctx context.Context, sub storage.Subscription, payload []byte, opts Options) Outcome {
	return f(ctx, sub, payload, opts)
}

// Classify maps a push service HTTP status onto a Status. 404 and 410 mean
// the subscription has expired or been revoked.
func Classify(code int) Status {
	switch {
	case code >= 200 && code < 300:
		return StatusDelivered
	case code == 404 || code == 410:
		return StatusGone
	default:
		return StatusFailed
	}
}
