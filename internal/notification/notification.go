// Package notification composes push notifications and fans them out to
// every targeted subscription, pruning endpoints the push service reports
// as gone.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/shaharia-lab/pushcast/internal/storage"
)

// TargetAll addresses every registered subscription.
const TargetAll = "all"

// Request is a notification to compose and send. It is never persisted.
type Request struct {
	SenderName string
	Title      string
	Body       string
	// Image is an optional raw image attached to the notification.
	Image []byte
	// Target is TargetAll (or empty) for a broadcast, otherwise a subscription ID.
	Target      string
	ActionStyle string
}

// Payload is the JSON document delivered to every recipient's service worker.
type Payload struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Image   string   `json:"image,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// Report summarizes one fan-out.
type Report struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	// Gone counts endpoints the push service reported as permanently invalid.
	Gone int `json:"gone"`
	// Pruned counts gone endpoints that were removed from the store.
	Pruned        int           `json:"pruned"`
	Failed        int           `json:"failed"`
	NoRecipients  bool          `json:"no_recipients"`
	ImageAttached bool          `json:"image_attached"`
	Duration      time.Duration `json:"-"`
}

// Summary returns a one-line human readable description of the report.
func (r *Report) Summary() string {
	if r.NoRecipients {
		return "No recipients found."
	}
	return fmt.Sprintf("Notification sent to %d of %d recipients.", r.Delivered, r.Attempted)
}

// RecipientStore resolves targets to subscriptions and removes dead ones.
type RecipientStore interface {
	ResolveTargets(ctx context.Context, target string) ([]storage.Subscription, error)
	RemoveByEndpoint(ctx context.Context, endpoint string) error
}

// Deferrer runs a function once after a delay, independently of the caller.
type Deferrer interface {
	After(delay time.Duration, name string, fn func()) error
}

// InputError reports a structurally invalid Request.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
