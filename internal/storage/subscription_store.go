package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Subscription is a registered push recipient. Payload holds the browser's
// PushSubscription JSON (endpoint and encryption keys) and is never modified
// once stored.
type Subscription struct {
	ID          string          `json:"id"`
	Endpoint    string          `json:"endpoint"`
	Payload     json.RawMessage `json:"payload"`
	DisplayName string          `json:"display_name"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SubscriptionStore persists push subscriptions keyed by endpoint.
type SubscriptionStore interface {
	// Upsert inserts sub, atomically replacing any record with the same endpoint.
	Upsert(ctx context.Context, sub *Subscription) error
	// DeleteByEndpoint removes the record for endpoint. Missing records are not an error.
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	// List returns every subscription ordered by creation time.
	List(ctx context.Context) ([]Subscription, error)
	// Get returns the subscription with the given id, or nil if none exists.
	Get(ctx context.Context, id string) (*Subscription, error)
}
