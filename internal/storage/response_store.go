package storage

import (
	"context"
	"time"
)

// ActionResponse records a notification action click reported by a client.
type ActionResponse struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"`
	ReceivedAt time.Time `json:"received_at"`
}

// ResponseStore defines the interface for persisting action responses.
type ResponseStore interface {
	// LogResponse records an action response.
	LogResponse(ctx context.Context, resp ActionResponse) error
	// ListResponses returns the most recent responses, up to limit.
	ListResponses(ctx context.Context, limit int) ([]ActionResponse, error)
}
