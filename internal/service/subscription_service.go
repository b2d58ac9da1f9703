package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/shaharia-lab/pushcast/internal/notification"
	"github.com/shaharia-lab/pushcast/internal/sanitize"
	"github.com/shaharia-lab/pushcast/internal/storage"
)

// maxDisplayNameRunes caps the stored display name.
const maxDisplayNameRunes = 64

// Recipient is the operator-facing view of a subscription. It never carries
// the push keys.
type Recipient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SubscriptionService manages push subscriptions.
type SubscriptionService interface {
	// Register stores a subscription for endpoint, replacing any previous record
	// for the same endpoint, and returns the new id.
	Register(ctx context.Context, endpoint string, payload json.RawMessage, displayName string) (string, error)
	// Unregister removes the subscription for endpoint. Unknown endpoints are not an error.
	Unregister(ctx context.Context, endpoint string) error
	// ListAll returns every subscription's id and display name.
	ListAll(ctx context.Context) ([]Recipient, error)
	// ResolveTargets returns every subscription for notification.TargetAll or an
	// empty target, otherwise the zero or one subscription with that id.
	ResolveTargets(ctx context.Context, target string) ([]storage.Subscription, error)
	// RemoveByEndpoint deletes the subscription for endpoint. It may race with a
	// Register of the same endpoint; whichever write lands last wins, so a prune
	// can remove a record that was re-registered a moment earlier.
	RemoveByEndpoint(ctx context.Context, endpoint string) error
}

// subscriptionServiceImpl implements SubscriptionService.
type subscriptionServiceImpl struct {
	store   storage.SubscriptionStore
	cleaner sanitize.Cleaner
	logger  *slog.Logger
}

// NewSubscriptionService creates a new SubscriptionService. cleaner may be nil.
func NewSubscriptionService(store storage.SubscriptionStore, cleaner sanitize.Cleaner, logger *slog.Logger) SubscriptionService {
	return &subscriptionServiceImpl{
		store:   store,
		cleaner: cleaner,
		logger:  logger,
	}
}

var _ notification.RecipientStore = (*subscriptionServiceImpl)(nil)

func (s *subscriptionServiceImpl) Register(
	ctx context.Context, endpoint string, payload json.RawMessage, displayName string,
) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", &ValidationError{Field: "endpoint", Message: "endpoint is required"}
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return "", &ValidationError{Field: "subscription", Message: "subscription must be a JSON object"}
	}

	sub := &storage.Subscription{
		ID:          uuid.New().String(),
		Endpoint:    endpoint,
		Payload:     payload,
		DisplayName: s.cleanName(ctx, displayName),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Upsert(ctx, sub); err != nil {
		return "", &StoreError{Op: "register subscription", Err: err}
	}
	s.logger.Info("subscription registered", "subscription_id", sub.ID, "name", sub.DisplayName)
	return sub.ID, nil
}

func (s *subscriptionServiceImpl) Unregister(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return &ValidationError{Field: "endpoint", Message: "endpoint is required"}
	}
	if err := s.store.DeleteByEndpoint(ctx, endpoint); err != nil {
		return &StoreError{Op: "unregister subscription", Err: err}
	}
	s.logger.Info("subscription removed")
	return nil
}

func (s *subscriptionServiceImpl) ListAll(ctx context.Context) ([]Recipient, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list subscriptions", Err: err}
	}
	out := make([]Recipient, 0, len(subs))
	for _, sub := range subs {
		out = append(out, Recipient{ID: sub.ID, Name: sub.DisplayName})
	}
	return out, nil
}

func (s *subscriptionServiceImpl) ResolveTargets(ctx context.Context, target string) ([]storage.Subscription, error) {
	target = strings.TrimSpace(target)
	if target == "" || target == notification.TargetAll {
		subs, err := s.store.List(ctx)
		if err != nil {
			return nil, &StoreError{Op: "list subscriptions", Err: err}
		}
		return subs, nil
	}

	sub, err := s.store.Get(ctx, target)
	if err != nil {
		return nil, &StoreError{Op: "get subscription", Err: err}
	}
	if sub == nil {
		return []storage.Subscription{}, nil
	}
	return []storage.Subscription{*sub}, nil
}

func (s *subscriptionServiceImpl) RemoveByEndpoint(ctx context.Context, endpoint string) error {
	if err := s.store.DeleteByEndpoint(ctx, endpoint); err != nil {
		return &StoreError{Op: "remove subscription", Err: err}
	}
	return nil
}

// cleanName sanitizes and truncates a display name. Sanitizer failures keep
// the trimmed input.
func (s *subscriptionServiceImpl) cleanName(ctx context.Context, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if s.cleaner != nil {
		cleaned, err := s.cleaner.Clean(ctx, name)
		if err != nil {
			s.logger.Warn("sanitizer failed on display name, using raw text", "error", err)
		} else {
			name = cleaned
		}
	}
	if utf8.RuneCountInString(name) > maxDisplayNameRunes {
		name = string([]rune(name)[:maxDisplayNameRunes])
	}
	return name
}
