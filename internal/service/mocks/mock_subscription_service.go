package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/pushcast/internal/service"
	"github.com/shaharia-lab/pushcast/internal/storage"
)

// MockSubscriptionService is a mock implementation of service.SubscriptionService.
type MockSubscriptionService struct {
	mock.Mock
}

//nolint:revive
func (m *MockSubscriptionService) Register(
	ctx context.Context, endpoint string, payload json.RawMessage, displayName string,
) (string, error) {
	args := m.Called(ctx, endpoint, payload, displayName)
	return args.String(0), args.Error(1)
}

//nolint:revive
func (m *MockSubscriptionService) Unregister(ctx context.Context, endpoint string) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}

//nolint:revive
func (m *MockSubscriptionService) ListAll(ctx context.Context) ([]service.Recipient, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.Recipient), args.Error(1)
}

//nolint:revive
func (m *MockSubscriptionService) ResolveTargets(ctx context.Context, target string) ([]storage.Subscription, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.Subscription), args.Error(1)
}

//nolint:revive
func (m *MockSubscriptionService) RemoveByEndpoint(ctx context.Context, endpoint string) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}
