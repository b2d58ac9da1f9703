package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/pushcast/internal/storage"
)

// MockSubscriptionStore is a mock implementation of storage.SubscriptionStore.
type MockSubscriptionStore struct {
	mock.Mock
}

//nolint:revive
func (m *MockSubscriptionStore) Upsert(ctx context.Context, sub *storage.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

//nolint:revive
func (m *MockSubscriptionStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}

//nolint:revive
func (m *MockSubscriptionStore) List(ctx context.Context) ([]storage.Subscription, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.Subscription), args.Error(1)
}

//nolint:revive
func (m *MockSubscriptionStore) Get(ctx context.Context, id string) (*storage.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Subscription), args.Error(1)
}
