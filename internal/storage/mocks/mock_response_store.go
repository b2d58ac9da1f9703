package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/pushcast/internal/storage"
)

// MockResponseStore is a mock implementation of storage.ResponseStore.
type MockResponseStore struct {
	mock.Mock
}

//nolint:revive
func (m *MockResponseStore) LogResponse(ctx context.Context, resp storage.ActionResponse) error {
	args := m.Called(ctx, resp)
	return args.Error(0)
}

//nolint:revive
func (m *MockResponseStore) ListResponses(ctx context.Context, limit int) ([]storage.ActionResponse, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.ActionResponse), args.Error(1)
}
