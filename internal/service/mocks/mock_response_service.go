package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/pushcast/internal/storage"
)

// MockResponseService is a mock implementation of service.ResponseService.
type MockResponseService struct {
	mock.Mock
}

//nolint:revive
func (m *MockResponseService) Record(ctx context.Context, action string) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

//nolint:revive
func (m *MockResponseService) List(ctx context.Context, limit int) ([]storage.ActionResponse, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.ActionResponse), args.Error(1)
}
