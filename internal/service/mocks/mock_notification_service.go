package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/pushcast/internal/notification"
)

// MockNotificationService is a mock implementation of service.NotificationService.
type MockNotificationService struct {
	mock.Mock
}

func reportOrNil(args mock.Arguments) (*notification.Report, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.Report), args.Error(1)
}

//nolint:revive
func (m *MockNotificationService) Send(ctx context.Context, req notification.Request) (*notification.Report, error) {
	return reportOrNil(m.Called(ctx, req))
}

//nolint:revive
func (m *MockNotificationService) Trigger(ctx context.Context, secret string) (*notification.Report, error) {
	return reportOrNil(m.Called(ctx, secret))
}

//nolint:revive
func (m *MockNotificationService) Reminder(ctx context.Context) (*notification.Report, error) {
	return reportOrNil(m.Called(ctx))
}

//nolint:revive
func (m *MockNotificationService) BroadcastTest(ctx context.Context) (*notification.Report, error) {
	return reportOrNil(m.Called(ctx))
}

//nolint:revive
func (m *MockNotificationService) VAPIDPublicKey() string {
	args := m.Called()
	return args.String(0)
}
