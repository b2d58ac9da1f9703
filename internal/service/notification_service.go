package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaharia-lab/pushcast/internal/notification"
)

// Default broadcast texts.
const (
	DefaultTriggerTitle = "School Reminder"
	DefaultTriggerBody  = "It is 3:20 PM! Time to pack up."
	testBroadcastTitle  = "Test Message"
	testBroadcastBody   = "This is a test sent from the dashboard!"
)

// Sender fans a notification out to its recipients. *notification.Engine
// implements it.
type Sender interface {
	Send(ctx context.Context, req notification.Request) (*notification.Report, error)
}

// NotificationService composes and sends push notifications.
type NotificationService interface {
	// Send delivers req to its target and reports the per-recipient outcome.
	Send(ctx context.Context, req notification.Request) (*notification.Report, error)
	// Trigger broadcasts the scheduled reminder when secret matches the
	// configured trigger secret.
	Trigger(ctx context.Context, secret string) (*notification.Report, error)
	// Reminder broadcasts the scheduled reminder without a secret check. It
	// backs the in-process cron job.
	Reminder(ctx context.Context) (*notification.Report, error)
	// BroadcastTest sends a fixed test message to every subscription.
	BroadcastTest(ctx context.Context) (*notification.Report, error)
	// VAPIDPublicKey returns the application server key clients subscribe with.
	VAPIDPublicKey() string
}

// NotificationConfig holds the fixed texts and secrets used by NotificationService.
type NotificationConfig struct {
	TriggerSecret  string
	TriggerTitle   string
	TriggerBody    string
	VAPIDPublicKey string
}

// notificationServiceImpl implements NotificationService.
type notificationServiceImpl struct {
	sender Sender
	cfg    NotificationConfig
	logger *slog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(sender Sender, cfg NotificationConfig, logger *slog.Logger) NotificationService {
	if cfg.TriggerTitle == "" {
		cfg.TriggerTitle = DefaultTriggerTitle
	}
	if cfg.TriggerBody == "" {
		cfg.TriggerBody = DefaultTriggerBody
	}
	return &notificationServiceImpl{
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *notificationServiceImpl) Send(ctx context.Context, req notification.Request) (*notification.Report, error) {
	report, err := s.sender.Send(ctx, req)
	if err != nil {
		var ie *notification.InputError
		if errors.As(err, &ie) {
			return nil, &ValidationError{Field: ie.Field, Message: ie.Message}
		}
		var se *StoreError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &StoreError{Op: "send notification", Err: err}
	}
	return report, nil
}

func (s *notificationServiceImpl) Trigger(ctx context.Context, secret string) (*notification.Report, error) {
	if s.cfg.TriggerSecret == "" {
		s.logger.Warn("trigger rejected: no trigger secret configured")
		return nil, &UnauthorizedError{Reason: "trigger disabled"}
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.TriggerSecret)) != 1 {
		s.logger.Warn("trigger rejected: secret mismatch")
		return nil, &UnauthorizedError{Reason: "invalid secret"}
	}
	return s.Reminder(ctx)
}

func (s *notificationServiceImpl) Reminder(ctx context.Context) (*notification.Report, error) {
	return s.broadcast(ctx, "reminder", s.cfg.TriggerTitle, s.cfg.TriggerBody)
}

func (s *notificationServiceImpl) BroadcastTest(ctx context.Context) (*notification.Report, error) {
	return s.broadcast(ctx, "test", testBroadcastTitle, testBroadcastBody)
}

func (s *notificationServiceImpl) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

func (s *notificationServiceImpl) broadcast(ctx context.Context, kind, title, body string) (*notification.Report, error) {
	report, err := s.Send(ctx, notification.Request{
		Title:  title,
		Body:   body,
		Target: notification.TargetAll,
	})
	if err != nil {
		return nil, fmt.Errorf("%s broadcast: %w", kind, err)
	}
	s.logger.Info("broadcast sent", "kind", kind, "attempted", report.Attempted, "delivered", report.Delivered)
	return report, nil
}
