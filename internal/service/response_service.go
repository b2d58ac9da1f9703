package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaharia-lab/pushcast/internal/notification"
	"github.com/shaharia-lab/pushcast/internal/storage"
)

const (
	// maxActionBytes caps the stored action id. Longer ids are truncated.
	maxActionBytes   = 64
	maxResponseLimit = 500
)

// ResponseService records notification action clicks reported by clients.
// Responses carry no reference to the notification or recipient that produced them.
type ResponseService interface {
	// Record stores one action click.
	Record(ctx context.Context, action string) error
	// List returns the most recent responses, newest first.
	List(ctx context.Context, limit int) ([]storage.ActionResponse, error)
}

// responseServiceImpl implements ResponseService.
type responseServiceImpl struct {
	store     storage.ResponseStore
	logger    *slog.Logger
	responses *prometheus.CounterVec
	now       func() time.Time
}

// NewResponseService creates a new ResponseService. reg may be nil, in which
// case no metrics are registered.
func NewResponseService(store storage.ResponseStore, reg prometheus.Registerer, logger *slog.Logger) ResponseService {
	s := &responseServiceImpl{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if reg != nil {
		s.responses = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushcast",
			Name:      "action_responses_total",
			Help:      "Notification action clicks reported by clients.",
		}, []string{"action"})
	}
	return s
}

func (s *responseServiceImpl) Record(ctx context.Context, action string) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return &ValidationError{Field: "action", Message: "action is required"}
	}
	if len(action) > maxActionBytes {
		s.logger.Warn("truncating oversized action", "length", len(action))
		action = truncateBytes(action, maxActionBytes)
	}

	resp := storage.ActionResponse{Action: action, ReceivedAt: s.now()}
	if err := s.store.LogResponse(ctx, resp); err != nil {
		return &StoreError{Op: "log response", Err: err}
	}
	if s.responses != nil {
		label := action
		if !notification.IsKnownAction(action) {
			label = "other"
		}
		s.responses.WithLabelValues(label).Inc()
	}
	s.logger.Info("notification action received", "action", action)
	return nil
}

func (s *responseServiceImpl) List(ctx context.Context, limit int) ([]storage.ActionResponse, error) {
	if limit > maxResponseLimit {
		limit = maxResponseLimit
	}
	responses, err := s.store.ListResponses(ctx, limit)
	if err != nil {
		return nil, &StoreError{Op: "list responses", Err: err}
	}
	return responses, nil
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
