package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/shaharia-lab/pushcast/internal/service"
)

const (
	errInvalidJSONBody  = "invalid JSON body"
	defaultMaxBodyBytes = 8 << 20
)

// Server holds all dependencies for the REST API handlers.
type Server struct {
	subscriptionSvc service.SubscriptionService
	notificationSvc service.NotificationService
	responseSvc     service.ResponseService
	logger          *slog.Logger
	triggerLimiter  *rate.Limiter
	maxBodyBytes    int64
}

// Option configures a Server.
type Option func(*Server)

// WithMaxBodyBytes caps the size of JSON request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithTriggerLimit sets how often /trigger-push may be called.
func WithTriggerLimit(every time.Duration, burst int) Option {
	return func(s *Server) {
		s.triggerLimiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// New creates a new API Server backed by the provided services.
func New(
	subscriptionSvc service.SubscriptionService,
	notificationSvc service.NotificationService,
	responseSvc service.ResponseService,
	logger *slog.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		subscriptionSvc: subscriptionSvc,
		notificationSvc: notificationSvc,
		responseSvc:     responseSvc,
		logger:          logger,
		triggerLimiter:  rate.NewLimiter(rate.Every(10*time.Second), 3),
		maxBodyBytes:    defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount registers all API routes under the given router.
func (s *Server) Mount(r chi.Router) {
	// Subscriptions
	r.Post("/subscribe", s.handleSubscribe)
	r.Post("/unsubscribe", s.handleUnsubscribe)
	r.Get("/subscribers", s.handleListSubscribers)
	r.Get("/vapid-public-key", s.handleVAPIDPublicKey)

	// Sending
	r.Post("/send-notification", s.handleSendNotification)
	r.Post("/broadcast-test", s.handleBroadcastTest)
	r.Get("/trigger-push", s.handleTriggerPush)

	// Action responses
	r.Post("/log-response", s.handleLogResponse)
	r.Get("/responses", s.handleListResponses)

	r.Get("/version", s.handleVersion)
}

// ─── Shared helpers ───────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a size-limited JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("request body exceeds %d bytes", mbe.Limit)
		}
		return errors.New(errInvalidJSONBody)
	}
	return nil
}

// writeServiceError maps service errors to HTTP statuses. Unexpected errors are
// logged and reported with msg.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, msg string) {
	var ve *service.ValidationError
	var ue *service.UnauthorizedError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &ue):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		s.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}
