package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shaharia-lab/pushcast/internal/media"
	"github.com/shaharia-lab/pushcast/internal/push"
	"github.com/shaharia-lab/pushcast/internal/sanitize"
	"github.com/shaharia-lab/pushcast/internal/storage"
)

const (
	defaultPurgeDelay      = 5 * time.Minute
	defaultTTL             = 60 * time.Second
	defaultDeliveryTimeout = 15 * time.Second
	purgeTimeout           = 30 * time.Second
)

// Config wires an Engine to its collaborators. Recipients and Transport are
// required; every other field is optional.
type Config struct {
	Recipients RecipientStore
	Transport  push.Transport
	// Cleaner sanitizes text fields. Nil sends text unchanged.
	Cleaner sanitize.Cleaner
	// Media stores image attachments. Nil drops images.
	Media media.Store
	// Deferrer schedules image purges. Nil leaves uploaded images in place.
	Deferrer Deferrer
	Metrics  *Metrics
	Logger   *slog.Logger

	PurgeDelay      time.Duration
	TTL             time.Duration
	DeliveryTimeout time.Duration
	// MaxConcurrency caps in-flight deliveries. Zero sends to every
	// recipient at once.
	MaxConcurrency int
	// Limiter paces deliveries across the whole fan-out. Nil means unpaced.
	Limiter *rate.Limiter
}

// Engine fans a notification out to its recipients.
type Engine struct {
	recipients RecipientStore
	transport  push.Transport
	cleaner    sanitize.Cleaner
	media      media.Store
	deferrer   Deferrer
	metrics    *Metrics
	logger     *slog.Logger
	limiter    *rate.Limiter

	purgeDelay      time.Duration
	ttl             time.Duration
	deliveryTimeout time.Duration
	maxConcurrency  int
}

// NewEngine returns an Engine built from cfg, applying defaults for unset limits.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Recipients == nil {
		return nil, errors.New("notification: recipient store is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("notification: transport is required")
	}
	e := &Engine{
		recipients:      cfg.Recipients,
		transport:       cfg.Transport,
		cleaner:         cfg.Cleaner,
		media:           cfg.Media,
		deferrer:        cfg.Deferrer,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		limiter:         cfg.Limiter,
		purgeDelay:      cfg.PurgeDelay,
		ttl:             cfg.TTL,
		deliveryTimeout: cfg.DeliveryTimeout,
		maxConcurrency:  cfg.MaxConcurrency,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.purgeDelay <= 0 {
		e.purgeDelay = defaultPurgeDelay
	}
	if e.ttl <= 0 {
		e.ttl = defaultTTL
	}
	if e.deliveryTimeout <= 0 {
		e.deliveryTimeout = defaultDeliveryTimeout
	}
	return e, nil
}

// Send validates req, delivers it to every targeted subscription and returns
// once all deliveries have settled. Per-recipient failures are folded into the
// Report; only an *InputError or a recipient lookup failure is returned.
func (e *Engine) Send(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	title := strings.TrimSpace(req.Title)
	body := strings.TrimSpace(req.Body)
	if title == "" {
		return nil, &InputError{Field: "title", Message: "title is required"}
	}
	if body == "" {
		return nil, &InputError{Field: "body", Message: "body is required"}
	}

	target := strings.TrimSpace(req.Target)
	if target == "" {
		target = TargetAll
	}
	recipients, err := e.recipients.ResolveTargets(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("resolving recipients for %q: %w", target, err)
	}
	report := &Report{}
	if len(recipients) == 0 {
		report.NoRecipients = true
		e.logger.Info("no recipients for notification", "target", target)
		return report, nil
	}
	e.metrics.fanout()

	sender := e.clean(ctx, "sender_name", strings.TrimSpace(req.SenderName))
	payload := Payload{
		Title:   composeTitle(sender, e.clean(ctx, "title", title)),
		Body:    e.clean(ctx, "body", body),
		Actions: Actions(req.ActionStyle),
	}
	if len(req.Image) > 0 {
		if url := e.attachImage(ctx, req.Image); url != "" {
			payload.Image = url
			report.ImageAttached = true
		}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	// Deliveries and pruning outlive a disconnected caller.
	detached := context.WithoutCancel(ctx)
	outcomes := e.dispatch(detached, recipients, encoded)

	report.Attempted = len(outcomes)
	for i, out := range outcomes {
		sub := recipients[i]
		e.metrics.delivery(out.Status)
		switch out.Status {
		case push.StatusDelivered:
			report.Delivered++
		case push.StatusGone:
			report.Gone++
			if err := e.recipients.RemoveByEndpoint(detached, sub.Endpoint); err != nil {
				e.logger.Error("failed to prune gone subscription",
					"subscription_id", sub.ID, "code", out.Code, "error", err)
				continue
			}
			report.Pruned++
			e.metrics.prune()
			e.logger.Info("pruned gone subscription", "subscription_id", sub.ID, "code", out.Code)
		default:
			report.Failed++
			e.logger.Warn("push delivery failed",
				"subscription_id", sub.ID, "code", out.Code, "error", out.Err)
		}
	}

	report.Duration = time.Since(start)
	e.metrics.observe(report.Duration)
	e.logger.Info("notification fan-out complete",
		"target", target,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"pruned", report.Pruned,
		"failed", report.Failed,
		"image", report.ImageAttached,
		"duration", report.Duration,
	)
	return report, nil
}

// dispatch delivers payload to every recipient concurrently and returns the
// outcomes in recipient order. It waits for every delivery to settle.
func (e *Engine) dispatch(ctx context.Context, recipients []storage.Subscription, payload []byte) []push.Outcome {
	outcomes := make([]push.Outcome, len(recipients))
	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, sub := range recipients {
		g.Go(func() error {
			outcomes[i] = e.deliver(ctx, sub, payload)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// deliver performs one delivery. A panicking transport is reported as a failure.
func (e *Engine) deliver(ctx context.Context, sub storage.Subscription, payload []byte) (out push.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = push.Outcome{Status: push.StatusFailed, Err: fmt.Errorf("transport panic: %v", r)}
		}
	}()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return push.Outcome{Status: push.StatusFailed, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.deliveryTimeout)
	defer cancel()
	return e.transport.Deliver(ctx, sub, payload, push.Options{
		TTL:     e.ttl,
		Urgency: push.UrgencyHigh,
	})
}

// clean sanitizes one field, falling back to the raw text on error.
func (e *Engine) clean(ctx context.Context, field, text string) string {
	if e.cleaner == nil || text == "" {
		return text
	}
	cleaned, err := e.cleaner.Clean(ctx, text)
	if err != nil {
		e.logger.Warn("sanitizer failed, using raw text", "field", field, "error", err)
		return text
	}
	return cleaned
}

// attachImage uploads data and schedules its purge. It returns the public URL,
// or "" when the notification should go out without an image.
func (e *Engine) attachImage(ctx context.Context, data []byte) string {
	if e.media == nil {
		e.logger.Warn("image dropped: no media store configured", "bytes", len(data))
		return ""
	}
	obj, err := e.media.Put(ctx, data)
	if err != nil {
		e.metrics.mediaFailure()
		e.logger.Warn("image upload failed, sending text only", "error", err)
		return ""
	}
	e.schedulePurge(obj.Key)
	return obj.URL
}

func (e *Engine) schedulePurge(key string) {
	if e.deferrer == nil {
		e.logger.Warn("no scheduler configured, image will not be purged", "key", key)
		return
	}
	err := e.deferrer.After(e.purgeDelay, "purge-image:"+key, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		if err := e.media.Purge(ctx, key); err != nil {
			e.logger.Error("image purge failed", "key", key, "error", err)
			return
		}
		e.logger.Info("image purged", "key", key)
	})
	if err != nil {
		e.logger.Error("failed to schedule image purge", "key", key, "error", err)
	}
}

// composeTitle prefixes title with the sender's name when one is given.
func composeTitle(sender, title string) string {
	if sender == "" {
		return title
	}
	return sender + ": " + title
}
