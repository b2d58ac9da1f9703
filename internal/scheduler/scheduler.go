// Package scheduler runs deferred and recurring background jobs on gocron.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// ErrStopped is returned when a job is scheduled after Stop.
var ErrStopped = errors.New("scheduler stopped")

const defaultDrainTimeout = 30 * time.Second

// Scheduler wraps a gocron scheduler. Recurring jobs are tracked by name so
// they can be replaced. One-shot jobs that have not fired by Stop are run
// early instead of being discarded.
type Scheduler struct {
	cron         gocron.Scheduler
	jobs         map[string]uuid.UUID // job name → gocron job UUID
	pending      map[uuid.UUID]oneShot
	stopped      bool
	drainTimeout time.Duration
	mu           sync.Mutex
	logger       *slog.Logger
}

type oneShot struct {
	name string
	fn   func()
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	location     *time.Location
	drainTimeout time.Duration
}

// WithLocation sets the time zone used to evaluate cron expressions.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// WithDrainTimeout bounds how long Stop waits for pending one-shot jobs.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) { o.drainTimeout = d }
}

// New creates a Scheduler. Call Start before jobs will run.
func New(logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	o := &options{location: time.Local, drainTimeout: defaultDrainTimeout}
	for _, opt := range opts {
		opt(o)
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(o.location))
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	return &Scheduler{
		cron:         cron,
		jobs:         make(map[string]uuid.UUID),
		pending:      make(map[uuid.UUID]oneShot),
		drainTimeout: o.drainTimeout,
		logger:       logger,
	}, nil
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "recurring_jobs", s.jobCount())
}

// Stop shuts down the scheduler, waiting for running jobs to return. One-shot
// jobs that have not fired yet are then run immediately. Jobs still running
// after the drain timeout are logged at error level and abandoned.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	err := s.cron.Shutdown()

	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[uuid.UUID]oneShot)
	s.mu.Unlock()

	s.drain(pending)
	return err
}

// After runs fn once, delay from now. A panic in fn is logged and swallowed.
func (s *Scheduler) After(delay time.Duration, name string, fn func()) error {
	token := uuid.New()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduling one-shot job %q: %w", name, ErrStopped)
	}
	s.pending[token] = oneShot{name: name, fn: fn}
	s.mu.Unlock()

	start := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	}
	_, err := s.cron.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() {
			if s.claim(token) {
				s.guard(name, fn)()
			}
		}),
		gocron.WithName(name),
	)
	if err != nil {
		s.claim(token)
		return fmt.Errorf("scheduling one-shot job %q: %w", name, err)
	}
	s.logger.Debug("one-shot job scheduled", "job", name, "delay", delay)
	return nil
}

// claim removes a pending one-shot job and reports whether the caller owns
// its execution.
func (s *Scheduler) claim(token uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[token]; !ok {
		return false
	}
	delete(s.pending, token)
	return true
}

func (s *Scheduler) drain(pending map[uuid.UUID]oneShot) {
	if len(pending) == 0 {
		return
	}
	s.logger.Info("running pending one-shot jobs before shutdown", "count", len(pending))

	type running struct {
		name string
		done chan struct{}
	}
	jobs := make([]running, 0, len(pending))
	for _, job := range pending {
		r := running{name: job.name, done: make(chan struct{})}
		jobs = append(jobs, r)
		go func() {
			defer close(r.done)
			s.guard(job.name, job.fn)()
		}()
	}

	deadline := time.NewTimer(s.drainTimeout)
	defer deadline.Stop()
	expired := false
	for _, r := range jobs {
		if !expired {
			select {
			case <-r.done:
				continue
			case <-deadline.C:
				expired = true
			}
		}
		select {
		case <-r.done:
		default:
			s.logger.Error("pending job did not finish before shutdown", "job", r.name, "timeout", s.drainTimeout)
		}
	}
}

// Cron schedules fn on a standard five-field cron expression, replacing any
// recurring job already registered under name.
func (s *Scheduler) Cron(name, expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobID, ok := s.jobs[name]; ok {
		if err := s.cron.RemoveJob(jobID); err != nil {
			s.logger.Warn("failed to remove existing job", "job", name, "error", err)
		}
		delete(s.jobs, name)
	}

	job, err := s.cron.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(s.guard(name, fn)),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("scheduling job %q with %q: %w", name, expr, err)
	}
	s.jobs[name] = job.ID()
	s.logger.Info("recurring job scheduled", "job", name, "cron", expr)
	return nil
}

func (s *Scheduler) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) guard(name string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("job panicked", "job", name, "panic", r)
			}
		}()
		fn()
	}
}
