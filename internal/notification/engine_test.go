package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/pushcast/internal/media"
	"github.com/shaharia-lab/pushcast/internal/notification"
	"github.com/shaharia-lab/pushcast/internal/push"
	"github.com/shaharia-lab/pushcast/internal/sanitize"
	"github.com/shaharia-lab/pushcast/internal/storage"
)

// --- recipients backed by the in-memory store ---

type memRecipients struct {
	*storage.MemoryStore
	resolveErr error
	removeErr  error
}

func (m *memRecipients) ResolveTargets(ctx context.Context, target string) ([]storage.Subscription, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	if target == notification.TargetAll {
		return m.List(ctx)
	}
	sub, err := m.Get(ctx, target)
	if err != nil || sub == nil {
		return []storage.Subscription{}, err
	}
	return []storage.Subscription{*sub}, nil
}

func (m *memRecipients) RemoveByEndpoint(ctx context.Context, endpoint string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	return m.DeleteByEndpoint(ctx, endpoint)
}

func newRecipients(t *testing.T, subs ...storage.Subscription) *memRecipients {
	t.Helper()
	r := &memRecipients{MemoryStore: storage.NewMemoryStore()}
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, s := range subs {
		s.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, r.Upsert(context.Background(), &s))
	}
	return r
}

// --- transport that answers per endpoint and records payloads ---

type fakeTransport struct {
	mu       sync.Mutex
	outcomes map[string]push.Outcome
	calls    []string
	payloads [][]byte
	opts     []push.Options
	panicOn  string
}

func (f *fakeTransport) Deliver(_ context.Context, sub storage.Subscription, payload []byte, opts push.Options) push.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, sub.Endpoint)
	f.payloads = append(f.payloads, payload)
	f.opts = append(f.opts, opts)
	out, ok := f.outcomes[sub.Endpoint]
	f.mu.Unlock()

	if sub.Endpoint == f.panicOn {
		panic("transport exploded")
	}
	if !ok {
		return push.Outcome{Status: push.StatusDelivered, Code: 201}
	}
	return out
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) lastPayload(t *testing.T) notification.Payload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.payloads)
	var p notification.Payload
	require.NoError(t, json.Unmarshal(f.payloads[len(f.payloads)-1], &p))
	return p
}

// --- media and deferrer fakes ---

type fakeMedia struct {
	mu      sync.Mutex
	putErr  error
	purged  []string
	uploads int
}

func (m *fakeMedia) Put(_ context.Context, data []byte) (*media.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &media.Object{Key: "notifications/img.png", URL: "https://cdn.example.com/notifications/img.png", Size: len(data)}, nil
}

func (m *fakeMedia) Purge(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = append(m.purged, key)
	return nil
}

type deferred struct {
	delay time.Duration
	name  string
	fn    func()
}

type fakeDeferrer struct {
	mu   sync.Mutex
	jobs []deferred
}

func (d *fakeDeferrer) After(delay time.Duration, name string, fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, deferred{delay: delay, name: name, fn: fn})
	return nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sub(id, endpoint string) storage.Subscription {
	return storage.Subscription{ID: id, Endpoint: endpoint, Payload: json.RawMessage(`{}`)}
}

func newEngine(t *testing.T, cfg notification.Config) *notification.Engine {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = newTestLogger()
	}
	e, err := notification.NewEngine(cfg)
	require.NoError(t, err)
	return e
}

// --- tests ---

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	_, err := notification.NewEngine(notification.Config{Transport: &fakeTransport{}})
	assert.Error(t, err)

	_, err = notification.NewEngine(notification.Config{Recipients: newRecipients(t)})
	assert.Error(t, err)
}

func TestSend_DeliveredAndGone(t *testing.T) {
	recipients := newRecipients(t, sub("A", "e1"), sub("B", "e2"))
	transport := &fakeTransport{outcomes: map[string]push.Outcome{
		"e2": {Status: push.StatusGone, Code: 410},
	}}
	e := newEngine(t, notification.Config{Recipients: recipients, Transport: transport})

	report, err := e.Send(context.Background(), notification.Request{Title: "Test", Body: "Hi", Target: "all"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Gone)
	assert.Equal(t, 1, report.Pruned)
	assert.Equal(t, 0, report.Failed)
	assert.False(t, report.NoRecipients)

	remaining, err := recipients.ResolveTargets(context.Background(), notification.TargetAll)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "A", remaining[0].ID)

	gone, err := recipients.ResolveTargets(context.Background(), "B")
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestSend_DispatchesOncePerRecipient(t *testing.T) {
	subs := make([]storage.Subscription, 0, 25)
	for i := range 25 {
		id := string(rune('a' + i))
		subs = append(subs, sub(id, "endpoint-"+id))
	}
	transport := &fakeTransport{}
	e := newEngine(t, notification.Config{
		Recipients:     newRecipients(t, subs...),
		Transport:      transport,
		MaxConcurrency: 4,
	})

	report, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, 25, report.Attempted)
	assert.Equal(t, 25, report.Delivered)
	assert.Equal(t, 25, transport.callCount())
}

func TestSend_TransientFailureKeepsSubscription(t *testing.T) {
	recipients := newRecipients(t, sub("A", "e1"), sub("B", "e2"))
	transport := &fakeTransport{outcomes: map[string]push.Outcome{
		"e1": {Status: push.StatusFailed, Code: 500, Err: errors.New("server error")},
		"e2": {Status: push.StatusFailed, Err: errors.New("dial tcp: timeout")},
	}}
	e := newEngine(t, notification.Config{Recipients: recipients, Transport: transport})

	report, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 0, report.Pruned)

	remaining, err := recipients.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestSend_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   notification.Request
		field string
	}{
		{name: "missing title", req: notification.Request{Body: "b"}, field: "title"},
		{name: "blank title", req: notification.Request{Title: "   ", Body: "b"}, field: "title"},
		{name: "missing body", req: notification.Request{Title: "t"}, field: "body"},
		{name: "both missing", req: notification.Request{}, field: "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			e := newEngine(t, notification.Config{
				Recipients: newRecipients(t, sub("A", "e1")),
				Transport:  transport,
			})

			report, err := e.Send(context.Background(), tt.req)
			assert.Nil(t, report)
			var ie *notification.InputError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.field, ie.Field)
			assert.Equal(t, 0, transport.callCount())
		})
	}
}

func TestSend_NoRecipients(t *testing.T) {
	tests := []struct {
		name   string
		subs   []storage.Subscription
		target string
	}{
		{name: "empty store", target: ""},
		{name: "unknown id", subs: []storage.Subscription{sub("A", "e1")}, target: "missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			m := &fakeMedia{}
			e := newEngine(t, notification.Config{
				Recipients: newRecipients(t, tt.subs...),
				Transport:  transport,
				Media:      m,
			})

			report, err := e.Send(context.Background(), notification.Request{
				Title: "T", Body: "B", Target: tt.target, Image: []byte("img"),
			})
			require.NoError(t, err)
			assert.True(t, report.NoRecipients)
			assert.Equal(t, 0, report.Attempted)
			assert.Equal(t, "No recipients found.", report.Summary())
			assert.Equal(t, 0, transport.callCount())
			assert.Equal(t, 0, m.uploads, "no upload without recipients")
		})
	}
}

func TestSend_TargetedRecipient(t *testing.T) {
	transport := &fakeTransport{}
	e := newEngine(t, notification.Config{
		Recipients: newRecipients(t, sub("A", "e1"), sub("B", "e2")),
		Transport:  transport,
	})

	report, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B", Target: "B"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, []string{"e2"}, transport.calls)
}

func TestSend_ResolveError(t *testing.T) {
	recipients := newRecipients(t)
	recipients.resolveErr = errors.New("database is locked")
	e := newEngine(t, notification.Config{Recipients: recipients, Transport: &fakeTransport{}})

	_, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	var ie *notification.InputError
	assert.False(t, errors.As(err, &ie))
}

func TestSend_PruneErrorIsAbsorbed(t *testing.T) {
	recipients := newRecipients(t, sub("A", "e1"))
	recipients.removeErr = errors.New("write failed")
	transport := &fakeTransport{outcomes: map[string]push.Outcome{"e1": {Status: push.StatusGone, Code: 404}}}
	e := newEngine(t, notification.Config{Recipients: recipients, Transport: transport})

	report, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Gone)
	assert.Equal(t, 0, report.Pruned)
}

func TestSend_PanicIsolated(t *testing.T) {
	transport := &fakeTransport{panicOn: "e1"}
	e := newEngine(t, notification.Config{
		Recipients: newRecipients(t, sub("A", "e1"), sub("B", "e2")),
		Transport:  transport,
	})

	report, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Failed)
}

func TestSend_PayloadComposition(t *testing.T) {
	tests := []struct {
		name        string
		req         notification.Request
		wantTitle   string
		wantActions []notification.Action
	}{
		{
			name:      "sender prefix",
			req:       notification.Request{SenderName: "Sam", Title: "Test", Body: "Hi"},
			wantTitle: "Sam: Test",
		},
		{
			name:      "no sender",
			req:       notification.Request{Title: "Test", Body: "Hi"},
			wantTitle: "Test",
		},
		{
			name:      "yes no actions",
			req:       notification.Request{Title: "Lunch?", Body: "Pizza", ActionStyle: notification.ActionStyleYesNo},
			wantTitle: "Lunch?",
			wantActions: []notification.Action{
				{ID: "yes", Label: "Yes"},
				{ID: "no", Label: "No"},
			},
		},
		{
			name:      "unknown action style",
			req:       notification.Request{Title: "T", Body: "B", ActionStyle: "dance"},
			wantTitle: "T",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			e := newEngine(t, notification.Config{
				Recipients: newRecipients(t, sub("A", "e1")),
				Transport:  transport,
			})

			_, err := e.Send(context.Background(), tt.req)
			require.NoError(t, err)

			p := transport.lastPayload(t)
			assert.Equal(t, tt.wantTitle, p.Title)
			assert.Equal(t, tt.wantActions, p.Actions)
			assert.Empty(t, p.Image)
			assert.Equal(t, push.UrgencyHigh, transport.opts[0].Urgency)
			assert.Positive(t, transport.opts[0].TTL)
		})
	}
}

func TestSend_OmitsEmptyOptionalFields(t *testing.T) {
	transport := &fakeTransport{}
	e := newEngine(t, notification.Config{Recipients: newRecipients(t, sub("A", "e1")), Transport: transport})

	_, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B"})
	require.NoError(t, err)

	raw := string(transport.payloads[0])
	assert.NotContains(t, raw, "image")
	assert.NotContains(t, raw, "actions")
}

func TestSend_SanitizerFallbackPerField(t *testing.T) {
	filter := sanitize.NewWordFilter(nil)
	cleaner := sanitize.CleanerFunc(func(ctx context.Context, text string) (string, error) {
		if strings.Contains(text, "explode") {
			return "", errors.New("sanitizer unavailable")
		}
		return filter.Clean(ctx, text)
	})
	transport := &fakeTransport{}
	e := newEngine(t, notification.Config{
		Recipients: newRecipients(t, sub("A", "e1")),
		Transport:  transport,
		Cleaner:    cleaner,
	})

	_, err := e.Send(context.Background(), notification.Request{
		SenderName: "damn sender",
		Title:      "damn title",
		Body:       "body will explode, damn",
	})
	require.NoError(t, err)

	p := transport.lastPayload(t)
	assert.Equal(t, "**** sender: **** title", p.Title)
	assert.Equal(t, "body will explode, damn", p.Body)
}

func TestSend_ImageAttachedAndPurged(t *testing.T) {
	m := &fakeMedia{}
	d := &fakeDeferrer{}
	transport := &fakeTransport{}
	e := newEngine(t, notification.Config{
		Recipients: newRecipients(t, sub("A", "e1"), sub("B", "e2")),
		Transport:  transport,
		Media:      m,
		Deferrer:   d,
	})

	report, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B", Image: []byte("png")})
	require.NoError(t, err)
	assert.True(t, report.ImageAttached)
	assert.Equal(t, 1, m.uploads)
	assert.Equal(t, "https://cdn.example.com/notifications/img.png", transport.lastPayload(t).Image)

	require.Len(t, d.jobs, 1)
	assert.Equal(t, 5*time.Minute, d.jobs[0].delay)
	assert.Empty(t, m.purged, "purge must wait for the deferred job")

	d.jobs[0].fn()
	assert.Equal(t, []string{"notifications/img.png"}, m.purged)
}

func TestSend_ImageFailuresDegrade(t *testing.T) {
	tests := []struct {
		name  string
		media media.Store
	}{
		{name: "upload error", media: &fakeMedia{putErr: media.ErrNotImage}},
		{name: "no media store", media: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDeferrer{}
			transport := &fakeTransport{}
			e := newEngine(t, notification.Config{
				Recipients: newRecipients(t, sub("A", "e1")),
				Transport:  transport,
				Media:      tt.media,
				Deferrer:   d,
			})

			report, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B", Image: []byte("x")})
			require.NoError(t, err)
			assert.False(t, report.ImageAttached)
			assert.Equal(t, 1, report.Delivered)
			assert.Empty(t, transport.lastPayload(t).Image)
			assert.Empty(t, d.jobs)
		})
	}
}

func TestSend_DispatchIsConcurrent(t *testing.T) {
	// Default config fans out to every recipient at once.
	const n = 40
	var (
		arrived sync.WaitGroup
		release = make(chan struct{})
	)
	arrived.Add(n)
	transport := push.TransportFunc(func(ctx context.Context, _ storage.Subscription, _ []byte, _ push.Options) push.Outcome {
		arrived.Done()
		select {
		case <-release:
			return push.Outcome{Status: push.StatusDelivered}
		case <-ctx.Done():
			return push.Outcome{Status: push.StatusFailed, Err: ctx.Err()}
		}
	})

	subs := make([]storage.Subscription, 0, n)
	for i := range n {
		id := fmt.Sprintf("s%02d", i)
		subs = append(subs, sub(id, "e-"+id))
	}
	e := newEngine(t, notification.Config{
		Recipients:      newRecipients(t, subs...),
		Transport:       transport,
		DeliveryTimeout: 5 * time.Second,
	})

	// Release only once every delivery is in flight at the same time.
	go func() {
		arrived.Wait()
		close(release)
	}()

	report, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, n, report.Delivered)
}

func TestSend_MaxConcurrencyBoundsInFlight(t *testing.T) {
	const n, limit = 12, 3
	var inFlight, peak atomic.Int32
	transport := push.TransportFunc(func(context.Context, storage.Subscription, []byte, push.Options) push.Outcome {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return push.Outcome{Status: push.StatusDelivered}
	})

	subs := make([]storage.Subscription, 0, n)
	for i := range n {
		id := fmt.Sprintf("s%02d", i)
		subs = append(subs, sub(id, "e-"+id))
	}
	e := newEngine(t, notification.Config{
		Recipients:     newRecipients(t, subs...),
		Transport:      transport,
		MaxConcurrency: limit,
	})

	report, err := e.Send(context.Background(), notification.Request{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, n, report.Delivered)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestSend_CallerCancellationDoesNotAbortDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transport := push.TransportFunc(func(ctx context.Context, _ storage.Subscription, _ []byte, _ push.Options) push.Outcome {
		cancel()
		if ctx.Err() != nil {
			return push.Outcome{Status: push.StatusFailed, Err: ctx.Err()}
		}
		return push.Outcome{Status: push.StatusDelivered}
	})
	e := newEngine(t, notification.Config{Recipients: newRecipients(t, sub("A", "e1")), Transport: transport})

	report, err := e.Send(ctx, notification.Request{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
}

func TestReport_Summary(t *testing.T) {
	r := &notification.Report{Attempted: 4, Delivered: 3}
	assert.Equal(t, "Notification sent to 3 of 4 recipients.", r.Summary())
}
