package notification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaharia-lab/pushcast/internal/push"
)

// Metrics holds the fan-out counters. A nil *Metrics records nothing.
type Metrics struct {
	fanouts       prometheus.Counter
	deliveries    *prometheus.CounterVec
	pruned        prometheus.Counter
	mediaFailures prometheus.Counter
	duration      prometheus.Histogram
}

// NewMetrics registers the fan-out metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fanouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pushcast",
			Name:      "fanouts_total",
			Help:      "Notification fan-outs started.",
		}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushcast",
			Name:      "deliveries_total",
			Help:      "Push deliveries by outcome.",
		}, []string{"outcome"}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pushcast",
			Name:      "subscriptions_pruned_total",
			Help:      "Subscriptions removed after the push service reported them gone.",
		}),
		mediaFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pushcast",
			Name:      "media_upload_failures_total",
			Help:      "Image uploads that failed and were dropped from the notification.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pushcast",
			Name:      "fanout_duration_seconds",
			Help:      "Time from request to the last settled delivery.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) fanout() {
	if m != nil {
		m.fanouts.Inc()
	}
}

func (m *Metrics) delivery(s push.Status) {
	if m != nil {
		m.deliveries.WithLabelValues(s.String()).Inc()
	}
}

func (m *Metrics) prune() {
	if m != nil {
		m.pruned.Inc()
	}
}

func (m *Metrics) mediaFailure() {
	if m != nil {
		m.mediaFailures.Inc()
	}
}

func (m *Metrics) observe(d time.Duration) {
	if m != nil {
		m.duration.Observe(d.Seconds())
	}
}
