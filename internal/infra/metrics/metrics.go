package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chatkit/internal/infra/config"
)

// Metrics holds the protocol core's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	EventsApplied      *prometheus.CounterVec
	ReductionErrors    *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	Requests           *prometheus.CounterVec
	SignalsPublished   *prometheus.CounterVec
	ReplayEvents       prometheus.Histogram
}

// New registers the collectors on reg. It returns nil when metrics are
// disabled.
func New(cfg config.MetricsConfig, reg prometheus.Registerer) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	f := promauto.With(reg)
	ns := cfg.Namespace

	return &Metrics{
		EventsApplied: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "events_applied_total",
				Help:      "Stream events reduced into thread state, by event type.",
			},
			[]string{"type"},
		),
		ReductionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "reduction_errors_total",
				Help:      "Events rejected by the reducer, by error code.",
			},
			[]string{"code"},
		),
		ValidationFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "validation_failures_total",
				Help:      "Payloads that failed to parse, by union.",
			},
			[]string{"union"},
		),
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "requests_total",
				Help:      "Requests processed, by type and mode.",
			},
			[]string{"type", "mode"},
		),
		SignalsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "signals_published_total",
				Help:      "Transient signals forwarded to subscribers, by event type.",
			},
			[]string{"type"},
		),
		ReplayEvents: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "replay_events",
				Help:      "Number of events per replayed thread.",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}
}

func (m *Metrics) EventApplied(eventType string) {
	if m == nil {
		return
	}
	m.EventsApplied.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ReductionFailed(code string) {
	if m == nil {
		return
	}
	m.ReductionErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) ValidationFailed(union string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(union).Inc()
}

func (m *Metrics) RequestProcessed(requestType, mode string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(requestType, mode).Inc()
}

func (m *Metrics) SignalPublished(eventType string) {
	if m == nil {
		return
	}
	m.SignalsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Replayed(events int) {
	if m == nil {
		return
	}
	m.ReplayEvents.Observe(float64(events))
}
