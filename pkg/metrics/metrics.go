package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup outcomes.
const (
	OutcomeHit    = "hit"
	OutcomeMiss   = "miss"
	OutcomeFailed = "failed"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	LookupsTotal        *prometheus.CounterVec
	UpstreamDuration    prometheus.Histogram
}

// New registers the application metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isbn_lookups_total",
				Help: "Total number of ISBN lookups by outcome.",
			},
			[]string{"outcome", "error_kind"}, // outcome: hit, miss, failed
		),
		UpstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "isbn_upstream_fetch_duration_seconds",
				Help:    "Duration of upstream search page fetches.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15, 30},
			},
		),
	}
}

// ObserveLookup counts a finished lookup. errorKind is empty unless outcome is OutcomeFailed.
func (m *Metrics) ObserveLookup(outcome, errorKind string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(outcome, errorKind).Inc()
}

// ObserveUpstream records the duration of one upstream fetch in seconds.
func (m *Metrics) ObserveUpstream(seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamDuration.Observe(seconds)
}
