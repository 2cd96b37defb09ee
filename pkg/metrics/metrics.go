// Package metrics holds the Prometheus collectors for key allocation,
// redirect resolution and HTTP traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shortener"

// Resolution outcomes.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeExpired  = "expired"
	OutcomeError    = "error"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	keysAllocated   *prometheus.CounterVec
	keyCollisions   *prometheus.CounterVec
	keySpaceExhaust prometheus.Counter
	resolutions     *prometheus.CounterVec
	clicksRecorded  prometheus.Counter
	reconciled      prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge
}

// New registers all collectors with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		keysAllocated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_allocated_total",
			Help:      "Keys successfully allocated, by kind (custom or auto).",
		}, []string{"kind"}),
		keyCollisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_collisions_total",
			Help:      "Candidate keys rejected because they were already in use.",
		}, []string{"kind"}),
		keySpaceExhaust: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_space_exhausted_total",
			Help:      "Auto allocations that hit the retry ceiling.",
		}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Redirect resolutions by outcome.",
		}, []string{"outcome"}),
		clicksRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_recorded_total",
			Help:      "Click events appended.",
		}),
		reconciled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "click_counts_reconciled_total",
			Help:      "Click counters corrected by the reconciliation job.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		}),
	}
}

func kind(custom bool) string {
	if custom {
		return "custom"
	}
	return "auto"
}

func (m *Metrics) KeyAllocated(custom bool) {
	if m == nil {
		return
	}
	m.keysAllocated.WithLabelValues(kind(custom)).Inc()
}

func (m *Metrics) KeyCollision(custom bool) {
	if m == nil {
		return
	}
	m.keyCollisions.WithLabelValues(kind(custom)).Inc()
}

func (m *Metrics) KeySpaceExhausted() {
	if m == nil {
		return
	}
	m.keySpaceExhaust.Inc()
}

func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ClickRecorded() {
	if m == nil {
		return
	}
	m.clicksRecorded.Inc()
}

func (m *Metrics) Reconciled(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reconciled.Add(float64(n))
}
