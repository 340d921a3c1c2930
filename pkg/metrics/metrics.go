package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback service.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	viewsConsumedTotal  prometheus.Counter
	grantsExhaustedTotal prometheus.Counter
	purgesExecutedTotal prometheus.Counter
	purgeFailuresTotal  prometheus.Counter
	activeSessions      prometheus.Gauge
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	viewsConsumedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_views_consumed_total",
		Help: "Total number of counted views across all grants",
	})
	grantsExhaustedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_grants_exhausted_total",
		Help: "Total number of grants that reached their view cap",
	})
	purgesExecutedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_purges_executed_total",
		Help: "Total number of purges completed against the storage provider",
	})
	purgeFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_purge_failures_total",
		Help: "Total number of purges that exhausted their retry budget",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_active_sessions",
		Help: "Number of playback sessions currently active",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		viewsConsumedTotal,
		grantsExhaustedTotal,
		purgesExecutedTotal,
		purgeFailuresTotal,
		activeSessions,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		viewsConsumedTotal:   viewsConsumedTotal,
		grantsExhaustedTotal: grantsExhaustedTotal,
		purgesExecutedTotal:  purgesExecutedTotal,
		purgeFailuresTotal:   purgeFailuresTotal,
		activeSessions:       activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncViewsConsumed increments the counted-views counter.
func (m *Metrics) IncViewsConsumed() {
	m.viewsConsumedTotal.Inc()
}

// IncGrantsExhausted increments the exhausted-grants counter.
func (m *Metrics) IncGrantsExhausted() {
	m.grantsExhaustedTotal.Inc()
}

// IncPurgesExecuted increments the completed-purges counter.
func (m *Metrics) IncPurgesExecuted() {
	m.purgesExecutedTotal.Inc()
}

// IncPurgeFailures increments the failed-purges counter.
func (m *Metrics) IncPurgeFailures() {
	m.purgeFailuresTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
