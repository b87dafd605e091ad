// Package metrics provides Prometheus metrics for the mediation adapter
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Ad lifecycle metrics
	LoadsTotal       *prometheus.CounterVec
	LoadDuration     *prometheus.HistogramVec
	ShowsTotal       *prometheus.CounterVec
	InvalidatesTotal *prometheus.CounterVec

	// Partner metrics
	PartnerErrors *prometheus.CounterVec
	TokenFetches  *prometheus.CounterVec
	TokenLatency  prometheus.Histogram
	LateCallbacks prometheus.Counter
	BreakerState  prometheus.Gauge

	// Policy metrics
	AllowlistRejections prometheus.Counter
	TestModeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics on a private
// registry
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "medbridge"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),

		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_loads_total",
				Help:      "Total number of ad loads",
			},
			[]string{"format", "status"},
		),
		LoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ad_load_duration_seconds",
				Help:      "Ad load duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"format"},
		),
		ShowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_shows_total",
				Help:      "Total number of ad shows",
			},
			[]string{"format", "status"},
		),
		InvalidatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_invalidates_total",
				Help:      "Total number of ad invalidations",
			},
			[]string{"format", "status"},
		),

		PartnerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "partner_errors_total",
				Help:      "Partner errors by Vantage error code",
			},
			[]string{"code"},
		),
		TokenFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bidder_token_fetches_total",
				Help:      "Bidder token fetches by outcome and source",
			},
			[]string{"status", "source"},
		),
		TokenLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bidder_token_fetch_duration_seconds",
				Help:      "Bidder token fetch duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		LateCallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "late_callbacks_total",
				Help:      "Partner callbacks that arrived after their operation resolved",
			},
		),
		BreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "partner_breaker_open",
				Help:      "1 when the partner circuit breaker is open",
			},
		),

		AllowlistRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allowlist_rejections_total",
				Help:      "Loads rejected by the placement allowlist",
			},
		),
		TestModeEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "test_mode_enabled",
				Help:      "1 when partner test mode is enabled",
			},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.LoadsTotal,
		m.LoadDuration,
		m.ShowsTotal,
		m.InvalidatesTotal,
		m.PartnerErrors,
		m.TokenFetches,
		m.TokenLatency,
		m.LateCallbacks,
		m.BreakerState,
		m.AllowlistRejections,
		m.TestModeEnabled,
	)

	return m
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLoad records one ad load outcome
func (m *Metrics) RecordLoad(format, status string, duration time.Duration) {
	m.LoadsTotal.WithLabelValues(format, status).Inc()
	m.LoadDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordShow records one ad show outcome
func (m *Metrics) RecordShow(format, status string) {
	m.ShowsTotal.WithLabelValues(format, status).Inc()
}

// RecordInvalidate records one invalidate outcome
func (m *Metrics) RecordInvalidate(format, status string) {
	m.InvalidatesTotal.WithLabelValues(format, status).Inc()
}

// RecordPartnerError records a partner error by Vantage code
func (m *Metrics) RecordPartnerError(code int) {
	m.PartnerErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordTokenFetch records one bidder token fetch
func (m *Metrics) RecordTokenFetch(status, source string, duration time.Duration) {
	m.TokenFetches.WithLabelValues(status, source).Inc()
	m.TokenLatency.Observe(duration.Seconds())
}

// RecordLateCallback records a partner callback that lost the resolution
// race
func (m *Metrics) RecordLateCallback() {
	m.LateCallbacks.Inc()
}

// RecordAllowlistRejection records a load rejected by the allowlist
func (m *Metrics) RecordAllowlistRejection() {
	m.AllowlistRejections.Inc()
}

// SetTestMode reflects the runtime test-mode flag
func (m *Metrics) SetTestMode(enabled bool) {
	if enabled {
		m.TestModeEnabled.Set(1)
	} else {
		m.TestModeEnabled.Set(0)
	}
}

// SetBreakerOpen reflects the partner circuit breaker state
func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}

// Middleware wraps an HTTP handler with request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
