package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes of scoring one resident in a daily pass.
const (
	OutcomeScored   = "scored"
	OutcomeReplayed = "replayed"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics holds the Prometheus collectors of the scoring service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	residentsTotal *prometheus.CounterVec
	lastRunUnix    prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellness_runs_total",
			Help: "Daily scoring passes by result (ok or error).",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wellness_run_duration_seconds",
			Help:    "Duration of a daily scoring pass.",
			Buckets: prometheus.DefBuckets,
		}),
		residentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellness_residents_total",
			Help: "Residents processed by the daily pass, by outcome.",
		}, []string{"outcome"}),
		lastRunUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wellness_last_run_timestamp_seconds",
			Help: "Unix time the last daily pass started.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellness_http_requests_total",
			Help: "HTTP requests by route pattern and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wellness_http_request_duration_seconds",
			Help:    "HTTP request durations by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.residentsTotal,
		m.lastRunUnix,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.gatherer }

// Run records one completed daily pass.
func (m *Metrics) Run(started time.Time, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDuration.Observe(took.Seconds())
	m.lastRunUnix.Set(float64(started.Unix()))
}

// Resident records the outcome of scoring one resident.
func (m *Metrics) Resident(outcome string) {
	if m == nil {
		return
	}
	m.residentsTotal.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests by the ServeMux pattern that matched them,
// which keeps label cardinality bounded.
func (m *Metrics) WrapHandler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
