// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verdict label values.
const (
	VerdictAdmitted = "admitted"
	VerdictDenied   = "denied"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// ActiveConnections tracks current active connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	// AdmissionsTotal counts admission checks by policy and verdict.
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftgate_admissions_total",
			Help: "Total number of admission checks",
		},
		[]string{"policy", "verdict"},
	)

	// ReaperEvictionsTotal counts windows evicted by the reaper.
	ReaperEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftgate_reaper_evictions_total",
			Help: "Total number of expired windows evicted",
		},
	)

	// ReaperSweepDuration measures how long each sweep takes.
	ReaperSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "draftgate_reaper_sweep_duration_seconds",
			Help:    "Reaper sweep duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// WindowsActive tracks windows held in the store after the last sweep.
	WindowsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "draftgate_windows_active",
			Help: "Number of counting windows held after the last sweep",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request metric.
func RecordRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAdmission records one admission verdict.
func RecordAdmission(policy string, admitted bool) {
	verdict := VerdictDenied
	if admitted {
		verdict = VerdictAdmitted
	}
	AdmissionsTotal.WithLabelValues(policy, verdict).Inc()
}

// RecordSweep records the outcome of one reaper sweep.
func RecordSweep(evicted, remaining int, took time.Duration) {
	ReaperEvictionsTotal.Add(float64(evicted))
	ReaperSweepDuration.Observe(took.Seconds())
	WindowsActive.Set(float64(remaining))
}

// Observer forwards gate and reaper events to the package collectors.
// It satisfies ratelimit.Observer.
type Observer struct{}

// ObserveVerdict records an admission verdict.
func (Observer) ObserveVerdict(policy string, admitted bool) {
	RecordAdmission(policy, admitted)
}

// ObserveSweep records a reaper sweep.
func (Observer) ObserveSweep(evicted, remaining int, took time.Duration) {
	RecordSweep(evicted, remaining, took)
}
