// Package metrics exposes the repository engine's Prometheus
// instrumentation: request counts and latency, mutation counts, and
// concurrency-controller gauges.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every Prometheus collector the server registers.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	MutationsTotal  *prometheus.CounterVec
	MutationErrors  *prometheus.CounterVec
	LockWaitSeconds *prometheus.HistogramVec
	ActiveMeshLocks prometheus.Gauge
}

// New registers and returns a fresh Metrics bundle. Calling New more
// than once in the same process will panic on duplicate registration,
// matching promauto's behaviour; callers should build exactly one
// instance per process.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshvcs_http_requests_total",
				Help: "Total number of HTTP requests served.",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meshvcs_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		MutationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshvcs_mutations_total",
				Help: "Total number of mutating repository operations.",
			},
			[]string{"operation", "mesh"},
		),
		MutationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshvcs_mutation_errors_total",
				Help: "Total number of mutating repository operations that failed.",
			},
			[]string{"operation", "code"},
		),
		LockWaitSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meshvcs_mesh_lock_wait_seconds",
				Help:    "Time spent waiting to acquire a mesh's mutex.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mesh"},
		),
		ActiveMeshLocks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshvcs_active_mesh_locks",
				Help: "Number of distinct mesh mutexes created this process.",
			},
		),
	}
}

// ObserveRequest records a completed HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveMutation records a completed mutating operation, and any
// error code it failed with.
func (m *Metrics) ObserveMutation(operation, mesh, errorCode string) {
	m.MutationsTotal.WithLabelValues(operation, mesh).Inc()
	if errorCode != "" {
		m.MutationErrors.WithLabelValues(operation, errorCode).Inc()
	}
}

// ObserveLockWait records time spent waiting on a mesh's mutex.
func (m *Metrics) ObserveLockWait(mesh string, duration time.Duration) {
	m.LockWaitSeconds.WithLabelValues(mesh).Observe(duration.Seconds())
}

// SetActiveMeshLocks reports the current number of distinct mesh
// mutexes that have been created.
func (m *Metrics) SetActiveMeshLocks(n int) {
	m.ActiveMeshLocks.Set(float64(n))
}
