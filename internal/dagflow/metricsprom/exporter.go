// Package metricsprom exports the engine's run/cache counters in
// Prometheus format.
package metricsprom

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/dagflow/internal/dagflow"
)

// Exporter mirrors counters held by dagflow.Metrics as Prometheus
// collectors. Structured after the teacher's ai/metrics.PrometheusExporter
// (one struct per exporter, MustRegister on construction, GetHandler for
// the HTTP surface), re-namespaced from "divinesense/ai" to "dagflow/engine"
// and trimmed to the counters this engine actually tracks.
type Exporter struct {
	registry *prometheus.Registry

	totalExecutions      prometheus.Counter
	successfulExecutions prometheus.Counter
	failedExecutions     prometheus.Counter
	cacheHits            prometheus.Counter
	cacheMisses          prometheus.Counter
	executionDuration    prometheus.Histogram
	nodeDuration         *prometheus.HistogramVec
	nodeStatus           *prometheus.CounterVec

	mu   sync.Mutex
	last dagflow.MetricsSnapshot
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one).
	Registry *prometheus.Registry

	// DurationBuckets for run/node latency histograms, in seconds.
	DurationBuckets []float64
}

// DefaultConfig returns sensible histogram buckets for workflow runs.
func DefaultConfig() Config {
	return Config{
		DurationBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// New creates an exporter and registers its collectors.
func New(cfg Config) *Exporter {
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultConfig().DurationBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.totalExecutions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dagflow",
		Subsystem: "engine",
		Name:      "executions_total",
		Help:      "Total number of workflow executions completed.",
	})
	e.successfulExecutions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dagflow",
		Subsystem: "engine",
		Name:      "executions_successful_total",
		Help:      "Total number of workflow executions that ended with overall status success.",
	})
	e.failedExecutions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dagflow",
		Subsystem: "engine",
		Name:      "executions_failed_total",
		Help:      "Total number of workflow executions that did not end in success.",
	})
	e.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dagflow",
		Subsystem: "engine",
		Name:      "cache_hits_total",
		Help:      "Total number of result cache lookups that hit a live entry.",
	})
	e.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dagflow",
		Subsystem: "engine",
		Name:      "cache_misses_total",
		Help:      "Total number of result cache lookups that missed or found an expired entry.",
	})
	e.executionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dagflow",
		Subsystem: "engine",
		Name:      "execution_duration_seconds",
		Help:      "Wall-clock duration of a workflow execution, start to finalize.",
		Buckets:   cfg.DurationBuckets,
	})
	e.nodeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dagflow",
		Subsystem: "engine",
		Name:      "node_duration_seconds",
		Help:      "Wall-clock duration of a single node's dispatch, from running to terminal.",
		Buckets:   cfg.DurationBuckets,
	}, []string{"node", "status"})
	e.nodeStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dagflow",
		Subsystem: "engine",
		Name:      "node_status_total",
		Help:      "Count of node terminal statuses observed, by node and status.",
	}, []string{"node", "status"})

	registry.MustRegister(
		e.totalExecutions,
		e.successfulExecutions,
		e.failedExecutions,
		e.cacheHits,
		e.cacheMisses,
		e.executionDuration,
		e.nodeDuration,
		e.nodeStatus,
	)

	return e
}

// ObserveRun records a single terminated execution's outcome against the
// histogram/counter collectors: the run's duration and each node's terminal
// status. Per-node durations are not recorded here; NodeDuration records
// those.
func (e *Exporter) ObserveRun(snap *dagflow.ContextSnapshot) {
	e.executionDuration.Observe(snap.EndedAt.Sub(snap.StartedAt).Seconds())
	for node, status := range snap.NodeStatus {
		e.nodeStatus.WithLabelValues(node, string(status)).Inc()
	}
}

// NodeDuration records how long a single node's dispatch took.
func (e *Exporter) NodeDuration(node string, status string, d time.Duration) {
	e.nodeDuration.WithLabelValues(node, status).Observe(d.Seconds())
}

// Sync folds a MetricsSnapshot from the engine's aggregator into the
// exporter's monotonic counters, advancing each Prometheus counter by the
// delta since the last Sync call (Prometheus counters only move forward;
// the engine's own snapshot is the source of truth for absolute values).
func (e *Exporter) Sync(snap dagflow.MetricsSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalExecutions.Add(float64(snap.TotalExecutions - e.last.TotalExecutions))
	e.successfulExecutions.Add(float64(snap.SuccessfulExecutions - e.last.SuccessfulExecutions))
	e.failedExecutions.Add(float64(snap.FailedExecutions - e.last.FailedExecutions))
	e.cacheHits.Add(float64(snap.CacheHits - e.last.CacheHits))
	e.cacheMisses.Add(float64(snap.CacheMisses - e.last.CacheMisses))
	e.last = snap
}

// Handler returns the HTTP handler serving Prometheus text exposition.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
