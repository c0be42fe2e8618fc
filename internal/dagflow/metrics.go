package dagflow

import (
	"sync"
	"time"
)

// Metrics is the process-wide counters aggregator described in spec §4.8:
// updated on every cache operation and on every run's completion, guarded
// by a single mutex so concurrent runs never lose an update. Modeled on
// the teacher's ai/metrics in-process counters (internal/metrics or
// ai/agents/orchestrator metrics block), generalized from per-expert
// counters to per-run/per-cache counters.
type Metrics struct {
	mu sync.Mutex

	totalExecutions      int64
	successfulExecutions int64
	failedExecutions     int64
	cacheHits            int64
	cacheMisses          int64
	totalExecutionTime   time.Duration
}

// NewMetrics creates a zeroed aggregator.
func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) recordCacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *Metrics) recordCacheMiss() {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
}

// recordRunCompletion folds one finished run's outcome into the aggregator,
// per spec §4.8's "run completion" update moment.
func (m *Metrics) recordRunCompletion(ec *ExecutionContext) {
	ec.mu.RLock()
	status := ec.overallStatus
	duration := ec.EndedAt.Sub(ec.StartedAt)
	ec.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalExecutions++
	m.totalExecutionTime += duration
	if status == RunStatusSuccess {
		m.successfulExecutions++
	} else {
		m.failedExecutions++
	}
}

// MetricsSnapshot is a stable, point-in-time copy of every counter.
type MetricsSnapshot struct {
	TotalExecutions      int64
	SuccessfulExecutions int64
	FailedExecutions     int64
	CacheHits            int64
	CacheMisses          int64
	TotalExecutionTime   time.Duration
}

// Snapshot returns a consistent copy of all counters for reporting (spec
// §4.8, and the engine's metrics() facade operation).
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		TotalExecutions:      m.totalExecutions,
		SuccessfulExecutions: m.successfulExecutions,
		FailedExecutions:     m.failedExecutions,
		CacheHits:            m.cacheHits,
		CacheMisses:          m.cacheMisses,
		TotalExecutionTime:   m.totalExecutionTime,
	}
}
