package dagflow

import (
	"sync"
	"time"
)

// ExecutionContext is the per-run state owned exclusively by the scheduler
// for the duration of one run. Its thread-safe accessors follow the
// teacher's Task struct convention (ai/agents/orchestrator/types.go): an
// embedded mutex plus Get/Set pairs, so concurrent status() callers during
// an in-flight run observe a consistent snapshot without racing the
// scheduler (spec §4.7, §5).
type ExecutionContext struct {
	DAGID       string
	ExecutionID string
	StartedAt   time.Time
	EndedAt     time.Time

	mu               sync.RWMutex
	overallStatus    RunStatus
	nodeStatus       map[string]NodeStatus
	nodeResult       map[string]any
	nodeError        map[string]string
	nodeStartedAt    map[string]time.Time
	nodeEndedAt      map[string]time.Time
	metrics          map[string]float64
	anyCancelled     bool
}

func newExecutionContext(dagID, executionID string, nodeNames []string) *ExecutionContext {
	ec := &ExecutionContext{
		DAGID:         dagID,
		ExecutionID:   executionID,
		StartedAt:     time.Now(),
		overallStatus: RunStatusRunning,
		nodeStatus:    make(map[string]NodeStatus, len(nodeNames)),
		nodeResult:    make(map[string]any, len(nodeNames)),
		nodeError:     make(map[string]string, len(nodeNames)),
		nodeStartedAt: make(map[string]time.Time, len(nodeNames)),
		nodeEndedAt:   make(map[string]time.Time, len(nodeNames)),
		metrics:       make(map[string]float64),
	}
	for _, name := range nodeNames {
		ec.nodeStatus[name] = NodeStatusPending
	}
	return ec
}

// SetStatus transitions a node's status. Status transitions never
// regress (spec §5); callers are expected to only move forward.
func (ec *ExecutionContext) SetStatus(node string, status NodeStatus) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.nodeStatus[node] = status
	switch status {
	case NodeStatusRunning:
		ec.nodeStartedAt[node] = time.Now()
	case NodeStatusCancelled:
		ec.anyCancelled = true
		ec.nodeEndedAt[node] = time.Now()
	default:
		if status.IsTerminal() {
			ec.nodeEndedAt[node] = time.Now()
		}
	}
}

// Status returns a node's current status.
func (ec *ExecutionContext) Status(node string) NodeStatus {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.nodeStatus[node]
}

// SetResult records a node's successful result.
func (ec *ExecutionContext) SetResult(node string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.nodeResult[node] = value
}

// SetError records a node's failure description.
func (ec *ExecutionContext) SetError(node string, err error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if err != nil {
		ec.nodeError[node] = err.Error()
	}
}

// NodeStartedAt returns when a node transitioned to running, if it has.
func (ec *ExecutionContext) NodeStartedAt(node string) (time.Time, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	t, ok := ec.nodeStartedAt[node]
	return t, ok
}

// NodeEndedAt returns when a node reached a terminal status, if it has.
func (ec *ExecutionContext) NodeEndedAt(node string) (time.Time, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	t, ok := ec.nodeEndedAt[node]
	return t, ok
}

// allTerminal reports whether every tracked node has reached a terminal
// status.
func (ec *ExecutionContext) allTerminal() bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	for _, s := range ec.nodeStatus {
		if !s.IsTerminal() {
			return false
		}
	}
	return true
}

// runningCount returns how many nodes are currently in the running status.
func (ec *ExecutionContext) runningCount() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	n := 0
	for _, s := range ec.nodeStatus {
		if s == NodeStatusRunning {
			n++
		}
	}
	return n
}

// finalize sets EndedAt, derives overall status from final per-node
// statuses, and records the per-run metrics nodes_executed (nodes that
// ended in success or failed), successful_nodes, failed_nodes and
// wall_duration (seconds), per spec §4.7.
func (ec *ExecutionContext) finalize() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.EndedAt = time.Now()

	anyFailed := false
	anyCancelled := ec.anyCancelled
	allSuccess := true
	succeeded, failed := 0, 0
	for _, s := range ec.nodeStatus {
		if s != NodeStatusSuccess {
			allSuccess = false
		} else {
			succeeded++
		}
		if s == NodeStatusFailed || s == NodeStatusSkipped {
			anyFailed = true
		}
		if s == NodeStatusFailed {
			failed++
		}
		if s == NodeStatusCancelled {
			anyCancelled = true
		}
	}
	ec.metrics["nodes_executed"] = float64(succeeded + failed)
	ec.metrics["successful_nodes"] = float64(succeeded)
	ec.metrics["failed_nodes"] = float64(failed)
	ec.metrics["wall_duration"] = ec.EndedAt.Sub(ec.StartedAt).Seconds()

	switch {
	case allSuccess:
		ec.overallStatus = RunStatusSuccess
	case anyCancelled && !anyFailed:
		ec.overallStatus = RunStatusCancelled
	default:
		ec.overallStatus = RunStatusFailed
	}
}

func (ec *ExecutionContext) setMetric(name string, value float64) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.metrics[name] = value
}

// Snapshot returns an immutable copy of the context suitable for returning
// to callers across API boundaries (spec §3: "immutable from the caller's
// perspective" after return).
func (ec *ExecutionContext) Snapshot() *ContextSnapshot {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	snap := &ContextSnapshot{
		DAGID:         ec.DAGID,
		ExecutionID:   ec.ExecutionID,
		StartedAt:     ec.StartedAt,
		EndedAt:       ec.EndedAt,
		OverallStatus: ec.overallStatus,
		NodeStatus:    make(map[string]NodeStatus, len(ec.nodeStatus)),
		NodeResult:    make(map[string]any, len(ec.nodeResult)),
		NodeError:     make(map[string]string, len(ec.nodeError)),
		Metrics:       make(map[string]float64, len(ec.metrics)),
	}
	for k, v := range ec.nodeStatus {
		snap.NodeStatus[k] = v
	}
	for k, v := range ec.nodeResult {
		snap.NodeResult[k] = v
	}
	for k, v := range ec.nodeError {
		snap.NodeError[k] = v
	}
	for k, v := range ec.metrics {
		snap.Metrics[k] = v
	}
	return snap
}

// ContextSnapshot is an immutable, point-in-time copy of an ExecutionContext.
// Task implementations receive one instead of the live, mutable context so
// that reads during a run never race the scheduler's writes (spec §4.3).
type ContextSnapshot struct {
	DAGID         string
	ExecutionID   string
	StartedAt     time.Time
	EndedAt       time.Time
	OverallStatus RunStatus
	NodeStatus    map[string]NodeStatus
	NodeResult    map[string]any
	NodeError     map[string]string
	Metrics       map[string]float64
}
