package dagflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Engine is the facade external collaborators use (spec §6 Execution API):
// it owns the loaded workflows, the shared task registry, result cache and
// metrics aggregator, and the table of past/in-flight execution contexts.
// Generalized from the teacher's top-level Orchestrator type
// (ai/agents/orchestrator/orchestrator.go), which plays the same role of
// "one object the HTTP layer talks to."
type Engine struct {
	registry *TaskRegistry
	cache    *ResultCache
	metrics  *Metrics
	classify Classifier
	observer Observer

	mu        sync.RWMutex
	workflows map[string]*LoadedWorkflow

	execMu     sync.RWMutex
	executions map[string]*ExecutionContext
}

// NewEngine constructs a ready-to-use engine with the built-in task set
// registered. classify may be nil to use DefaultClassifier.
func NewEngine(classify Classifier) *Engine {
	return &Engine{
		registry:   NewTaskRegistry(),
		cache:      NewResultCache(),
		metrics:    NewMetrics(),
		classify:   classify,
		workflows:  make(map[string]*LoadedWorkflow),
		executions: make(map[string]*ExecutionContext),
	}
}

// LoadWorkflow parses and validates a workflow description and registers
// it under dagID, replacing any prior workflow with that id (spec §6
// load()).
func (e *Engine) LoadWorkflow(dagID string, r io.Reader) (*LoadedWorkflow, error) {
	wf, err := Load(r)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.workflows[dagID] = wf
	e.mu.Unlock()
	slog.Info("dagflow: registered workflow", "dag_id", dagID)
	return wf, nil
}

// RegisterTask installs or replaces a task implementation (spec §6
// register_task()).
func (e *Engine) RegisterTask(name string, impl TaskFunc) {
	e.registry.Register(name, impl)
}

// Subscribe attaches obs so every subsequent Execute call's run emits the
// spec §6 event kinds to it, generalized from the teacher's per-call
// Orchestrator.Process(ctx, input, callback) into a standing subscription
// since this engine's Execute signature is spec-mandated (spec §6) and
// has no room for a per-call callback parameter. A nil obs clears any
// previously attached observer.
func (e *Engine) Subscribe(obs Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = obs
}

// ErrDAGNotFound is returned by Execute and other dagID-keyed lookups when
// no workflow has been loaded under that id.
var ErrDAGNotFound = fmt.Errorf("%w: dag not loaded", ErrNotFound)

// Execute runs dagID to completion and returns the terminal snapshot (spec
// §6 execute()). mode overrides the workflow's default_execution_mode when
// non-empty. rerunAffectedOnly is accepted for interface completeness;
// per spec §4.6.4/§9 the engine's affected-set policy is "all nodes", so it
// currently has no effect on which nodes run. Cancellation is expressed
// through ctx rather than a separate token type, per Go convention.
func (e *Engine) Execute(ctx context.Context, dagID string, inputs map[string]any, mode Mode, rerunAffectedOnly bool) (*ContextSnapshot, error) {
	e.mu.RLock()
	wf, ok := e.workflows[dagID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrDAGNotFound
	}

	if mode == "" {
		mode = wf.Settings.DefaultExecutionMode
	}
	if rerunAffectedOnly {
		slog.Debug("dagflow: rerun_affected_only requested, running full graph", "dag_id", dagID)
	}

	executionID := uuid.NewString()
	ec := newExecutionContext(dagID, executionID, wf.Graph.NodeNames())

	e.execMu.Lock()
	e.executions[executionID] = ec
	e.execMu.Unlock()

	slog.Info("dagflow: run started", "dag_id", dagID, "execution_id", executionID, "mode", mode)

	e.mu.RLock()
	observer := e.observer
	e.mu.RUnlock()

	scheduler := NewScheduler(wf.Graph, e.registry, e.cache, e.metrics, e.classify)
	scheduler.SetObserver(observer)
	scheduler.Run(ctx, ec, wf.Settings, mode, inputs)

	snap := ec.Snapshot()
	slog.Info("dagflow: run completed", "dag_id", dagID, "execution_id", executionID, "status", snap.OverallStatus)
	return snap, nil
}

// Status returns the snapshot of a past or in-flight execution (spec §6
// status()).
func (e *Engine) Status(executionID string) (*ContextSnapshot, error) {
	e.execMu.RLock()
	ec, ok := e.executions[executionID]
	e.execMu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return ec.Snapshot(), nil
}

// Metrics returns a stable copy of the engine's counters (spec §6
// metrics()).
func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// ClearCache drops every cached result (spec §6 clear_cache()).
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// Graph returns the loaded graph for dagID, for export/inspection
// endpoints.
func (e *Engine) Graph(dagID string) (*Graph, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	wf, ok := e.workflows[dagID]
	if !ok {
		return nil, ErrDAGNotFound
	}
	return wf.Graph, nil
}
