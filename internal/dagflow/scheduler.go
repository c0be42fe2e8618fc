package dagflow

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Scheduler drives one execution of a loaded graph to completion, honoring
// the graph's layering, the caller's concurrency discipline, and the
// workflow's failure policy. Generalized from the teacher's dag_scheduler.go
// layer-by-layer dispatch loop, replacing its fixed "stage" vocabulary with
// the spec's topological layers and adding the cache/retry integration the
// teacher's scheduler delegates to its executor.
type Scheduler struct {
	graph    *Graph
	registry *TaskRegistry
	cache    *ResultCache
	metrics  *Metrics
	classify Classifier
	observer Observer
}

// NewScheduler wires the components a run needs. classify may be nil, in
// which case DefaultClassifier governs retry eligibility.
func NewScheduler(graph *Graph, registry *TaskRegistry, cache *ResultCache, metrics *Metrics, classify Classifier) *Scheduler {
	if classify == nil {
		classify = DefaultClassifier
	}
	return &Scheduler{graph: graph, registry: registry, cache: cache, metrics: metrics, classify: classify}
}

// SetObserver attaches obs so every Run call emits the eight event kinds
// spec.md §6 documents (node_started, node_cache_hit, node_cache_miss,
// node_attempt_failed, node_succeeded, node_failed, run_started,
// run_completed) to it, in addition to the unconditional slog logging.
// A nil observer (the zero value) disables callback delivery without
// disabling the slog side.
func (s *Scheduler) SetObserver(obs Observer) {
	s.observer = obs
}

// computeLayers groups every node into topological layers per spec §4.6.1:
// layer 0 holds nodes with no predecessors, layer k+1 holds nodes whose
// remaining predecessors all sit in layers ≤ k. Any node left over once no
// further progress can be made (only possible for an inconsistent input
// set, never for an acyclic graph) is appended as one terminal layer so the
// plan always terminates.
func computeLayers(g *Graph) [][]string {
	remaining := make(map[string]bool, len(g.Nodes))
	for name := range g.Nodes {
		remaining[name] = true
	}

	var layers [][]string
	for len(remaining) > 0 {
		deg := g.inDegreeWithin(remaining)
		var layer []string
		for name, d := range deg {
			if d == 0 {
				layer = append(layer, name)
			}
		}
		if len(layer) == 0 {
			// No progress possible: dump everything left as one layer.
			for name := range remaining {
				layer = append(layer, name)
			}
		}
		sort.Strings(layer)
		layers = append(layers, layer)
		for _, name := range layer {
			delete(remaining, name)
		}
	}
	return layers
}

// sequentialOrder flattens the layered plan into one topological order, for
// ModeSequential which ignores layer boundaries but still respects
// dependency order (spec §4.6.2).
func sequentialOrder(layers [][]string) []string {
	var order []string
	for _, layer := range layers {
		order = append(order, layer...)
	}
	return order
}

// run is the mutable state threaded through one Scheduler.Run call: the
// stop flag for stop_on_first_failure, and (for Hybrid mode) the run-wide
// semaphore bounding in-flight nodes.
type run struct {
	settings Settings
	inputs   map[string]any
	stopped  bool
	sem      chan struct{} // nil unless mode == ModeHybrid
	disp     *eventDispatcher
}

// Run executes the graph against ec until every node reaches a terminal
// status or the run is aborted by the failure policy or cancellation.
// inputs is the single, run-wide input mapping passed uniformly to every
// task (the core does not wire one node's output into another's input -
// spec §1 Non-goals).
func (s *Scheduler) Run(ctx context.Context, ec *ExecutionContext, settings Settings, mode Mode, inputs map[string]any) {
	disp := newEventDispatcher(ec.ExecutionID, s.observer)
	defer disp.close()

	r := &run{
		settings: settings,
		inputs:   inputs,
		disp:     disp,
	}
	if mode == ModeHybrid {
		width := settings.MaxConcurrentTasks
		if width <= 0 {
			width = 1
		}
		r.sem = make(chan struct{}, width)
	}

	disp.emit("run_started", "", map[string]any{"dag_id": ec.DAGID, "mode": string(mode)})

	layers := computeLayers(s.graph)

	if mode == ModeSequential {
		for _, name := range sequentialOrder(layers) {
			if r.stopped || ctx.Err() != nil {
				s.cancelRemaining(ec, []string{name})
				continue
			}
			s.dispatchLayer(ctx, ec, r, []string{name})
		}
	} else {
		for _, layer := range layers {
			if r.stopped || ctx.Err() != nil {
				s.cancelRemaining(ec, layer)
				continue
			}
			s.dispatchLayer(ctx, ec, r, layer)
		}
	}

	ec.finalize()
	s.metrics.recordRunCompletion(ec)
	disp.emit("run_completed", "", map[string]any{"dag_id": ec.DAGID, "status": string(ec.Snapshot().OverallStatus)})
}

// dispatchLayer runs every node in batch concurrently (Parallel and Hybrid)
// or one at a time (Sequential's batches are always length 1), applying the
// cascade-skip rule before dispatch and the stop_on_first_failure check
// after. It always waits for every attempted node in the batch to reach a
// terminal status before returning (spec §4.6.2's per-layer barrier).
func (s *Scheduler) dispatchLayer(ctx context.Context, ec *ExecutionContext, r *run, batch []string) {
	var toRun []string
	for _, name := range batch {
		if s.shouldSkip(ec, name) {
			ec.SetStatus(name, NodeStatusSkipped)
			ec.SetError(name, ErrUpstreamSkipped)
			continue
		}
		toRun = append(toRun, name)
	}
	if len(toRun) == 0 {
		return
	}

	grp, _ := errgroup.WithContext(context.Background())
	for _, name := range toRun {
		name := name
		grp.Go(func() error {
			if r.sem != nil {
				select {
				case r.sem <- struct{}{}:
				case <-ctx.Done():
					ec.SetStatus(name, NodeStatusCancelled)
					ec.SetError(name, ErrCancelled)
					return nil
				}
				defer func() { <-r.sem }()
			}
			s.runNode(ctx, ec, name, r.inputs, r.disp)
			return nil
		})
	}
	_ = grp.Wait()

	if r.settings.FailurePolicy == FailurePolicyStopOnFirstFailure {
		for _, name := range toRun {
			if ec.Status(name) == NodeStatusFailed {
				r.stopped = true
				break
			}
		}
	}
}

// shouldSkip reports whether name has a predecessor that already failed,
// was cancelled, or was itself skipped (the cascade-skip rule of continue_on_failure, spec
// §4.6.5). Checking live status rather than a separately tracked set lets
// the cascade propagate transitively through already-skipped ancestors
// without extra bookkeeping.
func (s *Scheduler) shouldSkip(ec *ExecutionContext, name string) bool {
	for _, pred := range s.graph.Predecessors(name) {
		switch ec.Status(pred) {
		case NodeStatusFailed, NodeStatusSkipped, NodeStatusCancelled:
			return true
		}
	}
	return false
}

// cancelRemaining marks every node in names cancelled, used when the run
// has been stopped (failure policy or external cancellation) before a
// layer was dispatched.
func (s *Scheduler) cancelRemaining(ec *ExecutionContext, names []string) {
	for _, name := range names {
		if ec.Status(name).IsTerminal() {
			continue
		}
		ec.SetStatus(name, NodeStatusCancelled)
		ec.SetError(name, ErrCancelled)
	}
}

// runNode executes spec §4.6.3's per-node dispatch: cache check, then
// retry-wrapped task invocation, then result/error recording.
func (s *Scheduler) runNode(ctx context.Context, ec *ExecutionContext, name string, inputs map[string]any, disp *eventDispatcher) {
	node := s.graph.Nodes[name]
	ec.SetStatus(name, NodeStatusRunning)
	disp.emit("node_started", name, map[string]any{"task": node.TaskName})

	key := cacheKey(node, inputs)
	if node.CachePolicy.Enabled {
		if entry, ok := s.cache.Lookup(key); ok {
			s.metrics.recordCacheHit()
			ec.SetResult(name, entry.Value)
			ec.SetStatus(name, NodeStatusSuccess)
			disp.emit("node_cache_hit", name, map[string]any{"key": key})
			disp.emit("node_succeeded", name, map[string]any{"cached": true})
			return
		}
		s.metrics.recordCacheMiss()
		disp.emit("node_cache_miss", name, map[string]any{"key": key})
	}

	impl, ok := s.registry.Lookup(node.TaskName)
	if !ok {
		ec.SetError(name, &UnknownTaskError{Node: name, TaskName: node.TaskName})
		ec.SetStatus(name, NodeStatusFailed)
		disp.emit("node_failed", name, map[string]any{"err": "unknown task " + node.TaskName})
		return
	}

	result, err := runWithRetry(ctx, name, node.RetryPolicy, node.Timeout, s.classify, disp, func(attemptCtx context.Context) (any, error) {
		return impl(attemptCtx, inputs, ec.Snapshot())
	})

	if err != nil {
		if ctx.Err() == context.Canceled {
			ec.SetStatus(name, NodeStatusCancelled)
			ec.SetError(name, err)
			slog.Warn("dagflow: node cancelled", "node", name, "err", err)
			return
		}
		ec.SetStatus(name, NodeStatusFailed)
		var timeoutErr *TimeoutError
		if !errors.As(err, &timeoutErr) {
			err = &TaskError{Node: name, Err: err}
		}
		ec.SetError(name, err)
		slog.Warn("dagflow: node failed", "node", name, "err", err)
		disp.emit("node_failed", name, map[string]any{"err": err.Error()})
		return
	}

	ec.SetResult(name, result)
	if node.CachePolicy.Enabled {
		s.cache.Store(key, result, node.CachePolicy.TTL, name)
	}
	ec.SetStatus(name, NodeStatusSuccess)
	disp.emit("node_succeeded", name, map[string]any{"cached": false})
}
