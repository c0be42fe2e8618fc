package dagflow

import (
	"context"
	"log/slog"
	"sync"
)

// TaskFunc is a uniform task contract: given the caller-supplied input
// mapping and a read-only snapshot of the run's Execution Context, it
// either returns a result or an error. Implementations may block or
// cooperatively suspend; the Retry/Timeout Engine runs each invocation
// on its own goroutine so both are treated uniformly (spec §4.3).
type TaskFunc func(ctx context.Context, inputs map[string]any, snapshot *ContextSnapshot) (any, error)

// TaskRegistry maps task names to implementations. It is safe for
// concurrent lookups; registration is expected only during setup, per
// spec §5's "shared-resource policy", mirroring the teacher's
// ExpertRegistry (ai/agents/orchestrator/types.go).
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]TaskFunc
}

// NewTaskRegistry creates an empty registry and seeds it with the built-in
// task stubs named in spec §4.3.
func NewTaskRegistry() *TaskRegistry {
	r := &TaskRegistry{tasks: make(map[string]TaskFunc)}
	registerBuiltinTasks(r)
	return r
}

// Register adds or replaces a task implementation under name.
func (r *TaskRegistry) Register(name string, impl TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = impl
	slog.Debug("dagflow: registered task", "task", name)
}

// Lookup returns the implementation registered under name, if any.
func (r *TaskRegistry) Lookup(name string) (TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.tasks[name]
	return impl, ok
}
