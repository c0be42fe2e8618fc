package dagflow

import (
	"errors"
	"fmt"
	"net"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel error kinds, named after spec §7.
var (
	// ErrSchema is returned by Load when the workflow description is malformed.
	ErrSchema = errors.New("schema error")

	// ErrCyclicGraph is returned by Load when the validator finds cycles.
	ErrCyclicGraph = errors.New("cyclic graph")

	// ErrUnknownTask fails a node whose task_name is not in the registry.
	ErrUnknownTask = errors.New("unknown task")

	// ErrTimeout marks an attempt that exceeded its per-attempt deadline.
	ErrTimeout = errors.New("task timeout")

	// ErrTask marks a task implementation signalling failure.
	ErrTask = errors.New("task error")

	// ErrCancelled marks a node whose execution observed a cancel signal.
	ErrCancelled = errors.New("execution cancelled")

	// ErrUpstreamSkipped marks a node skipped under continue_on_failure
	// because a predecessor failed or was itself skipped.
	ErrUpstreamSkipped = errors.New("upstream skipped")

	// ErrNotFound is returned by Status for an unknown execution id.
	ErrNotFound = errors.New("execution not found")
)

// SchemaError reports a malformed workflow description, naming the field
// or node at fault.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string { return fmt.Sprintf("schema error: %s", e.Reason) }
func (e *SchemaError) Unwrap() error { return ErrSchema }

func newSchemaError(format string, args ...any) error {
	return pkgerrors.WithStack(&SchemaError{Reason: fmt.Sprintf(format, args...)})
}

// CyclicGraphError reports the cycles found by the validator (one per DFS
// back edge; see Graph.findCycles).
type CyclicGraphError struct {
	Cycles [][]string
}

func (e *CyclicGraphError) Error() string {
	parts := make([]string, 0, len(e.Cycles))
	for _, cycle := range e.Cycles {
		parts = append(parts, strings.Join(cycle, "->"))
	}
	return fmt.Sprintf("cyclic graph: %s", strings.Join(parts, ", "))
}
func (e *CyclicGraphError) Unwrap() error { return ErrCyclicGraph }

func newCyclicGraphError(cycles [][]string) error {
	return pkgerrors.WithStack(&CyclicGraphError{Cycles: cycles})
}

// UnknownTaskError reports that a node's task_name has no registered
// implementation. Unlike SchemaError (surfaced from Load, before a run
// ever starts), this fails only the one node at dispatch time and is
// governed by the workflow's failure policy like any other node error
// (spec §7).
type UnknownTaskError struct {
	Node     string
	TaskName string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("node %s: unknown task %q", e.Node, e.TaskName)
}
func (e *UnknownTaskError) Unwrap() error { return ErrUnknownTask }

// TaskError wraps an ordinary failure returned by a task implementation,
// distinguishing it from the engine's own structural errors (schema,
// cycle, timeout, unknown task) while preserving the original error via
// Unwrap for errors.Is/As.
type TaskError struct {
	Node string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("node %s: %s", e.Node, e.Err) }
func (e *TaskError) Unwrap() error { return e.Err }

// Is reports ErrTask so callers can test `errors.Is(err, ErrTask)` without
// needing to know the original cause.
func (e *TaskError) Is(target error) bool { return target == ErrTask }

// TimeoutError reports that a single attempt exceeded its deadline.
type TimeoutError struct {
	Node    string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node %s: attempt exceeded timeout %s", e.Node, e.Timeout)
}
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// NonRetryableError wraps a task error to force the Retry/Timeout Engine to
// propagate immediately without consuming the remaining attempt budget.
// See SPEC_FULL.md open question 3 / DESIGN.md decision 3.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable wraps err so the Retry/Timeout Engine treats it as
// non-recoverable regardless of what the default Classifier would decide.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// Classifier decides whether a task error is worth retrying. The default,
// DefaultClassifier, is a keyword/sentinel based heuristic ported from the
// teacher's ai/agents/error_class.go ClassifyError/isTransientError.
type Classifier func(err error) bool

// DefaultClassifier reports whether err looks transient and therefore
// retryable. A NonRetryableError always short-circuits to false.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}

	var nonRetryable *NonRetryableError
	if errors.As(err, &nonRetryable) {
		return false
	}

	if errors.Is(err, ErrCancelled) {
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	for _, kw := range permanentKeywords {
		if strings.Contains(msg, kw) {
			return false
		}
	}

	// Unknown errors default to retryable: the engine's job is to exhaust
	// the declared attempt budget, not to guess intent (spec §9 delegates
	// the taxonomy to the task implementation; an unclassified error is
	// the common case for a stub/test task).
	return true
}

var transientKeywords = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"429", "502", "503", "504",
	"i/o timeout",
	"network is unreachable",
	"no route to host",
	"transient",
}

var permanentKeywords = []string{
	"invalid",
	"not found",
	"unauthorized",
	"forbidden",
	"required",
	"schema error",
}
