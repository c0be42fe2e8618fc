package dagflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskRegistry_RegisterAndLookup(t *testing.T) {
	r := &TaskRegistry{tasks: make(map[string]TaskFunc)}
	r.Register("echo", func(_ context.Context, inputs map[string]any, _ *ContextSnapshot) (any, error) {
		return inputs["value"], nil
	})

	impl, ok := r.Lookup("echo")
	assert.True(t, ok)
	result, err := impl(context.Background(), map[string]any{"value": 42}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestTaskRegistry_LookupMissing(t *testing.T) {
	r := &TaskRegistry{tasks: make(map[string]TaskFunc)}
	_, ok := r.Lookup("missing")
	assert.False(t, ok)
}

func TestNewTaskRegistry_SeedsBuiltins(t *testing.T) {
	r := NewTaskRegistry()
	for _, name := range []string{
		"start_job", "complete_job", "make_ai_request", "process_ai_response",
		"execute_tool", "validate_security", "transform_data", "check_health",
	} {
		_, ok := r.Lookup(name)
		assert.True(t, ok, "expected built-in task %q to be registered", name)
	}
}
