package dagflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClassifier_TransientKeywords(t *testing.T) {
	assert.True(t, DefaultClassifier(errors.New("connection refused")))
	assert.True(t, DefaultClassifier(errors.New("rate limit exceeded")))
}

func TestDefaultClassifier_PermanentKeywords(t *testing.T) {
	assert.False(t, DefaultClassifier(errors.New("invalid argument")))
	assert.False(t, DefaultClassifier(errors.New("resource not found")))
}

func TestDefaultClassifier_UnknownDefaultsRetryable(t *testing.T) {
	assert.True(t, DefaultClassifier(errors.New("something weird happened")))
}

func TestDefaultClassifier_NonRetryableAlwaysFalse(t *testing.T) {
	err := NonRetryable(errors.New("connection refused"))
	assert.False(t, DefaultClassifier(err))
}

func TestDefaultClassifier_TimeoutErrorRetryable(t *testing.T) {
	err := &TimeoutError{Node: "n", Timeout: "1s"}
	assert.True(t, DefaultClassifier(err))
}

func TestUnknownTaskError_WrapsErrUnknownTask(t *testing.T) {
	err := &UnknownTaskError{Node: "n", TaskName: "ghost"}
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.False(t, errors.Is(err, ErrSchema))
	assert.Contains(t, err.Error(), "ghost")
}

func TestTaskError_WrapsErrTaskAndUnderlyingCause(t *testing.T) {
	cause := errors.New("disk full")
	err := &TaskError{Node: "n", Err: cause}
	assert.ErrorIs(t, err, ErrTask)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestCyclicGraphError_ErrorMessage(t *testing.T) {
	err := &CyclicGraphError{Cycles: [][]string{{"a", "b", "a"}}}
	assert.Contains(t, err.Error(), "a->b->a")
	assert.ErrorIs(t, err, ErrCyclicGraph)
}
