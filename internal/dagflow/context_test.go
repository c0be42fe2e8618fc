package dagflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionContext_FinalizeAllSuccess(t *testing.T) {
	ec := newExecutionContext("dag", "exec", []string{"a", "b"})
	ec.SetStatus("a", NodeStatusSuccess)
	ec.SetStatus("b", NodeStatusSuccess)
	ec.finalize()

	assert.Equal(t, RunStatusSuccess, ec.overallStatus)
	assert.False(t, ec.EndedAt.IsZero())
}

func TestExecutionContext_FinalizeFailed(t *testing.T) {
	ec := newExecutionContext("dag", "exec", []string{"a", "b"})
	ec.SetStatus("a", NodeStatusSuccess)
	ec.SetStatus("b", NodeStatusFailed)
	ec.finalize()

	assert.Equal(t, RunStatusFailed, ec.overallStatus)
}

func TestExecutionContext_FinalizeCancelledWithoutFailure(t *testing.T) {
	ec := newExecutionContext("dag", "exec", []string{"a", "b"})
	ec.SetStatus("a", NodeStatusSuccess)
	ec.SetStatus("b", NodeStatusCancelled)
	ec.finalize()

	assert.Equal(t, RunStatusCancelled, ec.overallStatus)
}

func TestExecutionContext_SnapshotIsIndependentCopy(t *testing.T) {
	ec := newExecutionContext("dag", "exec", []string{"a"})
	ec.SetStatus("a", NodeStatusRunning)
	ec.SetResult("a", "first")

	snap := ec.Snapshot()
	ec.SetResult("a", "second")

	assert.Equal(t, "first", snap.NodeResult["a"])
}

func TestExecutionContext_SetErrorRecordsMessage(t *testing.T) {
	ec := newExecutionContext("dag", "exec", []string{"a"})
	ec.SetError("a", errors.New("boom"))

	snap := ec.Snapshot()
	assert.Equal(t, "boom", snap.NodeError["a"])
}
