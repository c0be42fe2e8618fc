package dagflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineTestWorkflow = `
nodes:
  start:
    task: start_job
  transform:
    task: transform_data
edges:
  - from: start
    to: transform
settings:
  default_execution_mode: sequential
`

func TestEngine_LoadAndExecute(t *testing.T) {
	e := NewEngine(nil)

	_, err := e.LoadWorkflow("demo", strings.NewReader(engineTestWorkflow))
	require.NoError(t, err)

	snap, err := e.Execute(context.Background(), "demo", map[string]any{
		"job_id":     "j1",
		"input_data": map[string]any{"a": "x"},
	}, "", false)
	require.NoError(t, err)

	assert.Equal(t, RunStatusSuccess, snap.OverallStatus)
	assert.Equal(t, NodeStatusSuccess, snap.NodeStatus["start"])
	assert.Equal(t, NodeStatusSuccess, snap.NodeStatus["transform"])

	status, err := e.Status(snap.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, snap.OverallStatus, status.OverallStatus)
}

func TestEngine_ExecuteUnknownDAG(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Execute(context.Background(), "missing", nil, ModeParallel, false)
	assert.ErrorIs(t, err, ErrDAGNotFound)
}

func TestEngine_StatusUnknownExecution(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Status("no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_MetricsAccumulateAcrossRuns(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.LoadWorkflow("demo", strings.NewReader(engineTestWorkflow))
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), "demo", map[string]any{"input_data": map[string]any{}}, "", false)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), "demo", map[string]any{"input_data": map[string]any{}}, "", false)
	require.NoError(t, err)

	snap := e.Metrics()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(2), snap.SuccessfulExecutions)
}

func TestEngine_SubscribeReceivesRunLifecycleEvents(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.LoadWorkflow("demo", strings.NewReader(engineTestWorkflow))
	require.NoError(t, err)

	obs := &collectingObserver{}
	e.Subscribe(obs.observe)

	snap, err := e.Execute(context.Background(), "demo", map[string]any{
		"job_id":     "j1",
		"input_data": map[string]any{"a": "x"},
	}, "", false)
	require.NoError(t, err)

	kinds := obs.kinds()
	assert.Contains(t, kinds, "run_started")
	assert.Contains(t, kinds, "run_completed")
	assert.Contains(t, kinds, "node_started")
	for _, ev := range obs.events {
		assert.Equal(t, snap.ExecutionID, ev.RunID)
	}
}

func TestEngine_ClearCache(t *testing.T) {
	e := NewEngine(nil)
	e.registry.Register("const_task", func(_ context.Context, _ map[string]any, _ *ContextSnapshot) (any, error) {
		return "v", nil
	})
	_, err := e.LoadWorkflow("cached", strings.NewReader(`
nodes:
  n:
    task: const_task
    cache_policy:
      enabled: true
      ttl: 1m
      key_strategy: by_name
`))
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), "cached", nil, "", false)
	require.NoError(t, err)

	e.ClearCache()
	_, ok := e.cache.Lookup("n")
	assert.False(t, ok)
}
