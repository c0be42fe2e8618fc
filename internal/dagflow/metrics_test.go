package dagflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_CacheCounters(t *testing.T) {
	m := NewMetrics()
	m.recordCacheHit()
	m.recordCacheHit()
	m.recordCacheMiss()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
}

func TestMetrics_RunCompletionCounters(t *testing.T) {
	m := NewMetrics()

	ec1 := newExecutionContext("d", "e1", []string{"a"})
	ec1.SetStatus("a", NodeStatusSuccess)
	ec1.finalize()
	m.recordRunCompletion(ec1)

	ec2 := newExecutionContext("d", "e2", []string{"a"})
	ec2.SetStatus("a", NodeStatusFailed)
	ec2.finalize()
	m.recordRunCompletion(ec2)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.SuccessfulExecutions)
	assert.Equal(t, int64(1), snap.FailedExecutions)
}

func TestMetrics_NeverDecrease(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 5; i++ {
		m.recordCacheHit()
	}
	snap := m.Snapshot()
	assert.Equal(t, int64(5), snap.CacheHits)
}
