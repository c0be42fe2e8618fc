package dagflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithRetry_SucceedsOnThirdAttempt(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 5 * time.Millisecond}

	result, err := runWithRetry(context.Background(), "flaky", policy, 0, DefaultClassifier, nil, func(_ context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient failure")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestRunWithRetry_ExhaustsBudget(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}

	_, err := runWithRetry(context.Background(), "always_fails", policy, 0, DefaultClassifier, nil, func(_ context.Context) (any, error) {
		attempts++
		return nil, errors.New("transient failure")
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRunWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}

	_, err := runWithRetry(context.Background(), "permanent", policy, 0, DefaultClassifier, nil, func(_ context.Context) (any, error) {
		attempts++
		return nil, NonRetryable(errors.New("bad request"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRunWithRetry_TimeoutPerAttempt(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}

	_, err := runWithRetry(context.Background(), "slow", policy, 20*time.Millisecond, DefaultClassifier, nil, func(ctx context.Context) (any, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return "too slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	require.Error(t, err)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "slow", timeoutErr.Node)
}

func TestRunWithRetry_NonCooperativeBlockingTaskStillTimesOut(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond}

	start := time.Now()
	_, err := runWithRetry(context.Background(), "blocker", policy, 20*time.Millisecond, DefaultClassifier, nil, func(_ context.Context) (any, error) {
		// Ignores ctx entirely, simulating a task that never polls
		// ctx.Done() - only permitted because the worker goroutine,
		// not the caller, is left holding the bag.
		time.Sleep(500 * time.Millisecond)
		return "too late", nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestRunWithRetry_ExponentialBackoffDoubles(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 4, ExponentialBackoff: true}
	assert.Equal(t, time.Duration(4), policy.Delay(0))
	assert.Equal(t, time.Duration(8), policy.Delay(1))
	assert.Equal(t, time.Duration(16), policy.Delay(2))
}
