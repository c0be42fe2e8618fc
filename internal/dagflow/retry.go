package dagflow

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// attemptOutcome carries fn's return values across the worker goroutine
// boundary in runWithRetry.
type attemptOutcome struct {
	value any
	err   error
}

// runWithRetry invokes fn up to policy.MaxRetries+1 times, enforcing a
// per-attempt deadline when timeout > 0 and backing off between attempts
// per policy.Delay. classify decides whether a given attempt's error is
// worth retrying; the loop stops early on a non-retryable error or once
// the attempt budget is exhausted (spec §4.5). Generalized from the
// teacher's retry loop in ai/agents/orchestrator/dispatch.go, which wraps
// a single expert call the same way.
//
// Per spec §4.3/§5, a task may block without ever polling its context, so
// fn always runs on its own worker goroutine: the attempt loop selects
// between that worker's result and attemptCtx.Done(), meaning a
// non-cooperative task can never hang the retry loop, the enclosing
// layer barrier, or a Hybrid concurrency slot past the declared timeout.
// A worker that never returns leaks its goroutine until it eventually
// does (Go has no way to preempt it); outcomeCh is buffered so that
// goroutine is never itself blocked on the send.
//
// disp receives a node_attempt_failed event (spec §6) for every failed
// attempt, retried or not; it may be nil, in which case attempt failures
// are simply not reported anywhere (used by tests that only care about
// retry/timeout behavior).
func runWithRetry(
	ctx context.Context,
	node string,
	policy RetryPolicy,
	timeout time.Duration,
	classify Classifier,
	disp *eventDispatcher,
	fn func(ctx context.Context) (any, error),
) (any, error) {
	if classify == nil {
		classify = DefaultClassifier
	}

	var lastErr error
	attempts := policy.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptStart := time.Now()
		attemptCtx := ctx
		cancel := func() {}
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		outcomeCh := make(chan attemptOutcome, 1)
		go func() {
			v, err := fn(attemptCtx)
			outcomeCh <- attemptOutcome{value: v, err: err}
		}()

		var result any
		var err error
		select {
		case outcome := <-outcomeCh:
			result, err = outcome.value, outcome.err
		case <-attemptCtx.Done():
			err = attemptCtx.Err()
		}
		cancel()

		if err == nil {
			return result, nil
		}

		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = &TimeoutError{Node: node, Timeout: timeout.String()}
		}
		lastErr = err
		disp.emit("node_attempt_failed", node, map[string]any{
			"attempt": attempt,
			"elapsed": time.Since(attemptStart).String(),
			"err":     err.Error(),
		})

		var nonRetryable *NonRetryableError
		if errors.As(err, &nonRetryable) || !classify(err) {
			slog.Debug("dagflow: non-retryable failure", "node", node, "attempt", attempt, "err", err)
			return nil, lastErr
		}
		if attempt == attempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		slog.Debug("dagflow: retrying node", "node", node, "attempt", attempt+1, "delay", delay, "err", err)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil, lastErr
}
