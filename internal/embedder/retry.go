package embedder

import (
	"context"
	"time"
)

// retryPolicy controls retryWithBackoff
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
}

var defaultRetryPolicy = retryPolicy{
	attempts:  3,
	baseDelay: 200 * time.Millisecond,
}

// retryWithBackoff runs fn up to policy.attempts times, doubling the delay
// between attempts. Context cancellation cuts the wait short.
func retryWithBackoff[T any](ctx context.Context, policy retryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := policy.baseDelay
	for attempt := 0; attempt < policy.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}
