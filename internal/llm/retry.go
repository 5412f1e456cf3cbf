package llm

import (
	"context"
	"time"
)

// RetryPolicy bounds collaborator calls: up to MaxAttempts tries, with
// attempt k waiting k × BaseDelay before retrying.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy matches the collaborator call budget used across
// the pipeline.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Retry runs fn until it succeeds, the policy is exhausted, or ctx is
// done. Non-retryable errors abort immediately; the last error is
// returned so the call site can degrade to its local fallback.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(attempt) * policy.BaseDelay):
		}
	}
	return zero, lastErr
}
