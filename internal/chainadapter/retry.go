package chainadapter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the exponential backoff every adapter uses for
// transport-class errors (spec.md §4.3, §5 "Timeouts").
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig mirrors the 30s-per-call / bounded-ceiling
// guidance in spec.md §5.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// WithRetry runs op, retrying transient errors (IsTransient) with bounded
// exponential backoff. A revert (IsRevert) or any non-transient error is
// returned immediately without retry — reverts must never be retried,
// per spec.md §4.3. When the retry budget is exhausted, it returns an
// error that matches ErrChainDegraded under errors.Is and carries the
// last error in its message and its Cause method.
func WithRetry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = cfg.MaxElapsedTime

	var lastErr error
	retryable := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if IsRevert(err) || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(retryable, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	if IsRevert(err) || (lastErr != nil && IsRevert(lastErr)) {
		return lastErr
	}
	if !IsTransient(err) {
		return err
	}
	return &degradedError{cause: lastErr}
}

type degradedError struct{ cause error }

func (e *degradedError) Error() string { return ErrChainDegraded.Error() + ": " + e.cause.Error() }
func (e *degradedError) Unwrap() error { return ErrChainDegraded }
func (e *degradedError) Cause() error  { return e.cause }
