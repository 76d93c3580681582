// Package retry runs operations against slow or flaky external services with
// a per-attempt timeout and exponential backoff between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how long and how often an operation is attempted.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

// DefaultPolicy returns a policy of three retries starting at 200ms,
// each attempt bounded to ten seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		AttemptTimeout:  10 * time.Second,
	}
}

// Notify is called after a failed attempt, before waiting to retry.
type Notify func(attempt int, err error, wait time.Duration)

// Permanent marks err as non-retryable. Do returns the wrapped error immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls fn until it succeeds, returns a Permanent error, the retry budget
// is exhausted, or ctx is done. Each call to fn receives a context bounded by
// the policy's AttemptTimeout.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), notify Notify) (T, error) {
	var result T
	attempt := 0

	op := func() error {
		attempt++
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		v, err := fn(attemptCtx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result = v
		return nil
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}
	}

	err := backoff.RetryNotify(op, p.backOff(ctx), onRetry)
	return result, err
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)
}
