package hub

import (
	"context"
	"time"
)

// RetryPolicy retries an operation a fixed number of times with a fixed
// minimum wait between attempts. Retries are unconditional: any error from
// the wrapped call triggers another attempt until the budget is spent, at
// which point the last error is returned unchanged.
type RetryPolicy struct {
	Attempts int
	Wait     time.Duration
}

// Call classes. Describe and mutation calls back off longer than reads.
func defaultQueryRetry() RetryPolicy    { return RetryPolicy{Attempts: 3, Wait: 2 * time.Second} }
func defaultRowRetry() RetryPolicy      { return RetryPolicy{Attempts: 3, Wait: 3 * time.Second} }
func defaultDescribeRetry() RetryPolicy { return RetryPolicy{Attempts: 3, Wait: 30 * time.Second} }
func defaultMutationRetry() RetryPolicy { return RetryPolicy{Attempts: 3, Wait: 30 * time.Second} }

// Do runs fn until it succeeds or the attempt budget is exhausted. The wait
// between attempts is interruptible through ctx.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Wait):
		}
	}
	return lastErr
}
