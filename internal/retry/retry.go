package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy controls how often and how fast an operation is retried
type Policy struct {
	// Attempts is the total number of calls, including the first. Values below 1 mean 1.
	Attempts int

	// Delay before the second call; doubled after every failure
	Delay time.Duration

	// MaxDelay caps the doubled delay, 0 means no cap
	MaxDelay time.Duration
}

// backoff returns the pause after failed attempt i (0-based)
func (p Policy) backoff(i int) time.Duration {
	delay := p.Delay
	for ; i > 0 && delay < time.Hour; i-- {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do calls fn until it succeeds, the attempts are used up or ctx is done.
// onRetry, if not nil, is called with each error that will be retried.
func Do(ctx context.Context, p Policy, fn func() error, onRetry func(attempt int, err error)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		// Don't wait after the last attempt
		if i == attempts-1 {
			break
		}
		if onRetry != nil {
			onRetry(i+1, lastErr)
		}

		timer := time.NewTimer(p.backoff(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
