// Package retry runs an operation a bounded number of times with backoff
// between attempts.
package retry

import (
	"context"
	"time"

	"vmjobs/pkg/backoff"
)

// Policy configures Do. Zero values mean a single attempt with no delay.
type Policy struct {
	Attempts  int                          // total attempts including the first
	Delay     backoff.Func                 // wait after failed attempt n; nil waits 0
	Retryable func(err error) bool         // nil retries every error
	OnRetry   func(attempt int, err error) // called before each wait
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent or ctx is done. It returns the last error from fn, or the
// context error if ctx ended during a wait.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if attempt == attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if werr := wait(ctx, p.delay(attempt)); werr != nil {
			return werr
		}
	}
	return err
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Delay == nil {
		return 0
	}
	return p.Delay(attempt)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
