// Package backoff computes delays between retry attempts.
package backoff

import (
	"math"
	"time"
)

// Func returns the delay to wait after the given failed attempt (1-based).
type Func func(attempt int) time.Duration

// Linear waits attempt*base: base, 2*base, 3*base...
// A zero Max leaves the delay uncapped.
func Linear(base, maxDelay time.Duration) Func {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := time.Duration(attempt) * base
		if maxDelay > 0 && d > maxDelay {
			return maxDelay
		}
		return d
	}
}

// Exponential doubles from initial on every attempt, capped at maxDelay.
// Zero values default to 100ms and 5s.
func Exponential(initial, maxDelay time.Duration) Func {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return func(attempt int) time.Duration {
		if attempt < 1 {
			return initial
		}
		d := float64(initial) * math.Pow(2.0, float64(attempt-1))
		if d > float64(maxDelay) {
			return maxDelay
		}
		return time.Duration(d)
	}
}

// Constant always waits d.
func Constant(d time.Duration) Func {
	return func(int) time.Duration { return d }
}
