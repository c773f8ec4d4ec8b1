// Package testutil provides polling helpers and fake collaborators for tests.
package testutil

import (
	"testing"
	"time"
)

// WaitOptions configures WaitFor behavior.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitOption is a functional option for WaitFor.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait time (default: 5s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Timeout = d
	}
}

// WithInterval sets the polling interval (default: 10ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Interval = d
	}
}

func options(opts []WaitOption) WaitOptions {
	o := WaitOptions{
		Timeout:  5 * time.Second,
		Interval: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WaitFor polls until condition returns true or timeout is reached.
// Returns true if condition was met, false on timeout.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()
	_, ok := poll(func() (struct{}, bool) { return struct{}{}, condition() }, options(opts))
	return ok
}

// MustWaitFor polls until condition returns true or fails the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}

// MustPoll calls fetch until it reports ok and returns the value it produced.
// The test fails on timeout.
func MustPoll[T any](tb testing.TB, fetch func() (T, bool), opts ...WaitOption) T {
	tb.Helper()
	o := options(opts)
	v, ok := poll(fetch, o)
	if !ok {
		tb.Fatalf("timed out after %s polling for value (last: %+v)", o.Timeout, v)
	}
	return v
}

func poll[T any](fetch func() (T, bool), o WaitOptions) (T, bool) {
	deadline := time.Now().Add(o.Timeout)
	for {
		v, ok := fetch()
		if ok || !time.Now().Before(deadline) {
			return v, ok
		}
		time.Sleep(o.Interval)
	}
}
