// Package testutil provides polling helpers and fakes for asynchronous tests.
package testutil

import (
	"context"
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

// WithInterval sets the polling interval (default: 5ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Interval = d
	}
}

func resolve(opts []WaitOption) WaitOptions {
	o := WaitOptions{
		Timeout:  5 * time.Second,
		Interval: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WaitFor polls until condition returns true or timeout is reached.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()
	o := resolve(opts)

	deadline := time.Now().Add(o.Timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(o.Interval)
	}
	return condition()
}

// MustWaitFor fails the test if condition does not become true in time.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}

// MustWaitForCount fails the test unless count() reaches target in time.
func MustWaitForCount(tb testing.TB, count func() int, target int, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, func() bool { return count() >= target }, opts...) {
		tb.Fatalf("timed out waiting for count to reach %d (current: %d)", target, count())
	}
}

// MustTerminate waits on a lifecycle wait function such as OnTerminated.
func MustTerminate(tb testing.TB, wait func(context.Context) error, opts ...WaitOption) {
	tb.Helper()
	o := resolve(opts)
	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()
	if err := wait(ctx); err != nil {
		tb.Fatalf("wait failed: %v", err)
	}
}

// Never asserts that condition stays false for the whole window.
func Never(tb testing.TB, condition func() bool, window time.Duration) {
	tb.Helper()
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if condition() {
			tb.Fatal("condition became true")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
