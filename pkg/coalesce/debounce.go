// Package coalesce folds bursts of identical API calls into one upstream request and
// makes sure a superseded request never surfaces its result.
//
// Two independent primitives live here:
//   - Debouncer: a quiet-period debounce whose single execution is shared by every caller
//     that arrived while it was pending or running.
//   - Scope: cancellation-on-supersede. Issuing a new signal cancels the previous one.
//
// A debounced call that finally fires still goes through its own Scope, so the two compose
// without knowing about each other. Each wrapped operation owns one Debouncer and one Scope;
// operations never cancel or coalesce with each other.
package coalesce

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// DefaultQuietPeriod is how long a debounced call waits before executing.
const DefaultQuietPeriod = 300 * time.Millisecond

// Func is the operation wrapped by a Debouncer.
type Func[A, R any] func(ctx context.Context, args A) (R, error)

// DebouncerMetrics tracks debouncer counters.
type DebouncerMetrics struct {
	Calls      atomic.Int64
	Executions atomic.Int64
	Failures   atomic.Int64
}

// DebouncerStats is a point-in-time copy of the debouncer counters.
type DebouncerStats struct {
	Name       string `json:"name"`
	Calls      int64  `json:"calls"`
	Executions int64  `json:"executions"`
	Coalesced  int64  `json:"coalesced"`
	Failures   int64  `json:"failures"`
}

// Debouncer wraps a Func so that a burst of calls runs it once.
//
// The first call of a cycle arms a quiet-period timer and captures its arguments. Every call
// made while the timer is pending, or while the wrapped function is still running, attaches to
// that same invocation: its own arguments are dropped and it receives the shared result or
// error. Once the function settles the cycle resets and the next call starts a fresh one.
// The window is fixed: attached calls do not restart or extend the quiet period.
//
// Implementation uses singleflight.Group with a single key per debouncer: the group's
// in-flight entry is the pending invocation, and it is removed before results are delivered.
type Debouncer[A, R any] struct {
	name    string
	quiet   time.Duration
	clock   clockwork.Clock
	fn      Func[A, R]
	group   singleflight.Group
	metrics DebouncerMetrics
}

// DebounceOption configures a Debouncer.
type DebounceOption func(*debounceConfig)

type debounceConfig struct {
	clock clockwork.Clock
}

// WithDebounceClock sets the clock that drives the quiet-period timer.
func WithDebounceClock(clock clockwork.Clock) DebounceOption {
	return func(c *debounceConfig) {
		c.clock = clock
	}
}

// NewDebouncer wraps fn. A non-positive quiet period falls back to DefaultQuietPeriod.
func NewDebouncer[A, R any](name string, quiet time.Duration, fn Func[A, R], opts ...DebounceOption) *Debouncer[A, R] {
	cfg := debounceConfig{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}

	return &Debouncer[A, R]{
		name:  name,
		quiet: quiet,
		clock: cfg.clock,
		fn:    fn,
	}
}

// Go registers a call and returns immediately. If no invocation is pending, one is started
// with args; otherwise the call attaches to the pending one.
//
// The shared execution runs on a context detached from ctx's cancellation, so a caller that
// gives up never aborts the call for the others. Values carried by ctx (request IDs) are kept.
func (d *Debouncer[A, R]) Go(ctx context.Context, args A) *Pending[R] {
	d.metrics.Calls.Add(1)
	runCtx := context.WithoutCancel(ctx)

	ch := d.group.DoChan(d.name, func() (interface{}, error) {
		<-d.clock.After(d.quiet)

		d.metrics.Executions.Add(1)
		v, err := d.fn(runCtx, args)
		if err != nil {
			d.metrics.Failures.Add(1)
		}
		return v, err
	})

	return &Pending[R]{ch: ch}
}

// Call registers a call and waits for the shared result.
func (d *Debouncer[A, R]) Call(ctx context.Context, args A) (R, error) {
	return d.Go(ctx, args).Wait(ctx)
}

// Name returns the operation name the debouncer was created with.
func (d *Debouncer[A, R]) Name() string {
	return d.name
}

// QuietPeriod returns the debounce delay.
func (d *Debouncer[A, R]) QuietPeriod() time.Duration {
	return d.quiet
}

// Stats returns the current counters.
func (d *Debouncer[A, R]) Stats() DebouncerStats {
	calls := d.metrics.Calls.Load()
	execs := d.metrics.Executions.Load()
	return DebouncerStats{
		Name:       d.name,
		Calls:      calls,
		Executions: execs,
		Coalesced:  max(calls-execs, 0),
		Failures:   d.metrics.Failures.Load(),
	}
}

// Pending is one caller's handle on a shared invocation.
// Wait consumes the result and must be called at most once.
type Pending[R any] struct {
	ch <-chan singleflight.Result
}

// Wait blocks until the shared invocation settles or ctx ends. Leaving early does not
// affect the invocation or the other callers.
func (p *Pending[R]) Wait(ctx context.Context) (R, error) {
	var zero R

	select {
	case res := <-p.ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(R)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
