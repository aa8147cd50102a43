package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrSuperseded is the cancellation cause of a request replaced by a newer one in its scope.
	ErrSuperseded = errors.New("request superseded by a newer call")

	// ErrAborted is the cancellation cause of a request aborted without replacement.
	ErrAborted = errors.New("request aborted")
)

// IsCanceled reports whether err is a cancellation outcome rather than a genuine failure.
// Callers drop such errors silently instead of reporting them to the user.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrSuperseded) ||
		errors.Is(err, ErrAborted) ||
		errors.Is(err, context.Canceled)
}

// CancelCause returns nil while ctx is live and the reason it ended otherwise.
// For contexts issued by a Scope the reason is ErrSuperseded or ErrAborted.
func CancelCause(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}

// Scope keeps at most one live request signal. Every new signal cancels the previous
// unresolved one, so a slow response that arrives after a newer call started is discarded.
type Scope struct {
	name string

	mu     sync.Mutex
	cancel context.CancelCauseFunc
	seq    uint64

	signals    atomic.Int64
	superseded atomic.Int64
}

// ScopeStats is a point-in-time copy of the scope counters.
type ScopeStats struct {
	Name       string `json:"name"`
	Signals    int64  `json:"signals"`
	Superseded int64  `json:"superseded"`
	Live       bool   `json:"live"`
}

// NewScope creates a cancellation scope.
func NewScope(name string) *Scope {
	return &Scope{name: name}
}

// Signal cancels the scope's previous signal, if still live, with ErrSuperseded and returns a
// fresh context derived from parent. done retires the signal once the request completes and
// must always be called.
func (s *Scope) Signal(parent context.Context) (ctx context.Context, done func()) {
	ctx, cancel := context.WithCancelCause(parent)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel(ErrSuperseded)
		s.superseded.Add(1)
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	s.signals.Add(1)

	return ctx, func() {
		s.mu.Lock()
		if s.seq == seq {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel(nil)
	}
}

// Abort cancels the live signal, if any, with ErrAborted.
func (s *Scope) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel(ErrAborted)
		s.cancel = nil
	}
}

// Stats returns the current counters.
func (s *Scope) Stats() ScopeStats {
	s.mu.Lock()
	live := s.cancel != nil
	s.mu.Unlock()

	return ScopeStats{
		Name:       s.name,
		Signals:    s.signals.Load(),
		Superseded: s.superseded.Load(),
		Live:       live,
	}
}
