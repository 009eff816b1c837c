package engine

import (
	"context"
	"sync/atomic"
)

// Signal is a resettable cancellation flag. A Signal belongs to one engine or
// run; it is never shared through package state.
type Signal struct {
	cancelled atomic.Bool
}

// NewSignal returns a cleared signal.
func NewSignal() *Signal {
	return &Signal{}
}

// Cancel requests cancellation. It is safe to call from any goroutine.
func (s *Signal) Cancel() {
	s.cancelled.Store(true)
}

// Reset clears the flag before a new run.
func (s *Signal) Reset() {
	s.cancelled.Store(false)
}

// Cancelled reports whether cancellation was requested. A nil signal is
// never cancelled.
func (s *Signal) Cancelled() bool {
	return s != nil && s.cancelled.Load()
}

// IsCancelled reports whether either the context is done or the signal is set.
func IsCancelled(ctx context.Context, s *Signal) bool {
	return ctx.Err() != nil || s.Cancelled()
}
