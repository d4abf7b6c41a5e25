// Package channel provides message channels with different retention
// behavior: [Latest] retains only the current value, [Ephemeral] retains
// nothing between emissions, and [Replay] retains the current value and
// replays it to each new subscriber.
package channel

import (
	"context"
	"sync/atomic"

	"github.com/creachadair/backpressure/trigger"
)

// A Latest holds the most recent value of type T. Reads never block and
// always see the most recent completed write. A zero Latest is ready for use
// and holds the zero value of T, but must not be copied after first use.
//
// A Latest is intended for a single writer and any number of readers.
// Concurrent writers are safe, but the surviving value is whichever write
// completed last.
type Latest[T any] struct {
	v       atomic.Pointer[T]
	changed trigger.Cond
}

// NewLatest creates a new Latest holding init.
func NewLatest[T any](init T) *Latest[T] {
	l := new(Latest[T])
	l.v.Store(&init)
	return l
}

// Set replaces the value in l with v, and wakes any goroutines blocked in
// the Wait method.
func (l *Latest[T]) Set(v T) {
	l.v.Store(&v)
	l.changed.Signal()
}

// Get returns the current value in l.
func (l *Latest[T]) Get() T {
	if p := l.v.Load(); p != nil {
		return *p
	}
	var zero T
	return zero
}

// Wait blocks until l.Set is called or ctx ends, and returns the current
// value in l. The flag reports whether Set was called (true) or ctx ended
// first (false).
//
// If several Set calls happen while Wait is blocked, Wait returns a value
// from one of them, not necessarily the first.
func (l *Latest[T]) Wait(ctx context.Context) (T, bool) {
	ready := l.changed.Ready()
	old := l.Get()
	select {
	case <-ctx.Done():
		return old, false
	case <-ready:
		return l.Get(), true
	}
}
