// Package trigger implements a wakeup condition shared by goroutines.
package trigger

import (
	"context"
	"sync"
)

// Cond is a condition shared by multiple goroutines. The Ready method returns
// a channel that is closed when the condition is activated.
//
// A new Cond is inactive. It remains inactive until Set or Signal is called,
// which closes the current ready channel. Once activated by Set it remains
// active until Reset. Signal wakes the goroutines already waiting and leaves
// the condition inactive, so that later arrivals wait for the next signal.
//
// A zero Cond is ready for use, and is inactive, but must not be copied
// after any of its methods have been called.
type Cond struct {
	μ      sync.Mutex
	ch     chan struct{} // lazily initialized by the first waiter
	closed bool
}

// New constructs a new inactive Cond.
func New() *Cond { return new(Cond) }

// Signal wakes all current waiters and leaves c inactive. If c was already
// active, Signal is equivalent to Reset.
func (c *Cond) Signal() {
	c.μ.Lock()
	defer c.μ.Unlock()

	if c.ch != nil && !c.closed {
		close(c.ch)
	}
	c.ch = nil
	c.closed = false
}

// Set activates c. If c was already active, it has no effect.
func (c *Cond) Set() {
	c.μ.Lock()
	defer c.μ.Unlock()

	if c.closed {
		return
	}
	if c.ch == nil {
		c.ch = make(chan struct{})
	}
	close(c.ch)
	c.closed = true
}

// Reset deactivates c. If c was already inactive, it has no effect.
func (c *Cond) Reset() {
	c.μ.Lock()
	defer c.μ.Unlock()

	if c.closed {
		c.ch = nil
		c.closed = false
	}
}

// Ready returns a channel that is closed when c is activated. If c is active
// when Ready is called, the returned channel is already closed.
func (c *Cond) Ready() <-chan struct{} {
	c.μ.Lock()
	defer c.μ.Unlock()

	if c.ch == nil {
		c.ch = make(chan struct{})
	}
	return c.ch
}

// Wait blocks until c is activated or ctx ends, and reports whether c was
// activated (true) or ctx ended (false).
func (c *Cond) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.Ready():
		return true
	}
}
