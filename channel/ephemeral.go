package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/creachadair/backpressure"
	"github.com/creachadair/mds/mapset"
)

// An Ephemeral is a broadcast channel that retains nothing between
// emissions. Each value is delivered to the subscribers that are active when
// it is emitted. A value emitted while there are no subscribers is lost, and
// a subscriber never sees values emitted before it subscribed.
type Ephemeral[T any] struct {
	buffer int

	μ      sync.Mutex
	subs   mapset.Set[*backpressure.Mailbox[T]]
	closed bool
}

// NewEphemeral creates a new Ephemeral in which each subscriber may have up
// to buffer undelivered values pending. If buffer == 0, each emission waits
// until every subscriber has received it.
func NewEphemeral[T any](buffer int) *Ephemeral[T] {
	return &Ephemeral[T]{buffer: buffer, subs: mapset.New[*backpressure.Mailbox[T]]()}
}

// Subscribe attaches a new subscriber to e. If e is closed, the returned
// subscription has already ended.
func (e *Ephemeral[T]) Subscribe() *Subscription[T] {
	e.μ.Lock()
	defer e.μ.Unlock()
	if e.closed {
		return closedSubscription[T]()
	}
	mb := backpressure.NewMailbox[T](e.buffer)
	e.subs.Add(mb)
	return &Subscription[T]{c: mb.Recv(), stop: func() {
		e.μ.Lock()
		e.subs.Remove(mb)
		e.μ.Unlock()
		mb.Close()
	}}
}

// Subscribers reports the number of active subscribers.
func (e *Ephemeral[T]) Subscribers() int {
	e.μ.Lock()
	defer e.μ.Unlock()
	return e.subs.Len()
}

// Emit delivers v to each subscriber active at the time of the call, and
// reports how many received it. If a subscriber's buffer is full, Emit waits
// for it to make room, until ctx ends; a subscriber that cancels meanwhile is
// skipped. Values from a single emitting goroutine reach each subscriber in
// the order emitted.
//
// Emit reports [backpressure.ErrClosed] if e is closed, or the context error
// if ctx ends before every subscriber has received v.
func (e *Ephemeral[T]) Emit(ctx context.Context, v T) (int, error) {
	e.μ.Lock()
	if e.closed {
		e.μ.Unlock()
		return 0, backpressure.ErrClosed
	}
	subs := e.subs.Slice()
	e.μ.Unlock()

	var n int
	for _, mb := range subs {
		err := mb.Send(ctx, v)
		if err == nil {
			n++
		} else if !errors.Is(err, backpressure.ErrClosed) {
			return n, err
		}
	}
	return n, nil
}

// Close ends all current subscriptions, and causes later emissions to fail.
func (e *Ephemeral[T]) Close() {
	e.μ.Lock()
	subs := e.subs.Slice()
	e.subs = mapset.New[*backpressure.Mailbox[T]]()
	e.closed = true
	e.μ.Unlock()

	for _, mb := range subs {
		mb.Close()
	}
}
