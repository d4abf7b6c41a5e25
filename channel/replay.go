package channel

import (
	"sync"

	"github.com/creachadair/mds/mapset"
)

// A Replay retains the most recently emitted value and replays it to each
// new subscriber before any later emission.
//
// Delivery to each subscriber is conflated: a subscriber that falls behind
// skips intermediate values and receives the newest one. A subscriber never
// receives a value older than one it has already received.
type Replay[T any] struct {
	μ      sync.Mutex
	x      T
	subs   mapset.Set[chan T]
	closed bool
}

// NewReplay creates a new Replay retaining init.
func NewReplay[T any](init T) *Replay[T] {
	return &Replay[T]{x: init, subs: mapset.New[chan T]()}
}

// Get returns the retained value.
func (r *Replay[T]) Get() T {
	r.μ.Lock()
	defer r.μ.Unlock()
	return r.x
}

// Emit updates the retained value to v, then offers v to every subscriber,
// replacing any value a subscriber has not yet received. Emit does not block.
// After r is closed, Emit has no effect.
func (r *Replay[T]) Emit(v T) {
	r.μ.Lock()
	defer r.μ.Unlock()
	if r.closed {
		return
	}
	r.x = v
	for ch := range r.subs {
		offerLatest(ch, v)
	}
}

// offerLatest replaces the value buffered in ch (if any) with v.
// The caller must be the only sender on ch.
func offerLatest[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// Subscribe attaches a new subscriber to r. The retained value is ready on
// the subscription's channel immediately. If r is closed, the returned
// subscription has already ended.
func (r *Replay[T]) Subscribe() *Subscription[T] {
	r.μ.Lock()
	defer r.μ.Unlock()
	if r.closed {
		return closedSubscription[T]()
	}
	ch := make(chan T, 1)
	ch <- r.x
	r.subs.Add(ch)
	return &Subscription[T]{c: ch, stop: func() {
		r.μ.Lock()
		defer r.μ.Unlock()
		if r.subs.Has(ch) {
			r.subs.Remove(ch)
			close(ch)
		}
	}}
}

// Close ends all current subscriptions. The retained value remains
// available from Get.
func (r *Replay[T]) Close() {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.closed = true
	for ch := range r.subs {
		close(ch)
	}
	r.subs = mapset.New[chan T]()
}
