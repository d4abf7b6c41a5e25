// Package relay implements a buffer between a fast producer and a slow
// consumer that enforces an overflow [Policy].
package relay

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/creachadair/backpressure"
	"github.com/creachadair/backpressure/trigger"
	"github.com/creachadair/mds/queue"
)

// A Relay is a buffer shared by one producer and one consumer. The producer
// calls [Relay.Emit] to offer values, and the consumer calls
// [Relay.Subscribe] to receive them in order.
//
// Emit never waits for the consumer. When the consumer falls behind, the
// relay policy decides whether a new value is buffered, replaces an older
// one, is discarded, or causes the relay to fail.
type Relay[T any] struct {
	policy Policy
	cap    int
	wake   *trigger.Cond // signaled when the buffer or state changes

	μ          sync.Mutex
	buf        *queue.Queue[T]
	state      state
	subscribed bool
	stats      Stats
}

type state byte

const (
	open   state = iota
	closed       // no more values will be accepted; drain what is buffered
	failed       // overflowed; buffered values were discarded
)

// Stats record the traffic through a relay.
type Stats struct {
	Emitted    int // values offered by the producer while the relay was open
	Delivered  int // values handed to the consumer
	Dropped    int // values discarded without delivery
	Overflowed int // emissions that found a bounded buffer full
	MaxQueued  int // the largest number of values buffered at once
}

// New constructs a relay with the given policy. For bounded policies,
// capacity is the maximum number of buffered values, and must be positive.
// For Unbounded and KeepLatest, capacity is ignored.
func New[T any](policy Policy, capacity int) *Relay[T] {
	if policy.Bounded() && capacity < 1 {
		panic("relay: capacity must be positive")
	}
	if !policy.Bounded() {
		capacity = 0
	}
	if policy == KeepLatest {
		capacity = 1
	}
	return &Relay[T]{
		policy: policy,
		cap:    capacity,
		wake:   trigger.New(),
		buf:    queue.New[T](),
	}
}

// Policy returns the overflow policy of r.
func (r *Relay[T]) Policy() Policy { return r.policy }

// Emit offers v to the relay. It does not block.
//
// Emit reports nil if v was accepted, even if the policy then discarded it.
// It reports [backpressure.ErrOverflow] if the relay has failed, including
// when v itself caused the failure, and [backpressure.ErrClosed] if the relay
// was closed or its subscriber has gone away.
func (r *Relay[T]) Emit(v T) error {
	err := r.emit(v)
	r.wake.Signal()
	return err
}

func (r *Relay[T]) emit(v T) error {
	r.μ.Lock()
	defer r.μ.Unlock()
	switch r.state {
	case closed:
		return backpressure.ErrClosed
	case failed:
		return backpressure.ErrOverflow
	}
	r.stats.Emitted++

	switch r.policy {
	case Unbounded:
		r.push(v)

	case KeepLatest:
		if _, ok := r.buf.Pop(); ok {
			r.stats.Dropped++
		}
		r.push(v)

	case DropExcess:
		if r.buf.Len() >= r.cap {
			r.stats.Overflowed++
			r.stats.Dropped++
		} else {
			r.push(v)
		}

	case ErrorOnOverflow:
		if r.buf.Len() >= r.cap {
			r.failLocked()
			return backpressure.ErrOverflow
		}
		r.push(v)

	default: // Unspecified
		if r.buf.Len() < r.cap {
			r.push(v)
		} else if rand.N(2) == 0 {
			r.stats.Overflowed++
			r.stats.Dropped++
		} else {
			r.failLocked()
			return backpressure.ErrOverflow
		}
	}
	return nil
}

// push adds v to the buffer. The caller must hold r.μ.
func (r *Relay[T]) push(v T) {
	r.buf.Add(v)
	r.stats.MaxQueued = max(r.stats.MaxQueued, r.buf.Len())
}

// failLocked puts r into the failed state for an overflowing emission,
// discarding the new value and anything still buffered. The caller must hold
// r.μ.
func (r *Relay[T]) failLocked() {
	r.stats.Overflowed++
	r.stats.Dropped += 1 + r.buf.Len()
	r.buf.Clear()
	r.state = failed
}

// Subscribe delivers values from r to next, in the order they were
// accepted, until one of the following occurs:
//
//   - r is closed and its buffer is drained, in which case Subscribe
//     returns nil.
//
//   - r overflows under a failing policy, in which case Subscribe returns
//     [backpressure.ErrOverflow]. No value is delivered after the overflow.
//
//   - next reports an error, in which case Subscribe returns that error.
//
//   - ctx ends, in which case Subscribe returns the context error.
//
// Deliveries happen on the goroutine that called Subscribe. When Subscribe
// returns for any reason other than a clean close, the relay is closed and
// further emissions report an error, so the producer can stop.
//
// A relay supports one subscription in its lifetime. Subscribe reports
// [backpressure.ErrSubscribed] without delivering anything if r already has
// or had a subscriber.
func (r *Relay[T]) Subscribe(ctx context.Context, next func(T) error) error {
	r.μ.Lock()
	if r.subscribed {
		r.μ.Unlock()
		return backpressure.ErrSubscribed
	}
	r.subscribed = true
	r.μ.Unlock()

	for {
		r.μ.Lock()
		if r.state == failed {
			r.μ.Unlock()
			return backpressure.ErrOverflow
		}
		v, ok := r.buf.Pop()
		if ok {
			r.stats.Delivered++
			r.μ.Unlock()
			if err := next(v); err != nil {
				r.Close()
				return err
			}
			continue
		}
		if r.state == closed {
			r.μ.Unlock()
			return nil
		}
		// N.B. Obtain the wakeup channel while holding the lock, so that an
		// emission after we release it is guaranteed to wake us.
		ready := r.wake.Ready()
		r.μ.Unlock()

		select {
		case <-ctx.Done():
			r.Close()
			return ctx.Err()
		case <-ready:
		}
	}
}

// Close closes r to further emissions. A subscriber receives any values
// still buffered, and then its subscription ends. Closing a relay that is
// already closed or failed has no effect.
func (r *Relay[T]) Close() {
	r.μ.Lock()
	if r.state == open {
		r.state = closed
	}
	r.μ.Unlock()
	r.wake.Signal()
}

// Len reports the number of values currently buffered in r.
func (r *Relay[T]) Len() int {
	r.μ.Lock()
	defer r.μ.Unlock()
	return r.buf.Len()
}

// Stats returns a snapshot of the traffic counters for r.
func (r *Relay[T]) Stats() Stats {
	r.μ.Lock()
	defer r.μ.Unlock()
	return r.stats
}
