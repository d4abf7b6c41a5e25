package backpressure

import (
	"context"
	"sync"
)

// A Mailbox is a closable buffered channel that delivers values from any
// number of senders to a single reader.
//
// Unlike a plain channel, a mailbox may be closed while senders are blocked
// on it: pending and future sends report [ErrClosed] instead of panicking.
type Mailbox[T any] struct {
	// μ protects the fields below:
	// Lock μ shared to copy or send to ch.
	// Lock μ exclusively to close ch or modify either field.
	μ    sync.RWMutex
	ch   chan T        // delivers values to the receiver
	done chan struct{} // closed when the mailbox is closed
	once sync.Once
}

// NewMailbox creates a new mailbox with the given buffer capacity.
// If size == 0, the mailbox is unbuffered.
func NewMailbox[T any](size int) *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, size), done: make(chan struct{})}
}

// Recv returns a channel to which sent values are delivered. The returned
// channel is closed when m is closed. After m is closed, Recv returns a nil
// channel.
func (m *Mailbox[T]) Recv() <-chan T {
	m.μ.RLock()
	defer m.μ.RUnlock()
	return m.ch
}

// Done returns a channel that is closed when m is closed.
func (m *Mailbox[T]) Done() <-chan struct{} { return m.done }

// Send delivers v to the mailbox. It blocks until v is buffered or received,
// m closes, or ctx ends. If m closes or ctx ends first, Send reports an error.
func (m *Mailbox[T]) Send(ctx context.Context, v T) error {
	m.μ.RLock()
	defer m.μ.RUnlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	case m.ch <- v:
		return nil
	}
}

// TrySend delivers v to the mailbox if it can do so without blocking, and
// reports whether it did.
func (m *Mailbox[T]) TrySend(v T) bool {
	m.μ.RLock()
	defer m.μ.RUnlock()
	select {
	case <-m.done:
		return false
	case m.ch <- v:
		return true
	default:
		return false
	}
}

// Len reports the number of values buffered in m.
func (m *Mailbox[T]) Len() int {
	m.μ.RLock()
	defer m.μ.RUnlock()
	return len(m.ch)
}

// Close closes the mailbox, which closes the receive channel and causes any
// pending sends to fail. Values already buffered remain available to the
// reader. Close is safe to call more than once and from multiple goroutines;
// calls after the first report ErrClosed.
func (m *Mailbox[T]) Close() error {
	err := ErrClosed
	m.once.Do(func() {
		close(m.done)

		m.μ.Lock()
		defer m.μ.Unlock()
		close(m.ch)
		m.ch = nil // no future sender must see m.ch as ready
		err = nil
	})
	return err
}
