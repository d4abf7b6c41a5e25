// Package backpressure defines the producer, consumer, and ownership types
// shared by the relay and channel packages.
//
// A [Producer] emits a sequence of [Message] values at a fixed interval until
// it is cancelled, its limit is reached, or its downstream refuses a value.
// A [Consumer] simulates a slow reader with a fixed processing delay. A
// [Scope] owns producers and subscriptions and tears them all down together.
package backpressure

import (
	"errors"
	"fmt"
	"log/slog"
)

// A Message is a single value emitted by a producer. Seq is 1 for the first
// message of a producer and increases by one for each subsequent message.
// A Message must not be modified after it is emitted.
type Message[T any] struct {
	Seq   uint64
	Value T
}

func (m Message[T]) String() string { return fmt.Sprintf("#%d", m.Seq) }

var (
	// ErrOverflow is reported by a relay whose bounded buffer overflowed under
	// a policy that treats overflow as a terminal failure.
	ErrOverflow = errors.New("buffer overflow")

	// ErrClosed is reported by an operation on a relay, mailbox, or scope that
	// has already been closed.
	ErrClosed = errors.New("closed")

	// ErrSubscribed is reported when a second consumer subscribes to a relay
	// that already has an active subscriber.
	ErrSubscribed = errors.New("already subscribed")
)

// ProducerError is the error reported by a producer whose payload function
// failed or panicked while generating message Seq.
type ProducerError struct {
	Seq uint64
	Err error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("producer failed at message %d: %v", e.Seq, e.Err)
}

func (e *ProducerError) Unwrap() error { return e.Err }

// orDiscard returns log, or a logger that discards everything if log == nil.
func orDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return log
}

// errAttr returns an error attribute, or an empty attribute if err == nil.
func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}
