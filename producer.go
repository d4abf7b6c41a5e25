package backpressure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// A Producer emits a sequence of messages at a fixed interval.
//
// The first message is emitted as soon as the producer starts, and each
// subsequent message follows Interval after the previous one. If Interval is
// zero, messages are emitted back-to-back.
type Producer[T any] struct {
	// Interval is the delay between successive emissions.
	Interval time.Duration

	// Limit, if positive, is the number of messages to emit before stopping.
	// If zero, the producer runs until it is cancelled or fails.
	Limit uint64

	// Payload generates the value for message seq. If it reports an error or
	// panics, the producer stops with a *ProducerError.
	Payload func(seq uint64) (T, error)

	// Emit delivers a message downstream. If it reports an error, the
	// producer stops and reports that error from [Handle.Wait].
	Emit func(Message[T]) error

	// Log, if non-nil, receives lifecycle events. Individual messages are
	// not logged.
	Log *slog.Logger
}

// A Handle controls a running producer.
type Handle struct {
	cancel  context.CancelFunc
	done    chan struct{}
	emitted atomic.Uint64
	err     error // set before done is closed
}

// Start begins emitting messages in a new goroutine, and returns a handle
// that can be used to stop it. The producer also stops when ctx ends.
func (p Producer[T]) Start(ctx context.Context) *Handle {
	if p.Payload == nil || p.Emit == nil {
		panic("producer: missing Payload or Emit")
	}
	pctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		h.err = p.run(pctx, h)
	}()
	return h
}

func (p Producer[T]) run(ctx context.Context, h *Handle) error {
	log := orDiscard(p.Log)
	log.Debug("producer started", "interval", p.Interval, "limit", p.Limit)

	var tick <-chan time.Time
	if p.Interval > 0 {
		t := time.NewTicker(p.Interval)
		defer t.Stop()
		tick = t.C
	}
	for seq := uint64(1); p.Limit == 0 || seq <= p.Limit; seq++ {
		if seq > 1 {
			if tick == nil {
				if ctx.Err() != nil {
					break
				}
			} else {
				select {
				case <-ctx.Done():
				case <-tick:
				}
			}
		}
		// Check again after the wait: a tick and a cancellation may both be
		// ready, and select does not prefer either.
		if ctx.Err() != nil {
			break
		}

		v, err := p.payload(seq)
		if err != nil {
			log.Warn("producer failed", "seq", seq, errAttr(err))
			return &ProducerError{Seq: seq, Err: err}
		}
		if err := p.Emit(Message[T]{Seq: seq, Value: v}); err != nil {
			if ctx.Err() != nil {
				break // downstream went away because we are shutting down
			}
			log.Info("producer stopped by downstream", "seq", seq, errAttr(err))
			return err
		}
		h.emitted.Add(1)
	}
	log.Debug("producer stopped", "emitted", h.emitted.Load())
	return nil
}

func (p Producer[T]) payload(seq uint64) (_ T, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("panic in payload: %v\n%s", x, debug.Stack())
		}
	}()
	return p.Payload(seq)
}

// Cancel stops the producer. No message is emitted after Cancel returns,
// except possibly one whose emission was already in progress; Cancel does not
// wait for that emission to finish (use Wait). Cancel is idempotent.
func (h *Handle) Cancel() { h.cancel() }

// Done returns a channel that is closed when the producer has stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Emitted reports the number of messages successfully emitted so far.
func (h *Handle) Emitted() uint64 { return h.emitted.Load() }

// Wait blocks until the producer stops, and reports the error that stopped
// it. A producer that was cancelled or that reached its limit reports nil.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Stop cancels the producer and waits for it to exit. Errors resulting from
// the cancellation itself are not reported.
func (h *Handle) Stop() error {
	h.Cancel()
	err := h.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
