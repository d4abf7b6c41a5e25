package backpressure

import (
	"context"
	"time"
)

// A Consumer simulates a reader that takes a fixed time to process each
// message. A zero Consumer processes messages without delay and discards
// them.
type Consumer[T any] struct {
	// Delay is how long each message takes to process.
	Delay time.Duration

	// Handle, if non-nil, is called with each message after the delay.
	Handle func(Message[T])
}

// Process simulates processing a single message, and reports how long it
// took. If ctx ends before the delay has elapsed, Process returns early with
// the context error and msg is not handled.
func (c Consumer[T]) Process(ctx context.Context, msg Message[T]) (time.Duration, error) {
	start := time.Now()
	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return time.Since(start), ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.Handle != nil {
		c.Handle(msg)
	}
	return time.Since(start), nil
}

// Bind returns a function that calls c.Process with ctx for each message, in
// the form expected by a relay subscription.
func (c Consumer[T]) Bind(ctx context.Context) func(Message[T]) error {
	return func(msg Message[T]) error {
		_, err := c.Process(ctx, msg)
		return err
	}
}
