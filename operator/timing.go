package operator

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleFirst emits a value received from in only if no value has been
// emitted within the preceding window. Values arriving inside the window
// are discarded.
func ThrottleFirst[T any](ctx context.Context, in <-chan T, window time.Duration) <-chan T {
	out := make(chan T)
	lim := rate.NewLimiter(rate.Every(window), 1)
	go func() {
		defer close(out)
		for {
			v, ok := recv(ctx, in)
			if !ok {
				return
			}
			if lim.Allow() && !send(ctx, out, v) {
				return
			}
		}
	}()
	return out
}

// ThrottleLast emits, at the end of each period, the most recent value
// received from in during that period, if any. A value still pending when
// in is closed is discarded.
func ThrottleLast[T any](ctx context.Context, in <-chan T, period time.Duration) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		tick := time.NewTicker(period)
		defer tick.Stop()

		var last T
		var pending bool
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				last, pending = v, true
			case <-tick.C:
				if pending {
					pending = false
					if !send(ctx, out, last) {
						return
					}
				}
			}
		}
	}()
	return out
}

// Debounce emits a value received from in once quiet has elapsed without
// another value arriving. A value still pending when in is closed is
// emitted before the output closes.
func Debounce[T any](ctx context.Context, in <-chan T, quiet time.Duration) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		timer := time.NewTimer(quiet)
		timer.Stop()
		defer timer.Stop()

		var last T
		var pending bool
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					if pending {
						send(ctx, out, last)
					}
					return
				}
				last, pending = v, true
				timer.Reset(quiet)
			case <-timer.C:
				if pending {
					pending = false
					if !send(ctx, out, last) {
						return
					}
				}
			}
		}
	}()
	return out
}
