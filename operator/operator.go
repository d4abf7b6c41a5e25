// Package operator implements composable stages over Go channels.
//
// Each stage reads from one or more input channels and returns an output
// channel. The output is closed when the inputs are exhausted or when the
// governing context ends, so a pipeline is torn down by cancelling its
// context. Stages never close their inputs.
package operator

import (
	"context"
	"sync"
	"time"
)

// send delivers v to out, and reports false if ctx ended first.
func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- v:
		return true
	}
}

// recv receives from in, and reports false if in is closed or ctx ended.
func recv[T any](ctx context.Context, in <-chan T) (T, bool) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, false
	case v, ok := <-in:
		return v, ok
	}
}

// Range emits the integers from lo to hi inclusive, waiting interval before
// each value after the first.
func Range(ctx context.Context, lo, hi int, interval time.Duration) <-chan int {
	out := make(chan int)
	go func() {
		defer close(out)
		for i := lo; i <= hi; i++ {
			if i > lo && interval > 0 {
				t := time.NewTimer(interval)
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
			if !send(ctx, out, i) {
				return
			}
		}
	}()
	return out
}

// Map emits f(v) for each value v received from in.
func Map[T, U any](ctx context.Context, in <-chan T, f func(T) U) <-chan U {
	out := make(chan U)
	go func() {
		defer close(out)
		for {
			v, ok := recv(ctx, in)
			if !ok || !send(ctx, out, f(v)) {
				return
			}
		}
	}()
	return out
}

// Filter emits the values received from in for which keep reports true.
func Filter[T any](ctx context.Context, in <-chan T, keep func(T) bool) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			v, ok := recv(ctx, in)
			if !ok {
				return
			}
			if keep(v) && !send(ctx, out, v) {
				return
			}
		}
	}()
	return out
}

// FlatMap emits the elements of f(v) for each value v received from in.
// The elements of each result are emitted in order, and results are
// emitted in the order of their inputs.
func FlatMap[T, U any](ctx context.Context, in <-chan T, f func(T) []U) <-chan U {
	out := make(chan U)
	go func() {
		defer close(out)
		for {
			v, ok := recv(ctx, in)
			if !ok {
				return
			}
			for _, u := range f(v) {
				if !send(ctx, out, u) {
					return
				}
			}
		}
	}()
	return out
}

// Merge emits the values received from all the inputs, as they arrive.
// The output is closed once every input is closed.
func Merge[T any](ctx context.Context, ins ...<-chan T) <-chan T {
	out := make(chan T)
	var wg sync.WaitGroup
	for _, in := range ins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := recv(ctx, in)
				if !ok || !send(ctx, out, v) {
					return
				}
			}
		}()
	}
	go func() { wg.Wait(); close(out) }()
	return out
}

// Concat emits all the values from each input in turn, moving to the next
// input only when the previous one is closed.
func Concat[T any](ctx context.Context, ins ...<-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for _, in := range ins {
			for {
				v, ok := recv(ctx, in)
				if !ok {
					if ctx.Err() != nil {
						return
					}
					break
				}
				if !send(ctx, out, v) {
					return
				}
			}
		}
	}()
	return out
}

// Zip3 emits f(a, b, c) combining the nth values of each input. The output
// is closed when any input is closed.
func Zip3[A, B, C, R any](ctx context.Context, as <-chan A, bs <-chan B, cs <-chan C, f func(A, B, C) R) <-chan R {
	out := make(chan R)
	go func() {
		defer close(out)
		for {
			a, ok := recv(ctx, as)
			if !ok {
				return
			}
			b, ok := recv(ctx, bs)
			if !ok {
				return
			}
			c, ok := recv(ctx, cs)
			if !ok {
				return
			}
			if !send(ctx, out, f(a, b, c)) {
				return
			}
		}
	}()
	return out
}
