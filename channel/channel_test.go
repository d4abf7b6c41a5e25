package channel_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/backpressure"
	"github.com/creachadair/backpressure/channel"
	"github.com/fortytw2/leaktest"
)

func TestLatest_Zero(t *testing.T) {
	var v channel.Latest[int]

	if got, want := v.Get(), 0; got != want {
		t.Errorf("Get from zero Latest: got %d, want %d", got, want)
	}
	v.Set(25)
	if got, want := v.Get(), 25; got != want {
		t.Errorf("Get: got %d, want %d", got, want)
	}
}

func TestLatest(t *testing.T) {
	defer leaktest.Check(t)()

	v := channel.NewLatest("apple")
	var wg sync.WaitGroup

	mustGet := func(want string) {
		t.Helper()
		if got := v.Get(); got != want {
			t.Errorf("Get: got %q, want %q", got, want)
		}
	}
	setAfter := func(d time.Duration, s string) {
		wg.Add(1)
		time.AfterFunc(d, func() {
			defer wg.Done()
			v.Set(s)
		})
	}
	ctx := context.Background()

	mustGet("apple")

	// A Get immediately after a Set sees the value set.
	for _, s := range []string{"pear", "plum", "pear"} {
		v.Set(s)
		mustGet(s)
	}

	t.Run("Wait", func(t *testing.T) {
		setAfter(5*time.Millisecond, "quince")
		if got, ok := v.Wait(ctx); !ok || got != "quince" {
			t.Errorf("Wait: got %q, %v; want quince, true", got, ok)
		}
		mustGet("quince")
	})

	t.Run("Timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		if got, ok := v.Wait(ctx); ok || got != "quince" {
			t.Errorf("Wait: got %q, %v; want quince, false", got, ok)
		}
	})

	t.Run("Concur", func(t *testing.T) {
		setAfter(2000*time.Microsecond, "cherry")
		setAfter(1500*time.Microsecond, "raspberry")

		got, ok := v.Wait(ctx)
		if !ok {
			t.Error("Wait reported false")
		}
		checkOneOf(t, "Wait value", got, "raspberry", "cherry")
	})

	wg.Wait()
	checkOneOf(t, "Get value", v.Get(), "raspberry", "cherry")
}

func TestEphemeral(t *testing.T) {
	defer leaktest.Check(t)()
	ctx := context.Background()

	t.Run("NoSubscribers", func(t *testing.T) {
		e := channel.NewEphemeral[int](0)
		if n, err := e.Emit(ctx, 1); n != 0 || err != nil {
			t.Errorf("Emit: got %d, %v; want 0, nil", n, err)
		}

		// A late subscriber does not see the earlier value.
		s := e.Subscribe()
		defer s.Cancel()
		select {
		case v := <-s.C():
			t.Errorf("Late subscriber received %d", v)
		case <-time.After(10 * time.Millisecond):
		}
	})

	t.Run("Broadcast", func(t *testing.T) {
		e := channel.NewEphemeral[int](0)
		const numSubs = 3

		var wg sync.WaitGroup
		got := make([][]int, numSubs)
		for i := range numSubs {
			s := e.Subscribe()
			wg.Add(1)
			go func() {
				defer wg.Done()
				for v := range s.C() {
					got[i] = append(got[i], v)
				}
			}()
		}
		if n := e.Subscribers(); n != numSubs {
			t.Errorf("Subscribers: got %d, want %d", n, numSubs)
		}

		for v := range 5 {
			if n, err := e.Emit(ctx, v); n != numSubs || err != nil {
				t.Errorf("Emit(%d): got %d, %v; want %d, nil", v, n, err, numSubs)
			}
		}
		e.Close()
		wg.Wait()

		for i, vs := range got {
			if len(vs) != 5 {
				t.Errorf("Subscriber %d: got %v, want 5 values", i, vs)
				continue
			}
			for j, v := range vs {
				if v != j {
					t.Errorf("Subscriber %d: value %d is %d, want %d", i, j, v, j)
				}
			}
		}

		if _, err := e.Emit(ctx, 99); !errors.Is(err, backpressure.ErrClosed) {
			t.Errorf("Emit after Close: got %v, want %v", err, backpressure.ErrClosed)
		}
		if _, ok := <-e.Subscribe().C(); ok {
			t.Error("Subscribe after Close: channel is open")
		}
	})

	t.Run("SlowSubscriber", func(t *testing.T) {
		e := channel.NewEphemeral[int](0)
		s := e.Subscribe()

		// Nobody is reading s, so an unbuffered emission waits.
		tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		if n, err := e.Emit(tctx, 1); n != 0 || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Emit: got %d, %v; want 0, %v", n, err, context.DeadlineExceeded)
		}

		// Cancelling the subscriber releases a blocked emitter.
		time.AfterFunc(5*time.Millisecond, s.Cancel)
		if n, err := e.Emit(ctx, 2); n != 0 || err != nil {
			t.Errorf("Emit: got %d, %v; want 0, nil", n, err)
		}
		s.Cancel() // safe to do it multiple times
		if n := e.Subscribers(); n != 0 {
			t.Errorf("Subscribers after cancel: got %d, want 0", n)
		}
	})

	t.Run("Buffered", func(t *testing.T) {
		e := channel.NewEphemeral[string](2)
		s := e.Subscribe()
		defer s.Cancel()

		for _, v := range []string{"a", "b"} {
			if n, err := e.Emit(ctx, v); n != 1 || err != nil {
				t.Errorf("Emit(%q): got %d, %v; want 1, nil", v, n, err)
			}
		}
		if got := <-s.C() + <-s.C(); got != "ab" {
			t.Errorf("Received %q, want ab", got)
		}
	})
}

func TestReplay(t *testing.T) {
	defer leaktest.Check(t)()

	r := channel.NewReplay("initial")

	// A new subscriber receives the retained value first.
	s1 := r.Subscribe()
	if got := <-s1.C(); got != "initial" {
		t.Errorf("Replay: got %q, want initial", got)
	}

	r.Emit("one")
	if got := <-s1.C(); got != "one" {
		t.Errorf("Receive: got %q, want one", got)
	}

	// A late subscriber receives only the most recent value.
	r.Emit("two")
	s2 := r.Subscribe()
	if got := <-s2.C(); got != "two" {
		t.Errorf("Late replay: got %q, want two", got)
	}

	// A subscriber that falls behind sees the newest value only.
	r.Emit("three")
	r.Emit("four")
	if got := <-s1.C(); got != "four" {
		t.Errorf("Conflated receive: got %q, want four", got)
	}
	if got := r.Get(); got != "four" {
		t.Errorf("Get: got %q, want four", got)
	}

	s1.Cancel()
	if _, ok := <-s1.C(); ok {
		t.Error("Cancelled subscription is still open")
	}
	r.Emit("five") // does not block or panic on the cancelled subscriber

	r.Close()
	if got, ok := <-s2.C(); !ok || got != "five" {
		t.Errorf("Buffered after close: got %q, %v; want five, true", got, ok)
	}
	if _, ok := <-s2.C(); ok {
		t.Error("Subscription is open after Close")
	}
	s2.Cancel() // safe after Close
	if _, ok := <-r.Subscribe().C(); ok {
		t.Error("Subscribe after Close: channel is open")
	}
	if got := r.Get(); got != "five" {
		t.Errorf("Get after Close: got %q, want five", got)
	}
}

func checkOneOf(t *testing.T, pfx, got string, want ...string) {
	t.Helper()
	for _, w := range want {
		if got == w {
			return
		}
	}
	t.Errorf("%s: got %q, want one of {%+v}", pfx, got, strings.Join(want, ", "))
}
