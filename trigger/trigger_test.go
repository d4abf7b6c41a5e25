package trigger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/backpressure/trigger"
	"github.com/fortytw2/leaktest"
)

func TestTrigger(t *testing.T) {
	defer leaktest.Check(t)()

	checkNotActive := func(t *testing.T, tr *trigger.Cond) {
		t.Helper()
		select {
		case <-tr.Ready():
			t.Error("Trigger is active when it should not be")
		default:
		}
	}

	t.Run("Signal", func(t *testing.T) {
		// Start up a bunch of tasks that listen to a trigger, signal the trigger,
		// and verify that it woke them all up.
		tr := trigger.New()
		checkNotActive(t, tr)

		const numTasks = 5

		ok := make([]bool, numTasks)
		var start, stop sync.WaitGroup

		for i := range numTasks {
			start.Add(1)
			stop.Add(1)
			go func() {
				ch := tr.Ready()
				start.Done()
				<-ch
				ok[i] = true
				stop.Done()
			}()
		}

		// Wait until all the tasks have their channel.
		start.Wait()

		// Signal the trigger, and confirm that it is no longer active.
		checkNotActive(t, tr)
		tr.Signal()
		checkNotActive(t, tr)

		// Wait until all the tasks have completed.
		stop.Wait()

		for i, b := range ok {
			if !b {
				t.Errorf("Task %d did not report success", i+1)
			}
		}
	})

	t.Run("Set", func(t *testing.T) {
		tr := trigger.New()
		checkNotActive(t, tr)

		// Verify that a goroutine that observes the trigger before the first set
		// properly observes the activation later.
		start := make(chan struct{})
		done := make(chan struct{})
		go func() {
			ch := tr.Ready()
			close(start)
			<-ch
			close(done)
		}()
		<-start

		tr.Set()
		tr.Set() // safe to do it multiple times
		for i := range 3 {
			select {
			case <-tr.Ready():
				t.Logf("OK, set trigger is active (check %d)", i+1)
			case <-time.After(time.Second):
				t.Error("Trigger is not ready when it should be")
			}
		}
		select {
		case <-done:
			t.Log("OK, early observer saw the trigger fire")
		case <-time.After(time.Second):
			t.Error("Early observer did not see the activation")
		}

		tr.Reset()
		checkNotActive(t, tr)
		tr.Reset() // safe to do it multiple times
		checkNotActive(t, tr)
	})
}

func TestWait(t *testing.T) {
	defer leaktest.Check(t)()

	c := trigger.New()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if c.Wait(ctx) {
		t.Error("Wait on an inactive trigger reported true")
	}

	time.AfterFunc(5*time.Millisecond, c.Signal)
	if !c.Wait(context.Background()) {
		t.Error("Wait did not observe the signal")
	}

	// A zero trigger is usable and starts inactive.
	var z trigger.Cond
	z.Set()
	if !z.Wait(context.Background()) {
		t.Error("Wait on an active trigger reported false")
	}
	z.Signal() // resets an active trigger
	select {
	case <-z.Ready():
		t.Error("Trigger is active after Signal")
	default:
	}
}

func TestSignalRearms(t *testing.T) {
	isClosed := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}

	var c trigger.Cond
	before := c.Ready()
	c.Signal()
	if !isClosed(before) {
		t.Error("Signal did not close the channel taken before it")
	}

	// After a signal, waiters get a fresh channel that the old signal does
	// not affect.
	after := c.Ready()
	if after == before {
		t.Error("Ready returned the signaled channel after Signal")
	}
	if isClosed(after) {
		t.Error("Channel taken after Signal is already closed")
	}

	// Signal with no waiters is not remembered.
	var idle trigger.Cond
	idle.Signal()
	if isClosed(idle.Ready()) {
		t.Error("Signal with no waiters left the trigger active")
	}

	// Reset after Set rearms the trigger with a fresh channel, and a second
	// Signal wakes only what was taken since.
	c.Set()
	set := c.Ready()
	if !isClosed(set) {
		t.Error("Ready after Set is not closed")
	}
	c.Reset()
	next := c.Ready()
	if next == set || isClosed(next) {
		t.Error("Ready after Reset is not a fresh open channel")
	}
	c.Signal()
	if !isClosed(next) {
		t.Error("Signal did not close the channel taken after Reset")
	}
}
