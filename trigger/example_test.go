package trigger_test

import (
	"fmt"
	"sync"

	"github.com/creachadair/backpressure/trigger"
)

func ExampleCond() {
	var mu sync.Mutex
	var pending []string
	var c trigger.Cond

	var wg sync.WaitGroup
	defer wg.Wait()

	// A consumer checks for pending work while holding the lock, and takes
	// the wakeup channel before releasing it, so no signal can be missed.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			mu.Lock()
			if len(pending) != 0 {
				next := pending[0]
				pending = pending[1:]
				mu.Unlock()
				if next == "stop" {
					return
				}
				fmt.Println("consumed", next)
				continue
			}
			ready := c.Ready()
			mu.Unlock()
			<-ready
		}
	}()

	// A producer adds work and then signals.
	for _, v := range []string{"apple", "pear", "stop"} {
		mu.Lock()
		pending = append(pending, v)
		mu.Unlock()
		c.Signal()
	}

	// Output:
	// consumed apple
	// consumed pear
}
