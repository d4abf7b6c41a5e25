package backpressure_test

import (
	"context"
	"fmt"
	"log"

	"github.com/creachadair/backpressure"
	"github.com/creachadair/backpressure/relay"
)

func ExampleProducer() {
	r := relay.New[backpressure.Message[string]](relay.Unbounded, 0)

	// A producer emits its messages to the relay. With no interval, it emits
	// them as fast as the relay accepts them.
	h := backpressure.Producer[string]{
		Limit: 3,
		Payload: func(seq uint64) (string, error) {
			return fmt.Sprintf("item %d", seq), nil
		},
		Emit: r.Emit,
	}.Start(context.Background())

	// Close the relay once the producer is done, so the subscriber can finish.
	go func() {
		defer r.Close()
		if err := h.Wait(); err != nil {
			log.Printf("Producer failed: %v", err)
		}
	}()

	// The subscriber receives the messages in order.
	if err := r.Subscribe(context.Background(), func(m backpressure.Message[string]) error {
		fmt.Println(m.Seq, m.Value)
		return nil
	}); err != nil {
		log.Fatalf("Subscribe: %v", err)
	}

	// Output:
	// 1 item 1
	// 2 item 2
	// 3 item 3
}

func ExampleScope() {
	s := backpressure.NewScope(nil)

	mb := backpressure.NewMailbox[int](0)
	s.Defer(func() { fmt.Println("cleanup") })
	s.Go("sender", func(ctx context.Context) error {
		for i := 1; ; i++ {
			if err := mb.Send(ctx, i); err != nil {
				return err
			}
		}
	})

	fmt.Println(<-mb.Recv(), <-mb.Recv())

	// Closing the scope stops the sender and runs the deferred cleanup.
	if err := s.Close(); err != nil {
		log.Fatalf("Close: %v", err)
	}
	mb.Close()

	// Output:
	// 1 2
	// cleanup
}
