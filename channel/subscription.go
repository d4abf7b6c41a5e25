package channel

import "sync"

// A Subscription is a consumer's attachment to a channel. Values are
// delivered on the channel returned by C until the subscription is
// cancelled or the channel it is attached to is closed.
type Subscription[T any] struct {
	c    <-chan T
	stop func()
	once sync.Once
}

// C returns the channel on which values are delivered. It is closed when
// the subscription ends.
func (s *Subscription[T]) C() <-chan T { return s.c }

// Cancel ends the subscription and closes its channel. Values emitted after
// Cancel returns are not delivered to s. Cancel is idempotent.
func (s *Subscription[T]) Cancel() { s.once.Do(s.stop) }

// closedSubscription returns a subscription that has already ended.
func closedSubscription[T any]() *Subscription[T] {
	ch := make(chan T)
	close(ch)
	return &Subscription[T]{c: ch, stop: func() {}}
}
