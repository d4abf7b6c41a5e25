package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/creachadair/backpressure"
	"github.com/creachadair/backpressure/internal/config"
	"github.com/creachadair/backpressure/relay"
)

// Payload is the large message body emitted by the backpressure producers.
// Every word holds the sequence number of its message.
type Payload []int64

// Backpressure runs producers that outpace their consumers, with a relay
// policy governing what happens to the excess.
type Backpressure struct {
	cfg   config.Backpressure
	scope *backpressure.Scope
	log   *slog.Logger

	μ    sync.Mutex
	next int
	runs []*Run
}

// A Run is a single producer → relay → consumer chain started by the
// backpressure demo.
type Run struct {
	Name   string
	Policy relay.Policy
	relay  *relay.Relay[backpressure.Message[Payload]]
	prod   *backpressure.Handle
}

// Stats returns the relay counters for r.
func (r *Run) Stats() relay.Stats { return r.relay.Stats() }

// Emitted reports how many messages the producer of r has emitted.
func (r *Run) Emitted() uint64 { return r.prod.Emitted() }

// NewBackpressure creates a backpressure demo. Its chains run until Close.
func NewBackpressure(cfg config.Backpressure, log *slog.Logger) *Backpressure {
	scope := backpressure.NewScope(log)
	return &Backpressure{cfg: cfg, scope: scope, log: scope.Log().With("demo", "backpressure")}
}

// Subject publishes to a subject that has no notion of backpressure: every
// message is queued for the slow consumer, without limit.
func (b *Backpressure) Subject() (*Run, error) {
	return b.start("subject", relay.Unbounded, b.cfg.SlowInterval)
}

// Observable runs the same unbounded chain as Subject under its own name.
// Neither applies any backpressure.
func (b *Backpressure) Observable() (*Run, error) {
	return b.start("observable", relay.Unbounded, b.cfg.SlowInterval)
}

// Flowable runs a fast producer through a relay with the given policy.
func (b *Backpressure) Flowable(policy relay.Policy) (*Run, error) {
	return b.start("flowable", policy, b.cfg.FastInterval)
}

// HandleSubjectByLatest bridges the subject producer through a relay that
// keeps only the latest message.
func (b *Backpressure) HandleSubjectByLatest() (*Run, error) {
	return b.start("subject-latest", relay.KeepLatest, b.cfg.SlowInterval)
}

// HandleObservableByDrop bridges the observable producer through a relay
// that drops messages once its buffer is full.
func (b *Backpressure) HandleObservableByDrop() (*Run, error) {
	return b.start("observable-drop", relay.DropExcess, b.cfg.SlowInterval)
}

// Runs returns the chains started so far.
func (b *Backpressure) Runs() []*Run {
	b.μ.Lock()
	defer b.μ.Unlock()
	return append([]*Run(nil), b.runs...)
}

// Close stops every producer and consumer started by b, and waits for them
// to exit. It reports the failures of any runs, such as an overflow under
// ErrorOnOverflow, which were also logged when they occurred. Stopping the
// runs is not itself a failure.
func (b *Backpressure) Close() error {
	err := b.scope.Close()
	for _, r := range b.Runs() {
		s := r.Stats()
		b.log.Info("run finished", "run", r.Name, "policy", r.Policy,
			"emitted", s.Emitted, "delivered", s.Delivered, "dropped", s.Dropped,
			"overflowed", s.Overflowed, "maxQueued", s.MaxQueued)
	}
	return err
}

func (b *Backpressure) payload(seq uint64) (Payload, error) {
	p := make(Payload, b.cfg.PayloadWords)
	for i := range p {
		p[i] = int64(seq)
	}
	return p, nil
}

func (b *Backpressure) start(name string, policy relay.Policy, interval time.Duration) (*Run, error) {
	b.μ.Lock()
	b.next++
	name = fmt.Sprintf("%s-%d", name, b.next)
	b.μ.Unlock()
	log := b.log.With("run", name, "policy", policy)

	r := &Run{
		Name:   name,
		Policy: policy,
		relay:  relay.New[backpressure.Message[Payload]](policy, b.cfg.Capacity),
	}
	consumer := backpressure.Consumer[Payload]{
		Delay: b.cfg.ConsumerDelay,
		Handle: func(m backpressure.Message[Payload]) {
			log.Debug("consumed", "seq", m.Seq, "first", m.Value[0])
		},
	}
	if err := b.scope.Go(name+"/consumer", func(ctx context.Context) error {
		return r.relay.Subscribe(ctx, consumer.Bind(ctx))
	}); err != nil {
		return nil, err
	}

	r.prod = backpressure.Producer[Payload]{
		Interval: interval,
		Payload:  b.payload,
		Emit:     r.relay.Emit,
		Log:      log,
	}.Start(b.scope.Context())
	if err := b.scope.Go(name+"/producer", func(ctx context.Context) error {
		defer r.relay.Close()
		err := r.prod.Wait()
		if ctx.Err() != nil && errors.Is(err, backpressure.ErrClosed) {
			return nil // the consumer closed the relay during teardown
		}
		return err
	}); err != nil {
		r.relay.Close()
		r.prod.Stop()
		return nil, err
	}

	b.μ.Lock()
	b.runs = append(b.runs, r)
	b.μ.Unlock()
	log.Info("started", "interval", interval, "capacity", b.cfg.Capacity)
	return r, nil
}
