package backpressure

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// A Scope owns a set of goroutines and cleanup functions and releases them
// all together when it is closed. It plays the role of a component whose
// lifetime bounds the producers, subscriptions, and workers it creates.
//
// Tasks started in a scope are isolated from one another: a task that fails
// is logged, but does not cancel its siblings.
type Scope struct {
	id     string
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	tasks  errgroup.Group

	μ      sync.Mutex
	defers []func()
	closed bool
	failed []error
}

// NewScope creates a new open scope whose tasks log to log.
// A nil log discards all output.
func NewScope(log *slog.Logger) *Scope {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{
		id:     id,
		log:    orDiscard(log).With("scope", id),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns a unique identifier for s, included in all its log records.
func (s *Scope) ID() string { return s.id }

// Log returns the logger for s.
func (s *Scope) Log() *slog.Logger { return s.log }

// Context returns a context that ends when s is closed.
func (s *Scope) Context() context.Context { return s.ctx }

// Go runs task in a new goroutine governed by the scope's context.
// If s is already closed, task is not run and Go reports ErrClosed.
//
// An error reported by task is logged and recorded for Close, unless it is
// the result of the scope closing.
func (s *Scope) Go(name string, task func(context.Context) error) error {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.tasks.Go(func() error {
		err := task(s.ctx)
		if err != nil && s.ctx.Err() != nil && errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			s.log.Error("task failed", "task", name, errAttr(err))
			s.μ.Lock()
			s.failed = append(s.failed, err)
			s.μ.Unlock()
		} else {
			s.log.Debug("task finished", "task", name)
		}
		return nil
	})
	return nil
}

// Defer arranges for f to be called when s is closed, after all its tasks
// have exited. Deferred functions run in reverse order of registration.
// If s is already closed, f is called immediately.
func (s *Scope) Defer(f func()) {
	s.μ.Lock()
	if s.closed {
		s.μ.Unlock()
		f()
		return
	}
	s.defers = append(s.defers, f)
	s.μ.Unlock()
}

// Close cancels the scope's context, waits for all its tasks to exit, and
// then runs its deferred functions. It reports the errors of any tasks that
// failed. Close is idempotent: later calls wait for nothing and report nil.
func (s *Scope) Close() error {
	s.μ.Lock()
	if s.closed {
		s.μ.Unlock()
		return nil
	}
	s.closed = true
	s.μ.Unlock()

	s.cancel()
	s.tasks.Wait()

	s.μ.Lock()
	defers, failed := s.defers, s.failed
	s.defers, s.failed = nil, nil
	s.μ.Unlock()

	for i := len(defers) - 1; i >= 0; i-- {
		defers[i]()
	}
	s.log.Debug("scope closed", "failed", len(failed))
	return errors.Join(failed...)
}
