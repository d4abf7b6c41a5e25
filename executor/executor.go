// Package executor runs tasks on a fixed set of worker goroutines.
//
// A [Pool] with several workers stands in for a thread pool; a pool with one
// worker (see [NewSerial]) stands in for a dedicated thread with its own task
// queue, and runs its tasks strictly in submission order.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/creachadair/backpressure"
)

// A Task is a unit of work run by a pool. The context passed to the task
// ends when the pool is closed.
type Task func(context.Context)

// A Pool runs submitted tasks on a fixed number of worker goroutines.
type Pool struct {
	name   string
	log    *slog.Logger
	queue  *backpressure.Mailbox[Task]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	completed atomic.Int64
	panicked  atomic.Int64
}

// NewPool starts a pool of the given number of workers, whose queue buffers
// up to queue tasks not yet picked up by a worker. The name identifies the
// pool in log records and in [WorkerName].
func NewPool(log *slog.Logger, name string, workers, queue int) *Pool {
	if workers < 1 {
		panic("executor: workers must be positive")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		log:    log.With("pool", name),
		queue:  backpressure.NewMailbox[Task](queue),
		ctx:    ctx,
		cancel: cancel,
	}
	tasks := p.queue.Recv()
	for i := range workers {
		wname := fmt.Sprintf("%s-worker-%d", name, i+1)
		wctx := context.WithValue(ctx, workerKey{}, wname)
		p.wg.Add(1)
		go p.work(wctx, wname, tasks)
	}
	return p
}

// NewSerial starts a pool with a single worker, which runs its tasks one at
// a time in the order they were submitted.
func NewSerial(log *slog.Logger, name string, queue int) *Pool {
	return NewPool(log, name, 1, queue)
}

type workerKey struct{}

// WorkerName returns the name of the pool worker running the task that
// received ctx, or "" if ctx did not come from a pool.
func WorkerName(ctx context.Context) string {
	s, _ := ctx.Value(workerKey{}).(string)
	return s
}

func (p *Pool) work(ctx context.Context, name string, tasks <-chan Task) {
	defer p.wg.Done()
	for task := range tasks {
		p.run(ctx, name, task)
	}
}

func (p *Pool) run(ctx context.Context, name string, task Task) {
	defer func() {
		if x := recover(); x != nil {
			p.panicked.Add(1)
			p.log.Error("task panicked", "worker", name, "panic", x, "stack", string(debug.Stack()))
		}
	}()
	task(ctx)
	p.completed.Add(1)
}

// Submit queues task to be run by a worker. It blocks while the queue is
// full, until ctx ends or p is closed. Submit reports
// [backpressure.ErrClosed] if p is closed.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	return p.queue.Send(ctx, task)
}

// Post queues task if there is room, without blocking, and reports whether
// it was queued.
func (p *Pool) Post(task Task) bool { return p.queue.TrySend(task) }

// Completed reports the number of tasks that have run to completion.
// Tasks that panicked are not counted.
func (p *Pool) Completed() int64 { return p.completed.Load() }

// Panicked reports the number of tasks that panicked.
func (p *Pool) Panicked() int64 { return p.panicked.Load() }

// Close stops p from accepting tasks, ends the context of running tasks,
// and waits for the workers to exit. Tasks still queued are run with an
// ended context so they can clean up promptly. Close is idempotent.
func (p *Pool) Close() {
	p.cancel()
	if p.queue.Close() == nil {
		p.log.Debug("pool closing")
	}
	p.wg.Wait()
}
