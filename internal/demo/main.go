package demo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/creachadair/backpressure"
	"github.com/creachadair/backpressure/channel"
	"github.com/creachadair/backpressure/executor"
	"github.com/creachadair/backpressure/internal/config"
	"github.com/creachadair/backpressure/operator"
)

// Main demonstrates the ways of running work off the render goroutine: a
// dedicated worker, a worker pool, operator pipelines, and a loop that
// publishes to the three kinds of message channel.
//
// All output is rendered to a single writer by a serial "main" executor.
// Producers hand lines to it without blocking; a line offered while the
// render queue is full is dropped.
type Main struct {
	cfg   config.Main
	scope *backpressure.Scope
	log   *slog.Logger
	out   io.Writer

	ui     *executor.Pool
	thread *executor.Pool
	pool   *executor.Pool

	// Message holds the latest message, State retains and replays the
	// current state, and Events carries one-off events such as navigation.
	Message *channel.Latest[string]
	State   *channel.Replay[string]
	Events  *channel.Ephemeral[string]
}

// NewMain creates a Main demo rendering to out. It runs until Close.
func NewMain(cfg config.Main, log *slog.Logger, out io.Writer) *Main {
	scope := backpressure.NewScope(log)
	log = scope.Log().With("demo", "main")
	m := &Main{
		cfg:   cfg,
		scope: scope,
		log:   log,
		out:   out,

		ui:     executor.NewSerial(log, "main", cfg.UIQueue),
		thread: executor.NewSerial(log, "Example-Using-Thread", cfg.UIQueue),
		pool:   executor.NewPool(log, "pool", cfg.PoolWorkers, cfg.UIQueue),

		Message: channel.NewLatest("Initial Message LiveData"),
		State:   channel.NewReplay("Initial Message StateFlow"),
		Events:  channel.NewEphemeral[string](cfg.UIQueue),
	}
	scope.Defer(m.ui.Close)
	scope.Defer(m.thread.Close)
	scope.Defer(m.pool.Close)
	scope.Defer(m.Events.Close)
	scope.Defer(m.State.Close)
	return m
}

// render queues line to be written by the main executor, and reports
// whether it was queued. Lines queued when m closes are discarded.
func (m *Main) render(line string) bool {
	ok := m.ui.Post(func(ctx context.Context) {
		if ctx.Err() == nil {
			fmt.Fprintln(m.out, line)
		}
	})
	if !ok {
		m.log.Debug("render dropped", "line", line)
	}
	return ok
}

// Observe starts rendering the current message, the current state, and each
// event, as they change.
func (m *Main) Observe() error {
	if err := m.scope.Go("observe/message", func(ctx context.Context) error {
		m.render("message: " + m.Message.Get())
		for {
			v, ok := m.Message.Wait(ctx)
			if !ok {
				return nil
			}
			m.render("message: " + v)
		}
	}); err != nil {
		return err
	}

	state := m.State.Subscribe()
	if err := m.scope.Go("observe/state", func(ctx context.Context) error {
		defer state.Cancel()
		return drain(ctx, state.C(), "state: ", m.render)
	}); err != nil {
		state.Cancel()
		return err
	}

	events := m.Events.Subscribe()
	if err := m.scope.Go("observe/events", func(ctx context.Context) error {
		defer events.Cancel()
		return drain(ctx, events.C(), "event: ", m.render)
	}); err != nil {
		events.Cancel()
		return err
	}
	return nil
}

// sleep waits for d or until ctx ends, and reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func drain(ctx context.Context, ch <-chan string, prefix string, render func(string) bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			render(prefix + v)
		}
	}
}

// ExecUsingThread runs a few slow steps on the dedicated worker.
func (m *Main) ExecUsingThread() error {
	return m.thread.Submit(m.scope.Context(), m.steps(m.cfg.ThreadDelay))
}

// ExecUsingThreadPool runs a few quick steps on one of the pool workers.
func (m *Main) ExecUsingThreadPool() error {
	return m.pool.Submit(m.scope.Context(), m.steps(m.cfg.PoolDelay))
}

func (m *Main) steps(delay time.Duration) executor.Task {
	return func(ctx context.Context) {
		worker := executor.WorkerName(ctx)
		for i := range m.cfg.ThreadSteps {
			m.log.Info("Executed using Thread", "step", i, "worker", worker)
			m.render(fmt.Sprintf("Executed using Thread: %d %s", i, worker))
			if !sleep(ctx, delay) {
				return
			}
		}
	}
}

// A pipeline builds an operator chain whose output is rendered as strings.
// Each tick is the configured operator interval.
type pipeline func(ctx context.Context, tick time.Duration) <-chan string

func stringify[T any](ctx context.Context, in <-chan T) <-chan string {
	return operator.Map(ctx, in, func(v T) string { return fmt.Sprint(v) })
}

var pipelines = map[string]pipeline{
	"map": func(ctx context.Context, _ time.Duration) <-chan string {
		return operator.Map(ctx, operator.Range(ctx, 0, 3, 0), func(i int) string {
			return fmt.Sprintf("%d-String", i*i)
		})
	},
	"flatmap": func(ctx context.Context, _ time.Duration) <-chan string {
		return operator.FlatMap(ctx, operator.Range(ctx, 0, 3, 0), func(i int) []string {
			return []string{fmt.Sprintf("%d-String", i+1), fmt.Sprintf("%d-String", i+2)}
		})
	},
	"merge": func(ctx context.Context, tick time.Duration) <-chan string {
		return stringify(ctx, operator.Merge(ctx,
			operator.Range(ctx, 0, 3, tick),
			operator.Range(ctx, 4, 7, 10*tick),
		))
	},
	"concat": func(ctx context.Context, tick time.Duration) <-chan string {
		return stringify(ctx, operator.Concat(ctx,
			operator.Range(ctx, 0, 3, tick),
			operator.Range(ctx, 4, 7, 10*tick),
		))
	},
	"zip": func(ctx context.Context, tick time.Duration) <-chan string {
		return operator.Zip3(ctx,
			operator.Range(ctx, 0, 100, 10*tick),
			operator.Range(ctx, 4, 10, tick),
			operator.Range(ctx, 11, 12, tick),
			func(a, b, c int) string { return fmt.Sprintf("%d + %d + %d", a, b, c) },
		)
	},
	"throttlefirst": func(ctx context.Context, tick time.Duration) <-chan string {
		return stringify(ctx, operator.ThrottleFirst(ctx, operator.Range(ctx, 0, 10, tick), 10*tick))
	},
	"throttlelast": func(ctx context.Context, tick time.Duration) <-chan string {
		return stringify(ctx, operator.ThrottleLast(ctx, operator.Range(ctx, 0, 100, tick), 2*tick))
	},
	"debounce": func(ctx context.Context, tick time.Duration) <-chan string {
		return stringify(ctx, operator.Debounce(ctx, operator.Range(ctx, 0, 100, tick), tick/2))
	},
	"filter": func(ctx context.Context, tick time.Duration) <-chan string {
		return stringify(ctx, operator.Filter(ctx, operator.Range(ctx, 0, 100, tick), func(i int) bool {
			return i < 10
		}))
	},
}

// Operators returns the names accepted by ExecUsingOperators, in order.
func Operators() []string {
	return slices.Sorted(maps.Keys(pipelines))
}

// ExecUsingOperators runs the named operator pipeline in the background,
// rendering each value it produces.
func (m *Main) ExecUsingOperators(name string) error {
	name = strings.ToLower(name)
	build, ok := pipelines[name]
	if !ok {
		return fmt.Errorf("unknown operator %q (want one of %s)", name, strings.Join(Operators(), ", "))
	}
	title := "Executed using " + name
	return m.scope.Go("operator/"+name, func(ctx context.Context) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for v := range build(ctx, m.cfg.OperatorInterval) {
			m.log.Debug(title, "value", v)
			m.render(title + ": " + v)
		}
		if ctx.Err() == nil {
			m.render(title + ": complete")
		}
		return nil
	})
}

// ExecUsingCoroutines starts a loop that publishes a numbered message to
// each of the message channels every tick.
func (m *Main) ExecUsingCoroutines() error {
	return m.scope.Go("coroutines", func(ctx context.Context) error {
		for i := range m.cfg.TickCount {
			m.Message.Set(fmt.Sprintf("Executed using Coroutines: LiveData %d", i))
			m.State.Emit(fmt.Sprintf("Executed using Coroutines: StateFlow %d", i))
			if _, err := m.Events.Emit(ctx, fmt.Sprintf("Executed using Coroutines: SharedFlow %d", i)); err != nil {
				return err
			}
			if !sleep(ctx, m.cfg.TickInterval) {
				return nil
			}
		}
		return nil
	})
}

// Navigate emits a navigation event for dest. Only observers active at the
// time of the emission see it.
func (m *Main) Navigate(dest string) error {
	return m.scope.Go("navigate", func(ctx context.Context) error {
		_, err := m.Events.Emit(ctx, "Navigate to "+dest)
		return err
	})
}

// Close stops all the work started by m, waits for it to exit, and releases
// its executors and channels. Nothing is rendered after Close returns.
func (m *Main) Close() error { return m.scope.Close() }
