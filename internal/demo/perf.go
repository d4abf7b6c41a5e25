package demo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/creachadair/backpressure/executor"
	"github.com/creachadair/backpressure/internal/config"
	"golang.org/x/sync/errgroup"
)

// A Strategy is a way of scheduling the units of a performance run.
type Strategy string

const (
	// PerUnit starts a goroutine for every unit.
	PerUnit Strategy = "per-unit"

	// SingleLoop runs every unit in turn on one goroutine.
	SingleLoop Strategy = "single-loop"

	// WorkerPool submits every unit to a fixed pool of workers.
	WorkerPool Strategy = "pool"
)

// Strategies lists the strategies in the order RunAll runs them.
var Strategies = []Strategy{PerUnit, SingleLoop, WorkerPool}

// Result is the outcome of a single performance run.
type Result struct {
	Strategy   Strategy
	Iterations int
	Elapsed    time.Duration
}

func (r Result) String() string {
	return fmt.Sprintf("%s Dataset = %d - %v", r.Strategy, r.Iterations, r.Elapsed.Round(time.Microsecond))
}

// Perf compares the cost of scheduling many tiny units of work. Each unit
// increments a shared counter and then asks the serial "main" executor to
// check whether the run is complete, which is where the time is measured.
type Perf struct {
	cfg config.Perf
	log *slog.Logger
	out io.Writer
	ui  *executor.Pool
}

// perfQueue is the render queue size for Perf.
const perfQueue = 256

// NewPerf creates a Perf that renders its results to out.
func NewPerf(cfg config.Perf, log *slog.Logger, out io.Writer) *Perf {
	log = orDiscard(log).With("demo", "perf")
	return &Perf{
		cfg: cfg,
		log: log,
		out: out,
		ui:  executor.NewSerial(log, "main", perfQueue),
	}
}

func orDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return log
}

// A perfRun tracks the progress of one run.
type perfRun struct {
	n       int64
	start   time.Time
	counter atomic.Int64
	done    chan time.Duration
}

// unit is the work of a single unit.
func (r *perfRun) unit() { r.counter.Add(1) }

// check runs on the main executor after each unit, and records the elapsed
// time once all the units have run.
func (r *perfRun) check(context.Context) {
	if r.counter.CompareAndSwap(r.n, 0) {
		r.done <- time.Since(r.start)
	}
}

// Run runs the units with the given strategy, and reports how long they took
// from start until the main executor saw the last of them.
func (p *Perf) Run(ctx context.Context, s Strategy) (Result, error) {
	r := &perfRun{
		n:     int64(p.cfg.Iterations),
		start: time.Now(),
		done:  make(chan time.Duration, 1),
	}
	p.log.Info("start", "strategy", s, "iterations", r.n)

	var err error
	switch s {
	case PerUnit:
		err = p.perUnit(ctx, r)
	case SingleLoop:
		err = p.singleLoop(ctx, r)
	case WorkerPool:
		err = p.workerPool(ctx, r)
	default:
		return Result{}, fmt.Errorf("unknown strategy %q", s)
	}
	if err != nil {
		return Result{}, fmt.Errorf("run %s: %w", s, err)
	}

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("run %s: %w", s, ctx.Err())
	case elapsed := <-r.done:
		res := Result{Strategy: s, Iterations: p.cfg.Iterations, Elapsed: elapsed}
		p.log.Info("end", "strategy", s, "elapsed", elapsed)
		if err := p.ui.Submit(ctx, func(context.Context) { fmt.Fprintln(p.out, res) }); err != nil {
			return res, err
		}
		return res, nil
	}
}

// RunAll runs each of the strategies in turn.
func (p *Perf) RunAll(ctx context.Context) ([]Result, error) {
	var out []Result
	for _, s := range Strategies {
		res, err := p.Run(ctx, s)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (p *Perf) perUnit(ctx context.Context, r *perfRun) error {
	var g errgroup.Group
	for range r.n {
		g.Go(func() error {
			r.unit()
			return p.ui.Submit(ctx, r.check)
		})
	}
	return g.Wait()
}

func (p *Perf) singleLoop(ctx context.Context, r *perfRun) error {
	var g errgroup.Group
	g.Go(func() error {
		for range r.n {
			r.unit()
			if err := p.ui.Submit(ctx, r.check); err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}

func (p *Perf) workerPool(ctx context.Context, r *perfRun) error {
	pool := executor.NewPool(p.log, "perf", p.cfg.Workers, p.cfg.Workers)

	var failed atomic.Int64
	for range r.n {
		err := pool.Submit(ctx, func(context.Context) {
			r.unit()
			if p.ui.Submit(ctx, r.check) != nil {
				failed.Add(1)
			}
		})
		if err != nil {
			pool.Close()
			return err
		}
	}
	pool.Close() // wait for queued units
	if n := failed.Load(); n != 0 {
		return fmt.Errorf("%d checks were not scheduled", n)
	}
	return nil
}

// Close stops the main executor, after it renders any pending results.
func (p *Perf) Close() { p.ui.Close() }
