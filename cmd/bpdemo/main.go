// Program bpdemo runs the backpressure and concurrency demos from the
// command line, logging to stderr and rendering to stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/creachadair/backpressure/internal/config"
	"github.com/creachadair/backpressure/internal/demo"
	"github.com/creachadair/backpressure/relay"
	"github.com/spf13/cobra"
)

var (
	envFile      string
	logLevel     string
	durationFlag time.Duration
	policyFlag   = relay.ErrorOnOverflow
	operatorFlag string
	iterations   int

	backpressureDemos = []string{
		"subject", "observable", "flowable", "subject-latest", "observable-drop",
	}

	rootCmd = &cobra.Command{
		Use:           "bpdemo",
		Short:         "Demonstrate producer/consumer backpressure strategies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	backpressureCmd = &cobra.Command{
		Use:   "backpressure [subject|observable|flowable|subject-latest|observable-drop]...",
		Short: "Run fast producers against slow consumers",
		Long: `Run fast producers against slow consumers, each through a relay.

With no arguments, all the demos are run together. The --policy flag
chooses the overflow policy of the flowable demo.`,
		Args:      cobra.OnlyValidArgs,
		ValidArgs: backpressureDemos,
		RunE:      runBackpressure,
	}

	channelsCmd = &cobra.Command{
		Use:   "channels",
		Short: "Publish to the latest, replay, and ephemeral channels",
		Args:  cobra.NoArgs,
		RunE:  runChannels,
	}

	execCmd = &cobra.Command{
		Use:       "exec thread|pool|operators",
		Short:     "Run work on a dedicated worker, a pool, or an operator pipeline",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"thread", "pool", "operators"},
		RunE:      runExec,
	}

	perfCmd = &cobra.Command{
		Use:   "perf [strategy]...",
		Short: "Compare ways of scheduling many small units of work",
		RunE:  runPerf,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "Load settings from this file if it exists")
	pf.StringVar(&logLevel, "log-level", "", "Log level (overrides "+config.Prefix+"LOG_LEVEL)")
	pf.DurationVar(&durationFlag, "duration", 0, "How long to run (overrides "+config.Prefix+"DURATION)")

	backpressureCmd.Flags().Var(&policyFlag, "policy",
		"Overflow policy for the flowable demo (unspecified, unbounded, latest, drop, error)")
	execCmd.Flags().StringVar(&operatorFlag, "operator", "map",
		"Operator pipeline to run ("+strings.Join(demo.Operators(), ", ")+")")
	perfCmd.Flags().IntVar(&iterations, "iterations", 0, "Number of units per run (overrides "+config.Prefix+"PERF_ITERATIONS)")

	rootCmd.AddCommand(backpressureCmd, channelsCmd, execCmd, perfCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bpdemo: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies the flags that override it.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
			return cfg, nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	if durationFlag > 0 {
		cfg.Duration = durationFlag
	}
	if iterations > 0 {
		cfg.Perf.Iterations = iterations
	}
	return cfg, cfg.Logger(os.Stderr), nil
}

// wait blocks until d has elapsed or ctx ends.
func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func runBackpressure(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = backpressureDemos
	}

	b := demo.NewBackpressure(cfg.Backpressure, log)
	for _, name := range args {
		switch name {
		case "subject":
			_, err = b.Subject()
		case "observable":
			_, err = b.Observable()
		case "flowable":
			_, err = b.Flowable(policyFlag)
		case "subject-latest":
			_, err = b.HandleSubjectByLatest()
		case "observable-drop":
			_, err = b.HandleObservableByDrop()
		}
		if err != nil {
			b.Close()
			return fmt.Errorf("start %s: %w", name, err)
		}
	}
	wait(cmd.Context(), cfg.Duration)
	if err := b.Close(); err != nil {
		log.Warn("some runs failed", "err", err)
	}

	for _, r := range b.Runs() {
		s := r.Stats()
		fmt.Printf("%-18s %-11s emitted=%d delivered=%d dropped=%d overflowed=%d max-queued=%d\n",
			r.Name, r.Policy, s.Emitted, s.Delivered, s.Dropped, s.Overflowed, s.MaxQueued)
	}
	return nil
}

func runChannels(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	m := demo.NewMain(cfg.Main, log, os.Stdout)
	if err := m.Observe(); err != nil {
		m.Close()
		return err
	}
	if err := m.ExecUsingCoroutines(); err != nil {
		m.Close()
		return err
	}
	wait(cmd.Context(), cfg.Duration/2)
	if err := m.Navigate("Backpressure Simulator"); err != nil {
		log.Warn("navigate failed", "err", err)
	}
	wait(cmd.Context(), cfg.Duration/2)
	return m.Close()
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	m := demo.NewMain(cfg.Main, log, os.Stdout)
	switch args[0] {
	case "thread":
		err = m.ExecUsingThread()
	case "pool":
		err = m.ExecUsingThreadPool()
	case "operators":
		err = m.ExecUsingOperators(operatorFlag)
	}
	if err != nil {
		m.Close()
		return err
	}
	wait(cmd.Context(), cfg.Duration)
	return m.Close()
}

func runPerf(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	strategies := demo.Strategies
	if len(args) != 0 {
		strategies = nil
		for _, arg := range args {
			strategies = append(strategies, demo.Strategy(arg))
		}
	}

	p := demo.NewPerf(cfg.Perf, log, os.Stdout)
	defer p.Close()
	for _, s := range strategies {
		if _, err := p.Run(cmd.Context(), s); err != nil {
			return err
		}
	}
	return nil
}
