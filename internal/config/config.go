// Package config loads demo settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to the names of all environment variables.
const Prefix = "BPDEMO_"

// Config holds the settings for all the demos.
type Config struct {
	LogLevel  slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string        `env:"LOG_FORMAT" envDefault:"text"`
	Duration  time.Duration `env:"DURATION" envDefault:"5s"`

	Backpressure Backpressure `envPrefix:"BP_"`
	Main         Main         `envPrefix:"MAIN_"`
	Perf         Perf         `envPrefix:"PERF_"`
}

// Backpressure holds the settings for the backpressure demo.
type Backpressure struct {
	// PayloadWords is the number of int64 words in each message payload.
	PayloadWords int `env:"PAYLOAD_WORDS" envDefault:"65536"`

	// SlowInterval paces the subject and observable producers; FastInterval
	// paces the flowable producer.
	SlowInterval time.Duration `env:"SLOW_INTERVAL" envDefault:"10ms"`
	FastInterval time.Duration `env:"FAST_INTERVAL" envDefault:"1ms"`

	// ConsumerDelay is the simulated processing time per message.
	ConsumerDelay time.Duration `env:"CONSUMER_DELAY" envDefault:"100ms"`

	// Capacity is the buffer size of bounded relays.
	Capacity int `env:"CAPACITY" envDefault:"128"`
}

// Main holds the settings for the producer/consumer demo.
type Main struct {
	ThreadSteps      int           `env:"THREAD_STEPS" envDefault:"3"`
	ThreadDelay      time.Duration `env:"THREAD_DELAY" envDefault:"1s"`
	PoolWorkers      int           `env:"POOL_WORKERS" envDefault:"5"`
	PoolDelay        time.Duration `env:"POOL_DELAY" envDefault:"100ms"`
	OperatorInterval time.Duration `env:"OPERATOR_INTERVAL" envDefault:"100ms"`
	TickInterval     time.Duration `env:"TICK_INTERVAL" envDefault:"100ms"`
	TickCount        int           `env:"TICK_COUNT" envDefault:"100000"`
	UIQueue          int           `env:"UI_QUEUE" envDefault:"64"`
}

// Perf holds the settings for the scheduling comparison.
type Perf struct {
	Iterations int `env:"ITERATIONS" envDefault:"50000"`
	Workers    int `env:"WORKERS" envDefault:"5"`
}

// Default returns the default configuration, matching the envDefault tags.
func Default() Config {
	return Config{
		LogLevel:  slog.LevelInfo,
		LogFormat: "text",
		Duration:  5 * time.Second,
		Backpressure: Backpressure{
			PayloadWords:  4096 * 16,
			SlowInterval:  10 * time.Millisecond,
			FastInterval:  time.Millisecond,
			ConsumerDelay: 100 * time.Millisecond,
			Capacity:      128,
		},
		Main: Main{
			ThreadSteps:      3,
			ThreadDelay:      time.Second,
			PoolWorkers:      5,
			PoolDelay:        100 * time.Millisecond,
			OperatorInterval: 100 * time.Millisecond,
			TickInterval:     100 * time.Millisecond,
			TickCount:        100000,
			UIQueue:          64,
		},
		Perf: Perf{Iterations: 50000, Workers: 5},
	}
}

// Load reads the configuration from the environment. If envFile is not
// empty, variables are first loaded from that file; variables already set
// in the environment take precedence. A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports an error if any setting is out of range.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	check(c.Backpressure.PayloadWords >= 1, "payload words must be positive")
	check(c.Backpressure.Capacity >= 1, "relay capacity must be positive")
	check(c.Main.PoolWorkers >= 1, "pool workers must be positive")
	check(c.Main.UIQueue >= 0, "UI queue must not be negative")
	check(c.Perf.Iterations >= 1, "perf iterations must be positive")
	check(c.Perf.Workers >= 1, "perf workers must be positive")
	for name, d := range map[string]time.Duration{
		"duration":          c.Duration,
		"slow interval":     c.Backpressure.SlowInterval,
		"fast interval":     c.Backpressure.FastInterval,
		"consumer delay":    c.Backpressure.ConsumerDelay,
		"thread delay":      c.Main.ThreadDelay,
		"pool delay":        c.Main.PoolDelay,
		"operator interval": c.Main.OperatorInterval,
		"tick interval":     c.Main.TickInterval,
	} {
		check(d >= 0, name+" must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if len(errs) != 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Logger returns a logger writing to w in the configured format and level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
