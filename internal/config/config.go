// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep the struct flat per concern and group driver settings together.
// - Provide New(ctx) to build a Config with defaults; Load(ctx) layers
//   file and environment on top.
// - External errors must be wrapped via this package's error kinds.
package config

import (
	"context"
	"fmt"
	"time"
)

// Driver names accepted by the driver fields below.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	QueueMemory = "memory"
	QueueRiver  = "river"

	NotifierChannel = "channel"
	NotifierNATS    = "nats"
	NotifierNone    = "none"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects and tunes the score store.
	Store StoreConfig `koanf:"store"`

	// Cache selects and tunes the read-path cache.
	Cache CacheConfig `koanf:"cache"`

	// Queue selects and tunes the rank recomputation engine.
	Queue QueueConfig `koanf:"queue"`

	// Notifier selects the score notification sink.
	Notifier NotifierConfig `koanf:"notifier"`
}

// StoreConfig tunes the score store.
type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `koanf:"driver"`

	// DSN is the Postgres connection string. Required for postgres.
	DSN string `koanf:"dsn"`

	// SubmitTimeoutSeconds bounds the submission transaction.
	SubmitTimeoutSeconds int `koanf:"submit_timeout_seconds"`
}

// SubmitTimeout returns the submission transaction bound.
func (c StoreConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutSeconds) * time.Second
}

// CacheConfig tunes the read-path cache.
type CacheConfig struct {
	// Driver is "redis" or "memory".
	Driver string `koanf:"driver"`

	// Addr, Password and DB configure the Redis connection.
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`

	// TopTTLSeconds and RankTTLSeconds bound staleness of the cached
	// projections.
	TopTTLSeconds  int `koanf:"top_ttl_seconds"`
	RankTTLSeconds int `koanf:"rank_ttl_seconds"`

	// MaxTop caps the cacheable Top-N page size.
	MaxTop int `koanf:"max_top"`
}

// TopTTL returns the Top-N page lifetime.
func (c CacheConfig) TopTTL() time.Duration {
	return time.Duration(c.TopTTLSeconds) * time.Second
}

// RankTTL returns the per-player snapshot lifetime.
func (c CacheConfig) RankTTL() time.Duration {
	return time.Duration(c.RankTTLSeconds) * time.Second
}

// QueueConfig tunes the rank recomputation engine.
type QueueConfig struct {
	// Driver is "river" or "memory".
	Driver string `koanf:"driver"`

	// DSN is the Postgres connection string for the river driver.
	// Falls back to the store DSN when empty.
	DSN string `koanf:"dsn"`

	// BufferSize bounds the in-memory queue.
	BufferSize int `koanf:"buffer_size"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`

	// JobsPerSecond caps recompute throughput across all workers.
	JobsPerSecond float64 `koanf:"jobs_per_second"`

	// MaxRetries bounds retry attempts before a job is parked.
	MaxRetries int `koanf:"max_retries"`

	// BackoffBaseMS is the first retry delay; it doubles per attempt.
	BackoffBaseMS int `koanf:"backoff_base_ms"`

	// FullPassIntervalSeconds schedules the periodic full recompute.
	// Zero disables it.
	FullPassIntervalSeconds int `koanf:"full_pass_interval_seconds"`

	// DeadSetCap bounds the parked-job set of the memory driver.
	DeadSetCap int `koanf:"dead_set_cap"`

	// DedupeSize bounds the pending-job coalescer of the memory driver.
	DedupeSize int `koanf:"dedupe_size"`
}

// BackoffBase returns the first retry delay.
func (c QueueConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

// FullPassInterval returns the periodic full recompute interval.
func (c QueueConfig) FullPassInterval() time.Duration {
	return time.Duration(c.FullPassIntervalSeconds) * time.Second
}

// NotifierConfig selects the score notification sink.
type NotifierConfig struct {
	// Driver is "channel", "nats" or "none".
	Driver string `koanf:"driver"`

	// NATSURL and Subject configure the NATS sink.
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
}

// New creates a Config with defaults. Context is accepted first to
// satisfy the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel: "info",
		Addr:     ":9080",
		Store: StoreConfig{
			Driver:               StoreMemory,
			SubmitTimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			Driver:         CacheMemory,
			Addr:           "127.0.0.1:6379",
			TopTTLSeconds:  60,
			RankTTLSeconds: 30,
			MaxTop:         100,
		},
		Queue: QueueConfig{
			Driver:                  QueueMemory,
			BufferSize:              10_000,
			WorkerCount:             2,
			JobsPerSecond:           5,
			MaxRetries:              3,
			BackoffBaseMS:           100,
			FullPassIntervalSeconds: 300,
			DeadSetCap:              1_000,
			DedupeSize:              50_000,
		},
		Notifier: NotifierConfig{
			Driver:  NotifierChannel,
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "ladder.scores",
		},
	}
}

// Validate reports the first configuration violation, wrapped in
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store driver %q requires a dsn", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.Store.SubmitTimeoutSeconds < 1 {
		return fmt.Errorf("%w: submit timeout must be at least one second", ErrInvalidConfig)
	}

	switch c.Cache.Driver {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.Addr == "" {
			return fmt.Errorf("%w: cache driver %q requires an addr", ErrInvalidConfig, c.Cache.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown cache driver %q", ErrInvalidConfig, c.Cache.Driver)
	}
	if c.Cache.TopTTLSeconds < 1 || c.Cache.RankTTLSeconds < 1 {
		return fmt.Errorf("%w: cache ttls must be at least one second", ErrInvalidConfig)
	}
	if c.Cache.MaxTop < 1 {
		return fmt.Errorf("%w: cache max_top must be positive", ErrInvalidConfig)
	}

	switch c.Queue.Driver {
	case QueueMemory:
	case QueueRiver:
		if c.Queue.DSN == "" && c.Store.DSN == "" {
			return fmt.Errorf("%w: queue driver %q requires a dsn", ErrInvalidConfig, c.Queue.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown queue driver %q", ErrInvalidConfig, c.Queue.Driver)
	}
	if c.Queue.WorkerCount < 1 {
		return fmt.Errorf("%w: queue worker_count must be positive", ErrInvalidConfig)
	}
	if c.Queue.JobsPerSecond <= 0 {
		return fmt.Errorf("%w: queue jobs_per_second must be positive", ErrInvalidConfig)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("%w: queue max_retries must not be negative", ErrInvalidConfig)
	}

	switch c.Notifier.Driver {
	case NotifierChannel, NotifierNone:
	case NotifierNATS:
		if c.Notifier.NATSURL == "" {
			return fmt.Errorf("%w: notifier driver %q requires a nats_url", ErrInvalidConfig, c.Notifier.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown notifier driver %q", ErrInvalidConfig, c.Notifier.Driver)
	}

	return nil
}
