// Package worker drains the recompute queue and refreshes materialized
// ranks through the store.
package worker

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/ladder/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithLimiter sets the rate limiter gating recompute work. A pool shares
// one limiter across all of its workers.
func WithLimiter(l *rate.Limiter) Option {
	return func(w *InMemoryWorker) {
		w.limiter = l
	}
}

// WithDeadSet sets the sink for requests whose retries were exhausted.
func WithDeadSet(ds DeadSet) Option {
	return func(w *InMemoryWorker) {
		w.dead = ds
	}
}

// WithFullPassRecorder sets the observer for completed full passes.
func WithFullPassRecorder(r FullPassRecorder) Option {
	return func(w *InMemoryWorker) {
		w.fullPass = r
	}
}

// WithMaxRetries sets how many times a failed request is retried before
// it is moved to the dead set.
func WithMaxRetries(n int) Option {
	return func(w *InMemoryWorker) {
		if n >= 0 {
			w.maxRetries = n
		}
	}
}

// WithBackoffBase sets the first retry delay; each retry doubles it.
func WithBackoffBase(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.backoffBase = d
		}
	}
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithJobsPerSecond caps the pool's aggregate recompute throughput.
func WithJobsPerSecond(n float64) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.jobsPerSecond = n
		}
	}
}

// WithRetries sets the per-request retry budget for the pool's workers.
func WithRetries(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the first retry delay for the pool's workers.
func WithRetryBackoff(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.backoffBase = d
		}
	}
}

// WithFullPassInterval sets how often a full-board recompute is
// enqueued. Zero disables the periodic pass.
func WithFullPassInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d >= 0 {
			p.fullPassInterval = d
		}
	}
}

// WithDeadSetCap bounds how many dead requests are kept for inspection.
func WithDeadSetCap(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.deadSetCap = n
		}
	}
}
