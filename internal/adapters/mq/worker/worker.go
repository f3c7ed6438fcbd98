// Package worker drains the recompute queue and refreshes materialized
// ranks through the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/ladder/internal/adapters/mq/queue"
	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/types"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount      = 2
	defaultJobsPerSecond    = 5.0
	defaultMaxRetries       = 3
	defaultBackoffBase      = 100 * time.Millisecond
	defaultFullPassInterval = 5 * time.Minute
	defaultDeadSetCap       = 1000
	metricsUpdateInterval   = 5 * time.Second
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Request abstracts what workers read off the queue.
type Request = queue.Request

// Recomputer refreshes materialized ranks in the store.
type Recomputer interface {
	RecomputeFullRanks(ctx context.Context) (int64, error)
	RecomputePlayerRank(ctx context.Context, playerID int64) error
}

// Invalidator drops cached snapshots made stale by a recompute.
type Invalidator interface {
	InvalidateTop(ctx context.Context)
	InvalidateRank(ctx context.Context, playerID int64)
}

// Queue defines how workers receive requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Request
}

// DeadSet collects requests whose retries were exhausted.
type DeadSet interface {
	AddDead(ctx context.Context, r Request)
}

// FullPassRecorder observes completed full ranking passes.
type FullPassRecorder interface {
	RecordFullPass(completedAt time.Time, duration time.Duration, ranked int64)
}

// Worker processes recompute requests using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for requests arriving over the
// in-memory queue.
type InMemoryWorker struct {
	queue       Queue
	recomputer  Recomputer
	invalidator Invalidator
	name        string

	limiter     *rate.Limiter
	dead        DeadSet
	fullPass    FullPassRecorder
	maxRetries  int
	backoffBase time.Duration

	// Shutdown control
	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, rec Recomputer, inv Invalidator, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		recomputer:  rec,
		invalidator: inv,
		name:        "worker",
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	requestChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-requestChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			if err := w.processRequest(ctx, r); err != nil {
				if errors.Is(err, ErrStopped) {
					return
				}
				w.logger.Error(ctx, "recompute request failed",
					logger.String("scope", string(r.Scope)),
					logger.Int64("player_id", r.PlayerID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.signalStop()

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// signalStop is safe to call more than once.
func (w *InMemoryWorker) signalStop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// processRequest handles a single recompute request. Transient store
// failures are retried with exponential backoff; a request that keeps
// failing lands in the dead set.
func (w *InMemoryWorker) processRequest(ctx context.Context, r Request) error {
	if w.limiter != nil {
		waitStart := time.Now()
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("throttle wait interrupted: %w", err)
		}
		if waited := time.Since(waitStart); waited > time.Millisecond {
			metrics.RecordThrottleWait(float64(waited.Milliseconds()))
		}
	}

	scope := string(r.Scope)
	start := time.Now()

	var ranked int64
	for attempt := 0; ; attempt++ {
		var err error
		ranked, err = w.recompute(ctx, r)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrNotFound) {
			// The player vanished between enqueue and processing; there
			// is no rank to refresh.
			w.logger.Debug(ctx, "skipping recompute for unknown player",
				logger.Int64("player_id", r.PlayerID),
			)
			return nil
		}

		metrics.RecordJobFailed(scope)
		if attempt >= w.maxRetries {
			metrics.RecordJobDead(scope)
			if w.dead != nil {
				w.dead.AddDead(ctx, r)
			}
			return fmt.Errorf("recompute gave up after %d attempts: %w", attempt+1, err)
		}

		metrics.RecordJobRetry(scope)
		w.logger.Warn(ctx, "recompute attempt failed",
			logger.String("scope", scope),
			logger.Int64("player_id", r.PlayerID),
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)
		if err := w.backoff(ctx, attempt); err != nil {
			return err
		}
	}

	duration := time.Since(start)
	metrics.RecordJobProcessed(scope, float64(duration.Milliseconds()))

	switch r.Scope {
	case model.ScopeFull:
		if w.fullPass != nil {
			w.fullPass.RecordFullPass(time.Now(), duration, ranked)
		}
		if w.invalidator != nil {
			w.invalidator.InvalidateTop(ctx)
		}
	default:
		if w.invalidator != nil {
			w.invalidator.InvalidateRank(ctx, r.PlayerID)
		}
	}

	return nil
}

// recompute dispatches on the request scope.
func (w *InMemoryWorker) recompute(ctx context.Context, r Request) (int64, error) {
	if r.Scope == model.ScopeFull {
		return w.recomputer.RecomputeFullRanks(ctx)
	}
	return 0, w.recomputer.RecomputePlayerRank(ctx, r.PlayerID)
}

// backoff sleeps for the attempt's delay, doubling each time.
func (w *InMemoryWorker) backoff(ctx context.Context, attempt int) error {
	delay := w.backoffBase * time.Duration(1<<attempt)
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.shutdown:
		return ErrStopped
	}
}

// Pool manages multiple workers sharing one rate limit, one dead set and
// one full-pass schedule.
type Pool struct {
	workers     []*InMemoryWorker
	queue       Queue
	recomputer  Recomputer
	invalidator Invalidator
	limiter     *rate.Limiter

	jobsPerSecond    float64
	maxRetries       int
	backoffBase      time.Duration
	fullPassInterval time.Duration
	deadSetCap       int

	// Shutdown control
	shutdown chan struct{}
	stopOnce sync.Once

	// Guarded by mu: dead set and full-pass bookkeeping
	mu               sync.Mutex
	dead             []Request
	lastFullAt       time.Time
	lastFullDuration time.Duration
	lastFullRanked   int64

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, q Queue, rec Recomputer, inv Invalidator, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers:          make([]*InMemoryWorker, workerCount),
		queue:            q,
		recomputer:       rec,
		invalidator:      inv,
		jobsPerSecond:    defaultJobsPerSecond,
		maxRetries:       defaultMaxRetries,
		backoffBase:      defaultBackoffBase,
		fullPassInterval: defaultFullPassInterval,
		deadSetCap:       defaultDeadSetCap,
		shutdown:         make(chan struct{}),
		logger:           logger.Get().Named("worker-pool"),
	}

	for _, opt := range opts {
		opt(pool)
	}

	// One limiter across the pool keeps the aggregate recompute load on
	// the store bounded no matter how many workers drain the queue.
	pool.limiter = rate.NewLimiter(rate.Limit(pool.jobsPerSecond), 1)

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			q,
			rec,
			inv,
			WithName("worker-"+strconv.Itoa(i)),
			WithLimiter(pool.limiter),
			WithDeadSet(pool),
			WithFullPassRecorder(pool),
			WithMaxRetries(pool.maxRetries),
			WithBackoffBase(pool.backoffBase),
		)
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateDeadSetSize(0)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	go p.startMetricsUpdater(ctx)
	go p.startFullPassTicker(ctx)
}

// AddDead implements DeadSet. The set keeps the most recent failures up
// to its cap; it is a diagnostic window, not a second queue.
func (p *Pool) AddDead(ctx context.Context, r Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.dead) >= p.deadSetCap {
		p.dead = p.dead[1:]
	}
	p.dead = append(p.dead, r)
	metrics.UpdateDeadSetSize(len(p.dead))
}

// DeadJobs returns a copy of the dead set, oldest first.
func (p *Pool) DeadJobs() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Request, len(p.dead))
	copy(out, p.dead)
	return out
}

// RecordFullPass implements FullPassRecorder.
func (p *Pool) RecordFullPass(completedAt time.Time, duration time.Duration, ranked int64) {
	p.mu.Lock()
	p.lastFullAt = completedAt
	p.lastFullDuration = duration
	p.lastFullRanked = ranked
	p.mu.Unlock()

	metrics.UpdateLastFullRecompute(completedAt.Unix())
}

// Status reports the engine's queue depth, dead set and last full pass.
func (p *Pool) Status(ctx context.Context) types.RecomputeStatus {
	depth := 0
	if lener, ok := p.queue.(interface{ Len(context.Context) int }); ok {
		depth = lener.Len(ctx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return types.RecomputeStatus{
		QueueDepth:         depth,
		DeadJobs:           len(p.dead),
		LastFullAt:         p.lastFullAt,
		LastFullDurationMs: p.lastFullDuration.Milliseconds(),
		LastFullRanked:     p.lastFullRanked,
	}
}

// startFullPassTicker periodically enqueues a full-board recompute so
// materialized ranks converge even if incremental requests are lost. The
// first pass is enqueued right away.
func (p *Pool) startFullPassTicker(ctx context.Context) {
	if p.fullPassInterval <= 0 {
		return
	}

	enqueuer, ok := p.queue.(interface {
		Enqueue(context.Context, Request) bool
	})
	if !ok {
		return
	}

	p.enqueueFullPass(ctx, enqueuer)

	ticker := time.NewTicker(p.fullPassInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.enqueueFullPass(ctx, enqueuer)
		}
	}
}

func (p *Pool) enqueueFullPass(ctx context.Context, enqueuer interface {
	Enqueue(context.Context, Request) bool
}) {
	if !enqueuer.Enqueue(ctx, Request{Scope: model.ScopeFull}) {
		p.logger.Warn(ctx, "periodic full recompute rejected by queue")
	}
}

// startMetricsUpdater refreshes pool gauges on a fixed interval.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics(ctx)
		}
	}
}

// updateMetrics updates worker-related metrics.
func (p *Pool) updateMetrics(ctx context.Context) {
	p.mu.Lock()
	deadSize := len(p.dead)
	p.mu.Unlock()
	metrics.UpdateDeadSetSize(deadSize)

	// Len refreshes the queue gauges as a side effect.
	if lener, ok := p.queue.(interface{ Len(context.Context) int }); ok {
		lener.Len(ctx)
	}
}

// signalStop is safe to call more than once.
func (p *Pool) signalStop() {
	p.stopOnce.Do(func() { close(p.shutdown) })

	for _, w := range p.workers {
		w.signalStop()
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	p.signalStop()

	// Wait for all workers to finish
	for _, w := range p.workers {
		select {
		case <-w.done:
			// Worker finished
		case <-time.After(workerShutdownTimeout):
			// Worker timeout
		}
	}

	metrics.UpdateWorkerActiveCount(0)
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new requests
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	p.signalStop()

	// Wait for all workers to finish or context to timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	metrics.UpdateWorkerActiveCount(0)

	return nil
}
