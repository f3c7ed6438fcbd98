// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/ladder/internal/adapters/cache"
	recomputequeue "github.com/okian/ladder/internal/adapters/mq/queue"
	workerpool "github.com/okian/ladder/internal/adapters/mq/worker"
	repository "github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/adapters/notify"
	"github.com/okian/ladder/internal/domain/dedupe"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rank"
	"github.com/okian/ladder/internal/domain/types"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Defaults for the built-in in-memory components. They only apply when
// no component is injected for the concern.
const (
	defaultWorkerCount = 2
	defaultQueueSize   = 10_000
	defaultDedupeSize  = 50_000

	statsRefreshInterval = 30 * time.Second
)

// ErrStopped is returned by Start after Stop has run. A stopped service
// releases its components and cannot be restarted.
var ErrStopped = errors.New("service already stopped")

// RecomputeEngine runs rank recomputation jobs behind the submission
// path. Both the in-memory worker pool and the durable river driver
// satisfy it.
type RecomputeEngine interface {
	Start(ctx context.Context) error
	Enqueue(ctx context.Context, req model.RecomputeRequest) bool
	Status(ctx context.Context) types.RecomputeStatus
	Shutdown(ctx context.Context) error
}

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	cache    cache.Cache
	engine   RecomputeEngine
	notifier notify.Notifier

	// Configuration for the built-in engine
	workerCount int
	queueSize   int
	dedupeSize  int

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects the score store. Start builds an in-memory treap
// store when none is given. The service owns the store and closes it
// on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCache injects the read-path cache. Start builds an in-memory
// cache when none is given. The service owns the cache and closes it
// on Stop.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithRecomputeEngine injects the rank recomputation engine. Start
// builds an in-memory queue and worker pool when none is given.
func WithRecomputeEngine(engine RecomputeEngine) Option {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithNotifier injects the score notification sink. Submissions are
// not notified when none is given.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithWorkerCount sets the number of recompute workers for the
// built-in engine.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the built-in recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the capacity of the built-in engine's pending-job
// coalescer.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
		stopCh:      make(chan struct{}),
		logger:      nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the missing components and starts the recompute
// engine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting leaderboard service...")

	// Fall back to in-memory components for anything not injected
	if s.store == nil {
		s.store = repository.NewTreapStore(ctx)
		s.logger.Info(ctx, "using in-memory treap store")
	}
	if s.cache == nil {
		s.cache = cache.NewMemory(ctx)
	}
	if s.notifier == nil {
		s.notifier = notify.NewNop()
	}
	if s.engine == nil {
		tracker := dedupe.NewInMemoryTracker(
			dedupe.WithMaxSize(s.dedupeSize),
		)
		queue := recomputequeue.NewInMemoryQueue(
			recomputequeue.WithCapacity(s.queueSize),
			recomputequeue.WithBufferSize(s.queueSize),
			recomputequeue.WithTracker(tracker),
		)
		pool := workerpool.NewPool(s.workerCount, queue, s.store, s.cache)
		s.engine = workerpool.NewEngine(queue, pool)
	}

	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("start recompute engine: %w", err)
	}

	s.startStatsRefresher(ctx)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop gracefully shuts down the service. Stop is terminal: the engine
// is drained and every component is closed.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping leaderboard service...")

	// Drain the engine first so in-flight recomputes still have the
	// store and cache underneath them.
	if s.engine != nil {
		if err := s.engine.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "recompute engine shutdown failed", logger.Error(err))
		}
	}

	if s.notifier != nil {
		_ = s.notifier.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	// Signal background loops to stop
	select {
	case <-s.stopCh:
		// Channel already closed
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
}

// Started reports whether the service is running.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// SubmitScore validates and persists one score submission, then fires
// the post-commit side effects. The returned result reflects the
// committed aggregate.
func (s *Service) SubmitScore(ctx context.Context, sub model.Submission) (types.SubmissionResult, error) {
	sub.Normalize()
	if err := sub.Validate(); err != nil {
		metrics.RecordSubmissionError()
		return types.SubmissionResult{}, err
	}

	start := time.Now()
	result, err := s.store.SubmitScore(ctx, sub.PlayerID, sub.Score, sub.Mode)
	if err != nil {
		metrics.RecordSubmissionError()
		return types.SubmissionResult{}, fmt.Errorf("submit score: %w", err)
	}
	metrics.RecordSubmission(float64(time.Since(start).Milliseconds()))

	s.afterCommit(ctx, sub)

	return result, nil
}

// afterCommit runs the post-commit side effects of a submission: cache
// invalidation, an incremental recompute request, and the score
// notification. The submission is already durable; none of these may
// fail it.
func (s *Service) afterCommit(ctx context.Context, sub model.Submission) {
	s.cache.InvalidateTop(ctx)
	s.cache.InvalidateRank(ctx, sub.PlayerID)

	accepted := s.engine.Enqueue(ctx, model.RecomputeRequest{
		PlayerID: sub.PlayerID,
		Scope:    model.ScopeIncremental,
	})
	if !accepted {
		metrics.RecordSideEffectFailure("enqueue")
		s.logger.Warn(ctx, "incremental recompute rejected",
			logger.Int64("playerID", sub.PlayerID),
		)
	}

	if err := s.notifier.ScoreChanged(ctx, model.ScoreEvent{
		PlayerID:   sub.PlayerID,
		Score:      sub.Score,
		OccurredAt: sub.TS,
	}); err != nil {
		metrics.RecordSideEffectFailure("notify")
		s.logger.Warn(ctx, "score notification failed",
			logger.Int64("playerID", sub.PlayerID),
			logger.Error(err),
		)
	}
}

// GetTop returns the top n leaderboard entries, ranked. Pages come from
// the cache when fresh; misses read through to the store. n above the
// cacheable page bound is clamped to it.
func (s *Service) GetTop(ctx context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		return nil, repository.ErrInvalidLimit
	}
	if n > cache.DefaultMaxTop {
		n = cache.DefaultMaxTop
	}

	if entries, ok := s.cache.GetTop(ctx, n); ok {
		return entries, nil
	}

	entries, err := s.store.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	rank.Assign(entries)
	s.cache.SetTop(ctx, n, entries)

	return entries, nil
}

// GetRank returns the rank view for a given player, from the cache when
// fresh. Unknown players surface repository.ErrNotFound.
func (s *Service) GetRank(ctx context.Context, playerID int64) (types.RankSnapshot, error) {
	if playerID <= 0 {
		return types.RankSnapshot{}, model.ErrInvalidPlayerID
	}

	if snap, ok := s.cache.GetRank(ctx, playerID); ok {
		return snap, nil
	}

	snap, err := s.store.RankOf(ctx, playerID)
	if err != nil {
		return types.RankSnapshot{}, err
	}
	s.cache.SetRank(ctx, playerID, snap)

	return snap, nil
}

// GetStats returns data-set wide counters and refreshes the matching
// gauges.
func (s *Service) GetStats(ctx context.Context) (types.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return types.Stats{}, err
	}

	metrics.UpdateTotalPlayers(stats.TotalPlayers)
	metrics.UpdateTotalSessions(stats.TotalSessions)

	return stats, nil
}

// TriggerFullRecomputation asks the engine for a full rank rewrite and
// reports whether the request was accepted. The pass itself runs
// asynchronously.
func (s *Service) TriggerFullRecomputation(ctx context.Context) bool {
	return s.engine.Enqueue(ctx, model.RecomputeRequest{Scope: model.ScopeFull})
}

// RecomputeStatus reports the engine's queue depth, dead jobs, and last
// full pass.
func (s *Service) RecomputeStatus(ctx context.Context) types.RecomputeStatus {
	return s.engine.Status(ctx)
}

// startStatsRefresher keeps the player and session gauges warm between
// stats requests.
func (s *Service) startStatsRefresher(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(statsRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.GetStats(ctx); err != nil {
					s.logger.Debug(ctx, "stats refresh failed", logger.Error(err))
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}
