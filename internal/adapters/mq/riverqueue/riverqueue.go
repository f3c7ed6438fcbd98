// Package riverqueue is the durable recompute queue driver. Requests are
// Postgres-backed River jobs, so pending rank refreshes survive process
// restarts and retries are handled by the job system itself.
package riverqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"golang.org/x/time/rate"

	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/types"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Default driver configuration constants.
const (
	jobKindRecompute        = "rank_recompute"
	defaultWorkers          = 2
	defaultMaxAttempts      = 4
	defaultJobsPerSecond    = 5.0
	defaultFullPassInterval = 5 * time.Minute
)

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

// RecomputeArgs is the job payload. Uniqueness by args means a player
// with a job already pending absorbs repeat requests, the durable
// equivalent of the in-memory coalescer.
type RecomputeArgs struct {
	PlayerID int64       `json:"player_id"`
	Scope    model.Scope `json:"scope"`
}

// Kind returns the job type identifier for River.
func (RecomputeArgs) Kind() string { return jobKindRecompute }

// fullPassState is shared between the job workers and the client so
// Status can report the last completed full pass.
type fullPassState struct {
	mu       sync.Mutex
	at       time.Time
	duration time.Duration
	ranked   int64
}

func (s *fullPassState) record(at time.Time, duration time.Duration, ranked int64) {
	s.mu.Lock()
	s.at = at
	s.duration = duration
	s.ranked = ranked
	s.mu.Unlock()

	metrics.UpdateLastFullRecompute(at.Unix())
}

func (s *fullPassState) snapshot() (time.Time, time.Duration, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at, s.duration, s.ranked
}

// recomputeWorker executes one job against the store.
type recomputeWorker struct {
	river.WorkerDefaults[RecomputeArgs]

	recomputer  Recomputer
	invalidator Invalidator
	limiter     *rate.Limiter
	fullPass    *fullPassState
	log         logger.Logger
}

// Work processes a single recompute job. Returning an error hands the
// job back to River for its own backoff schedule; after the attempt
// budget it lands in the discarded state, which is the dead set here.
func (w *recomputeWorker) Work(ctx context.Context, job *river.Job[RecomputeArgs]) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait interrupted: %w", err)
	}

	metrics.RecordQueueDequeue()
	scope := string(job.Args.Scope)
	start := time.Now()

	var ranked int64
	var err error
	if job.Args.Scope == model.ScopeFull {
		ranked, err = w.recomputer.RecomputeFullRanks(ctx)
	} else {
		err = w.recomputer.RecomputePlayerRank(ctx, job.Args.PlayerID)
	}

	if errors.Is(err, repository.ErrNotFound) {
		// The player vanished between enqueue and processing; there is
		// no rank to refresh and retrying would not change that.
		w.log.Debug(ctx, "skipping recompute for unknown player",
			logger.Int64("player_id", job.Args.PlayerID))
		return nil
	}
	if err != nil {
		metrics.RecordJobFailed(scope)
		if job.Attempt >= job.MaxAttempts {
			metrics.RecordJobDead(scope)
		} else {
			metrics.RecordJobRetry(scope)
		}
		return fmt.Errorf("recompute %s: %w", scope, err)
	}

	duration := time.Since(start)
	metrics.RecordJobProcessed(scope, float64(duration.Milliseconds()))

	if job.Args.Scope == model.ScopeFull {
		w.fullPass.record(time.Now(), duration, ranked)
		if w.invalidator != nil {
			w.invalidator.InvalidateTop(ctx)
		}
	} else if w.invalidator != nil {
		w.invalidator.InvalidateRank(ctx, job.Args.PlayerID)
	}

	return nil
}

// Client runs the durable recompute engine on a dedicated pgx pool.
type Client struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	log    logger.Logger

	workers          int
	maxAttempts      int
	jobsPerSecond    float64
	fullPassInterval time.Duration

	fullPass *fullPassState
}

// NewClient connects, migrates River's schema and registers the
// recompute worker. Jobs do not run until Start is called.
func NewClient(ctx context.Context, dsn string, rec Recomputer, inv Invalidator, opts ...Option) (*Client, error) {
	c := &Client{
		log:              logger.Named("riverqueue"),
		workers:          defaultWorkers,
		maxAttempts:      defaultMaxAttempts,
		jobsPerSecond:    defaultJobsPerSecond,
		fullPassInterval: defaultFullPassInterval,
		fullPass:         &fullPassState{},
	}
	for _, opt := range opts {
		opt(c)
	}

	// River requires pgx, not database/sql.
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run river migrations: %w", err)
	}

	// One limiter shared by every job worker keeps the aggregate
	// recompute load on the store bounded.
	limiter := rate.NewLimiter(rate.Limit(c.jobsPerSecond), 1)

	workers := river.NewWorkers()
	river.AddWorker(workers, &recomputeWorker{
		recomputer:  rec,
		invalidator: inv,
		limiter:     limiter,
		fullPass:    c.fullPass,
		log:         c.log,
	})

	riverConfig := &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: c.workers},
		},
		Workers: workers,
	}
	if c.fullPassInterval > 0 {
		riverConfig.PeriodicJobs = []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(c.fullPassInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return RecomputeArgs{Scope: model.ScopeFull}, c.insertOpts()
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		}
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), riverConfig)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create river client: %w", err)
	}

	c.pool = pool
	c.client = riverClient

	metrics.UpdateWorkerActiveCount(c.workers)

	return c, nil
}

func (c *Client) insertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		MaxAttempts: c.maxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// Start begins job processing.
func (c *Client) Start(ctx context.Context) error {
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}
	return nil
}

// Enqueue inserts a recompute job. A duplicate of a still pending job is
// skipped by River's uniqueness check and counts as coalesced.
func (c *Client) Enqueue(ctx context.Context, r model.RecomputeRequest) bool {
	result, err := c.client.Insert(ctx, RecomputeArgs{PlayerID: r.PlayerID, Scope: r.Scope}, c.insertOpts())
	if err != nil {
		c.log.Error(ctx, "job insert failed",
			logger.String("scope", string(r.Scope)),
			logger.Int64("player_id", r.PlayerID),
			logger.Error(err),
		)
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "insert_failed")
		return false
	}

	if result.UniqueSkippedAsDuplicate {
		metrics.RecordJobCoalesced()
	} else {
		metrics.RecordQueueEnqueue()
	}
	return true
}

// Status counts pending and discarded recompute jobs and reports the
// last completed full pass.
func (c *Client) Status(ctx context.Context) types.RecomputeStatus {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE state IN ('available', 'scheduled', 'pending', 'running', 'retryable')),
			COUNT(*) FILTER (WHERE state = 'discarded')
		FROM river_job
		WHERE kind = $1`

	var depth, dead int64
	if err := c.pool.QueryRow(ctx, query, jobKindRecompute).Scan(&depth, &dead); err != nil {
		c.log.Error(ctx, "job status query failed", logger.Error(err))
		metrics.RecordErrorByComponent("queue", "status_query")
	}

	metrics.UpdateQueueSize(int(depth))
	metrics.UpdateDeadSetSize(int(dead))

	at, duration, ranked := c.fullPass.snapshot()
	return types.RecomputeStatus{
		QueueDepth:         int(depth),
		DeadJobs:           int(dead),
		LastFullAt:         at,
		LastFullDurationMs: duration.Milliseconds(),
		LastFullRanked:     ranked,
	}
}

// Shutdown stops job processing and releases the pool.
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.client.Stop(ctx)
	c.pool.Close()
	if err != nil {
		return fmt.Errorf("stop river client: %w", err)
	}
	return nil
}
