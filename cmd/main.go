package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/ladder/internal/adapters/cache"
	"github.com/okian/ladder/internal/adapters/http/api"
	"github.com/okian/ladder/internal/adapters/http/site"
	"github.com/okian/ladder/internal/adapters/http/swagger"
	"github.com/okian/ladder/internal/adapters/mq/queue"
	"github.com/okian/ladder/internal/adapters/mq/riverqueue"
	workerpool "github.com/okian/ladder/internal/adapters/mq/worker"
	"github.com/okian/ladder/internal/adapters/notify"
	"github.com/okian/ladder/internal/adapters/repository"
	app "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/domain/dedupe"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
	engineMetricsInterval = 5 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics.
	// We collect our own system metrics instead.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		// Logger isn't available yet, write directly
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Assemble the configured drivers and start the service
	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		log.Fatal(ctx, "failed to assemble service", logger.Error(err))
	}
	if err := svc.Start(ctx); err != nil {
		log.Fatal(ctx, "failed to start service", logger.Error(err))
	}
	defer svc.Stop()

	// Start background metrics updaters
	go startSystemMetricsUpdater(ctx)
	go startEngineMetricsUpdater(ctx, svc)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// API docs and the documentation site
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)

	// Register business API routes with the service dependency.
	apiServer := api.NewServer(svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// buildService constructs every driver the configuration names and
// hands them to the service. All four components are built here even
// when they match the in-memory defaults so that the engine and the
// service share the same store and cache instances.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cch, err := buildCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	engine, err := buildEngine(ctx, cfg, store, cch)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "drivers selected",
		logger.String("store", cfg.Store.Driver),
		logger.String("cache", cfg.Cache.Driver),
		logger.String("queue", cfg.Queue.Driver),
		logger.String("notifier", cfg.Notifier.Driver),
	)

	return app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithCache(cch),
		app.WithRecomputeEngine(engine),
		app.WithNotifier(notifier),
		app.WithWorkerCount(cfg.Queue.WorkerCount),
		app.WithQueueSize(cfg.Queue.BufferSize),
		app.WithDedupeSize(cfg.Queue.DedupeSize),
	), nil
}

func buildStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		store, err := repository.NewPostgresStore(ctx, cfg.Store.DSN,
			repository.WithSubmitTimeout(cfg.Store.SubmitTimeout()),
		)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return store, nil
	default:
		return repository.NewTreapStore(ctx), nil
	}
}

func buildCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	opts := []cache.Option{
		cache.WithTopTTL(cfg.Cache.TopTTL()),
		cache.WithRankTTL(cfg.Cache.RankTTL()),
		cache.WithMaxTop(cfg.Cache.MaxTop),
	}
	switch cfg.Cache.Driver {
	case config.CacheRedis:
		c, err := cache.NewRedis(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, opts...)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return c, nil
	default:
		return cache.NewMemory(ctx, opts...), nil
	}
}

func buildEngine(ctx context.Context, cfg *config.Config, store repository.Store, cch cache.Cache) (app.RecomputeEngine, error) {
	if cfg.Queue.Driver == config.QueueRiver {
		dsn := cfg.Queue.DSN
		if dsn == "" {
			dsn = cfg.Store.DSN
		}
		client, err := riverqueue.NewClient(ctx, dsn, store, cch,
			riverqueue.WithWorkers(cfg.Queue.WorkerCount),
			riverqueue.WithMaxAttempts(cfg.Queue.MaxRetries+1),
			riverqueue.WithJobsPerSecond(cfg.Queue.JobsPerSecond),
			riverqueue.WithFullPassInterval(cfg.Queue.FullPassInterval()),
		)
		if err != nil {
			return nil, fmt.Errorf("river engine: %w", err)
		}
		return client, nil
	}

	tracker := dedupe.NewInMemoryTracker(dedupe.WithMaxSize(cfg.Queue.DedupeSize))
	q := queue.NewInMemoryQueue(
		queue.WithCapacity(cfg.Queue.BufferSize),
		queue.WithBufferSize(cfg.Queue.BufferSize),
		queue.WithTracker(tracker),
	)
	pool := workerpool.NewPool(cfg.Queue.WorkerCount, q, store, cch,
		workerpool.WithJobsPerSecond(cfg.Queue.JobsPerSecond),
		workerpool.WithRetries(cfg.Queue.MaxRetries),
		workerpool.WithRetryBackoff(cfg.Queue.BackoffBase()),
		workerpool.WithFullPassInterval(cfg.Queue.FullPassInterval()),
		workerpool.WithDeadSetCap(cfg.Queue.DeadSetCap),
	)
	return workerpool.NewEngine(q, pool), nil
}

func buildNotifier(ctx context.Context, cfg *config.Config) (notify.Notifier, error) {
	switch cfg.Notifier.Driver {
	case config.NotifierNATS:
		n, err := notify.NewNATS(ctx, cfg.Notifier.NATSURL, cfg.Notifier.Subject)
		if err != nil {
			return nil, fmt.Errorf("nats notifier: %w", err)
		}
		return n, nil
	case config.NotifierNone:
		return notify.NewNop(), nil
	default:
		n, err := notify.NewChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("channel notifier: %w", err)
		}
		return n, nil
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startEngineMetricsUpdater starts a background goroutine that mirrors
// engine progress into gauges.
func startEngineMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(engineMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateEngineMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// updateEngineMetrics updates recompute engine gauges.
func updateEngineMetrics(ctx context.Context, svc *app.Service) {
	status := svc.RecomputeStatus(ctx)
	metrics.UpdateQueueSize(status.QueueDepth)
	metrics.UpdateDeadSetSize(status.DeadJobs)
	if !status.LastFullAt.IsZero() {
		metrics.UpdateLastFullRecompute(status.LastFullAt.Unix())
	}
}
