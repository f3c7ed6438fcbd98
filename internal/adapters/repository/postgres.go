// Package repository defines the leaderboard store interface and errors.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/okian/ladder/internal/domain/types"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

const defaultSubmitTimeout = 30 * time.Second

// PostgresStore implements Store on PostgreSQL through bun.
type PostgresStore struct {
	db                    *bun.DB
	log                   logger.Logger
	submitTimeout         time.Duration
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewPostgresStore connects, bootstraps the schema, and starts the
// background gauge updater. A failed connect is fatal to the caller.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	s := &PostgresStore{
		db:                    db,
		log:                   logger.Named("postgres"),
		submitTimeout:         defaultSubmitTimeout,
		metricsUpdateInterval: 15 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	s.startMetricsUpdater(ctx)
	return s, nil
}

// bootstrap creates the schema if it does not exist yet.
func (s *PostgresStore) bootstrap(ctx context.Context) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewCreateTable().Model((*Player)(nil)).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create players table: %w", err)
		}
		if _, err := tx.NewCreateTable().Model((*Session)(nil)).IfNotExists().
			ForeignKey(`("player_id") REFERENCES "players" ("id")`).
			Exec(ctx); err != nil {
			return fmt.Errorf("create sessions table: %w", err)
		}
		if _, err := tx.NewCreateTable().Model((*Aggregate)(nil)).IfNotExists().
			ForeignKey(`("player_id") REFERENCES "players" ("id")`).
			Exec(ctx); err != nil {
			return fmt.Errorf("create aggregates table: %w", err)
		}

		// The session journal is always scanned per player, and the board
		// is always read in total order.
		if _, err := tx.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_sessions_player_id ON sessions (player_id);
		`); err != nil {
			return fmt.Errorf("create sessions index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_aggregates_total_score ON aggregates (total_score DESC, player_id ASC);
		`); err != nil {
			return fmt.Errorf("create aggregates index: %w", err)
		}
		return nil
	})
}

// Close stops the background updater and closes the pool.
func (s *PostgresStore) Close() error {
	select {
	case <-s.stopChan:
		// already closed
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return s.db.Close()
}

// SubmitScore implements Store.SubmitScore as one transaction: upsert
// player, append session, lock the aggregate row, recompute the total
// from the whole journal, upsert the aggregate.
//
// Serialization: a first submission inserts the player row, so a
// concurrent first submission for the same player waits on the primary
// key conflict until this transaction commits. Once the player exists
// the aggregate row exists too, and SELECT ... FOR UPDATE serializes
// the rest. Either way the SUM runs after the lock and can never miss a
// concurrent session.
func (s *PostgresStore) SubmitScore(ctx context.Context, playerID, score int64, mode string) (types.SubmissionResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	ctx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	submittedAt := time.Now().UTC()
	var total int64

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		player := &Player{
			ID:          playerID,
			DisplayName: DefaultDisplayName(playerID),
			JoinedAt:    submittedAt,
		}
		if _, err := tx.NewInsert().
			Model(player).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("upsert player %d: %w", playerID, err)
		}

		sess := &Session{
			PlayerID:    playerID,
			Score:       score,
			Mode:        mode,
			SubmittedAt: submittedAt,
		}
		if _, err := tx.NewInsert().Model(sess).Exec(ctx); err != nil {
			return fmt.Errorf("insert session for player %d: %w", playerID, err)
		}

		var locked Aggregate
		err := tx.NewSelect().
			Model(&locked).
			Where("a.player_id = ?", playerID).
			For("UPDATE").
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock aggregate for player %d: %w", playerID, err)
		}

		if err := tx.NewSelect().
			Model((*Session)(nil)).
			ColumnExpr("COALESCE(SUM(s.score), 0)").
			Where("s.player_id = ?", playerID).
			Scan(ctx, &total); err != nil {
			return fmt.Errorf("sum sessions for player %d: %w", playerID, err)
		}

		agg := &Aggregate{PlayerID: playerID, TotalScore: total}
		if _, err := tx.NewInsert().
			Model(agg).
			On("CONFLICT (player_id) DO UPDATE").
			Set("total_score = EXCLUDED.total_score").
			Exec(ctx); err != nil {
			return fmt.Errorf("upsert aggregate for player %d: %w", playerID, err)
		}
		return nil
	})
	if err != nil {
		metrics.RecordErrorByComponent("repository", "submit")
		return types.SubmissionResult{}, normalizeStoreError(err)
	}

	return types.SubmissionResult{
		PlayerID:    playerID,
		TotalScore:  total,
		SubmittedAt: submittedAt,
	}, nil
}

// topRow is the join projection for leaderboard reads.
type topRow struct {
	PlayerID    int64  `bun:"player_id"`
	DisplayName string `bun:"display_name"`
	TotalScore  int64  `bun:"total_score"`
}

// TopN returns the top N entries ordered by total desc.
func (s *PostgresStore) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	var rows []topRow
	err := s.db.NewSelect().
		Model((*Aggregate)(nil)).
		ColumnExpr("a.player_id, p.display_name, a.total_score").
		Join("JOIN players AS p ON p.id = a.player_id").
		OrderExpr("a.total_score DESC, a.player_id ASC").
		Limit(n).
		Scan(ctx, &rows)
	if err != nil {
		return nil, normalizeStoreError(fmt.Errorf("query top %d: %w", n, err))
	}

	entries := make([]types.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, types.Entry{
			PlayerID:    r.PlayerID,
			DisplayName: r.DisplayName,
			TotalScore:  r.TotalScore,
		})
	}
	return entries, nil
}

// RankOf returns the live rank view for a player: distinct totals
// strictly greater than theirs, plus one.
func (s *PostgresStore) RankOf(ctx context.Context, playerID int64) (types.RankSnapshot, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var row topRow
	err := s.db.NewSelect().
		Model((*Aggregate)(nil)).
		ColumnExpr("a.player_id, p.display_name, a.total_score").
		Join("JOIN players AS p ON p.id = a.player_id").
		Where("a.player_id = ?", playerID).
		Scan(ctx, &row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.RecordErrorByComponent("repository", "not_found")
			return types.RankSnapshot{}, ErrNotFound
		}
		return types.RankSnapshot{}, normalizeStoreError(fmt.Errorf("query player %d: %w", playerID, err))
	}

	var greater int64
	if err := s.db.NewSelect().
		Model((*Aggregate)(nil)).
		ColumnExpr("COUNT(DISTINCT a.total_score)").
		Where("a.total_score > ?", row.TotalScore).
		Scan(ctx, &greater); err != nil {
		return types.RankSnapshot{}, normalizeStoreError(fmt.Errorf("count greater totals: %w", err))
	}

	totalPlayers, err := s.db.NewSelect().Model((*Aggregate)(nil)).Count(ctx)
	if err != nil {
		return types.RankSnapshot{}, normalizeStoreError(fmt.Errorf("count players: %w", err))
	}

	return types.RankSnapshot{
		PlayerID:     row.PlayerID,
		DisplayName:  row.DisplayName,
		TotalScore:   row.TotalScore,
		Rank:         int(greater) + 1,
		TotalPlayers: int64(totalPlayers),
	}, nil
}

// Stats returns data-set wide counters.
func (s *PostgresStore) Stats(ctx context.Context) (types.Stats, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	totalPlayers, err := s.db.NewSelect().Model((*Player)(nil)).Count(ctx)
	if err != nil {
		return types.Stats{}, normalizeStoreError(fmt.Errorf("count players: %w", err))
	}

	var agg struct {
		Sessions int64 `bun:"sessions"`
		ScoreSum int64 `bun:"score_sum"`
	}
	if err := s.db.NewSelect().
		Model((*Session)(nil)).
		ColumnExpr("COUNT(*) AS sessions, COALESCE(SUM(s.score), 0) AS score_sum").
		Scan(ctx, &agg); err != nil {
		return types.Stats{}, normalizeStoreError(fmt.Errorf("aggregate sessions: %w", err))
	}

	avg := 0.0
	if agg.Sessions > 0 {
		avg = float64(agg.ScoreSum) / float64(agg.Sessions)
	}

	return types.Stats{
		TotalPlayers:  int64(totalPlayers),
		TotalSessions: agg.Sessions,
		AverageScore:  avg,
	}, nil
}

// RecomputeFullRanks rewrites every materialized rank in one statement
// using a window function, so re-running it is a no-op on settled data.
func (s *PostgresStore) RecomputeFullRanks(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	ranked := s.db.NewSelect().
		Model((*Aggregate)(nil)).
		Column("a.player_id").
		ColumnExpr("DENSE_RANK() OVER (ORDER BY a.total_score DESC) AS new_rank")

	res, err := s.db.NewUpdate().
		Model((*Aggregate)(nil)).
		TableExpr("(?) AS ranked", ranked).
		Set("rank = ranked.new_rank").
		Where("a.player_id = ranked.player_id").
		Exec(ctx)
	if err != nil {
		return 0, normalizeStoreError(fmt.Errorf("full rank rewrite: %w", err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("full rank rows affected: %w", err)
	}
	return rows, nil
}

// RecomputePlayerRank rewrites one player's materialized rank with the
// count-of-greater-totals rule.
func (s *PostgresStore) RecomputePlayerRank(ctx context.Context, playerID int64) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	res, err := s.db.NewUpdate().
		Model((*Aggregate)(nil)).
		Set("rank = (SELECT COUNT(DISTINCT a2.total_score) + 1 FROM aggregates AS a2 WHERE a2.total_score > a.total_score)").
		Where("a.player_id = ?", playerID).
		Exec(ctx)
	if err != nil {
		return normalizeStoreError(fmt.Errorf("rank rewrite for player %d: %w", playerID, err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rank rewrite rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// startMetricsUpdater starts a background goroutine that refreshes the
// data-set gauges at the configured interval.
func (s *PostgresStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				stats, err := s.Stats(ctx)
				if err != nil {
					s.log.Debug(ctx, "stats refresh failed", logger.Error(err))
					continue
				}
				metrics.UpdateTotalPlayers(stats.TotalPlayers)
				metrics.UpdateTotalSessions(stats.TotalSessions)
			}
		}
	}()
}

// normalizeStoreError folds timeouts and connectivity failures into
// ErrTransient while keeping the cause in the chain.
func normalizeStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
