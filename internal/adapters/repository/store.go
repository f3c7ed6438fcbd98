// Package repository defines the leaderboard store interface and errors.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/okian/ladder/internal/domain/types"
)

// Player is a registered participant. Rows are created implicitly by the
// first submission and never deleted.
type Player struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID          int64     `bun:"id,pk"`
	DisplayName string    `bun:"display_name,notnull"`
	JoinedAt    time.Time `bun:"joined_at,notnull"`
}

// Session is a single submitted game session. The table is append-only:
// rows are never mutated or deleted, so a player's total can always be
// recomputed from scratch.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID          int64     `bun:"id,pk,autoincrement"`
	PlayerID    int64     `bun:"player_id,notnull"`
	Score       int64     `bun:"score,notnull"`
	Mode        string    `bun:"mode,notnull"`
	SubmittedAt time.Time `bun:"submitted_at,notnull"`
}

// Aggregate is the per-player leaderboard row. TotalScore always equals
// the sum of the player's session scores. Rank is the materialized dense
// rank written by the recompute engine and stays NULL until the first
// pass settles it; readers derive live ranks from totals instead.
type Aggregate struct {
	bun.BaseModel `bun:"table:aggregates,alias:a"`

	PlayerID   int64         `bun:"player_id,pk"`
	TotalScore int64         `bun:"total_score,notnull"`
	Rank       sql.NullInt64 `bun:"rank"`
}

// DefaultDisplayName derives the name a player gets on implicit creation.
func DefaultDisplayName(playerID int64) string {
	return fmt.Sprintf("player-%d", playerID)
}

// Store provides read/write access to the leaderboard state.
type Store interface {
	// SubmitScore appends one session for a player and refreshes the
	// player's aggregate inside a single transaction. The player is
	// created on first submission. Returns the refreshed total.
	SubmitScore(ctx context.Context, playerID, score int64, mode string) (types.SubmissionResult, error)

	// TopN returns the top-N entries ordered by total desc, player id
	// asc. Ranks are left unset; callers assign them by position.
	// Returns ErrInvalidLimit when n < 1.
	TopN(ctx context.Context, n int) ([]types.Entry, error)

	// RankOf returns the live rank view for one player.
	// Returns ErrNotFound if the player is unknown.
	RankOf(ctx context.Context, playerID int64) (types.RankSnapshot, error)

	// Stats returns data-set wide counters.
	Stats(ctx context.Context) (types.Stats, error)

	// RecomputeFullRanks rewrites the materialized rank of every
	// aggregate row and reports how many rows were ranked. Idempotent.
	RecomputeFullRanks(ctx context.Context) (int64, error)

	// RecomputePlayerRank rewrites the materialized rank of a single
	// player. Returns ErrNotFound for unknown players.
	RecomputePlayerRank(ctx context.Context, playerID int64) error

	// Close releases the store's resources.
	Close() error
}
