// Package cache holds disposable read-path projections of the board:
// Top-N pages and per-player rank snapshots, each with its own TTL.
// Entries are never a source of truth; on any doubt the answer is a miss
// and the caller re-reads the store.
package cache

import (
	"context"
	"time"

	"github.com/okian/ladder/internal/domain/types"
)

// Default TTLs and the largest cacheable Top-N page.
const (
	DefaultTopTTL  = 60 * time.Second
	DefaultRankTTL = 30 * time.Second
	DefaultMaxTop  = 100
)

// Cache is the projection store. Implementations are best-effort: a
// failed read is a miss, a failed write or invalidation is logged and
// dropped, and neither ever fails the caller.
type Cache interface {
	// GetTop returns the cached page for a Top-N query, reporting a miss
	// when absent or expired.
	GetTop(ctx context.Context, n int) ([]types.Entry, bool)
	// SetTop stores a page under its N.
	SetTop(ctx context.Context, n int, entries []types.Entry)
	// InvalidateTop drops every cached Top-N page.
	InvalidateTop(ctx context.Context)

	// GetRank returns the cached snapshot for a player, reporting a miss
	// when absent or expired.
	GetRank(ctx context.Context, playerID int64) (types.RankSnapshot, bool)
	// SetRank stores a player's snapshot.
	SetRank(ctx context.Context, playerID int64, snap types.RankSnapshot)
	// InvalidateRank drops one player's snapshot.
	InvalidateRank(ctx context.Context, playerID int64)

	// Close releases the cache's resources.
	Close() error
}

// settings is the driver-independent configuration.
type settings struct {
	topTTL          time.Duration
	rankTTL         time.Duration
	maxTop          int
	janitorInterval time.Duration
}

func defaultSettings() settings {
	return settings{
		topTTL:          DefaultTopTTL,
		rankTTL:         DefaultRankTTL,
		maxTop:          DefaultMaxTop,
		janitorInterval: 30 * time.Second,
	}
}

// Option applies a configuration option to a cache driver.
type Option func(*settings)

// WithTopTTL sets the Top-N page lifetime.
func WithTopTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.topTTL = d
		}
	}
}

// WithRankTTL sets the per-player snapshot lifetime.
func WithRankTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.rankTTL = d
		}
	}
}

// WithMaxTop caps the N a Top-N page can be cached under; it also bounds
// the key range a full invalidation has to cover.
func WithMaxTop(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTop = n
		}
	}
}

// WithJanitorInterval sets how often the memory driver sweeps expired
// entries. The redis driver expires keys natively and ignores it.
func WithJanitorInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.janitorInterval = d
		}
	}
}
