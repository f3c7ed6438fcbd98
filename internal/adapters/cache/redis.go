package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/ladder/internal/domain/types"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Redis is the shared Cache driver: JSON snapshots under prefixed keys
// with Redis-native TTLs. Every failure degrades to a miss or a dropped
// write; the board stays correct without the cache.
type Redis struct {
	client *redis.Client
	cfg    settings
	log    logger.Logger
}

// NewRedis connects and pings; a failed dial is fatal to the caller.
func NewRedis(ctx context.Context, addr, password string, db int, opts ...Option) (*Redis, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{
		client: client,
		cfg:    cfg,
		log:    logger.Named("rediscache"),
	}, nil
}

// Close releases the client.
func (c *Redis) Close() error {
	return c.client.Close()
}

func topKey(n int) string {
	return fmt.Sprintf("ladder:top:%d", n)
}

func rankKey(playerID int64) string {
	return fmt.Sprintf("ladder:rank:%d", playerID)
}

// GetTop returns the cached page for n. Connectivity errors count as
// misses.
func (c *Redis) GetTop(ctx context.Context, n int) ([]types.Entry, bool) {
	data, err := c.client.Get(ctx, topKey(n)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug(ctx, "top page read failed", logger.Int("n", n), logger.Error(err))
			metrics.RecordErrorByComponent("cache", "get_top")
		}
		metrics.RecordCacheMiss("top")
		return nil, false
	}

	var entries []types.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.log.Debug(ctx, "top page decode failed", logger.Int("n", n), logger.Error(err))
		metrics.RecordCacheMiss("top")
		return nil, false
	}

	metrics.RecordCacheHit("top")
	return entries, true
}

// SetTop stores a page under its N with the Top TTL.
func (c *Redis) SetTop(ctx context.Context, n int, entries []types.Entry) {
	if n < 1 || n > c.cfg.maxTop {
		return
	}

	data, err := json.Marshal(entries)
	if err != nil {
		c.log.Debug(ctx, "top page encode failed", logger.Int("n", n), logger.Error(err))
		return
	}
	if err := c.client.Set(ctx, topKey(n), data, c.cfg.topTTL).Err(); err != nil {
		c.log.Debug(ctx, "top page write failed", logger.Int("n", n), logger.Error(err))
		metrics.RecordErrorByComponent("cache", "set_top")
	}
}

// InvalidateTop deletes every page key in one pipeline. The key space is
// bounded by maxTop, so no KEYS scan is needed.
func (c *Redis) InvalidateTop(ctx context.Context) {
	pipe := c.client.Pipeline()
	for n := 1; n <= c.cfg.maxTop; n++ {
		pipe.Del(ctx, topKey(n))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Debug(ctx, "top invalidation failed", logger.Error(err))
		metrics.RecordErrorByComponent("cache", "invalidate_top")
		metrics.RecordSideEffectFailure("cache")
	}
	metrics.RecordCacheInvalidation("top")
}

// GetRank returns the cached snapshot for a player.
func (c *Redis) GetRank(ctx context.Context, playerID int64) (types.RankSnapshot, bool) {
	data, err := c.client.Get(ctx, rankKey(playerID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug(ctx, "rank read failed", logger.Int64("player_id", playerID), logger.Error(err))
			metrics.RecordErrorByComponent("cache", "get_rank")
		}
		metrics.RecordCacheMiss("rank")
		return types.RankSnapshot{}, false
	}

	var snap types.RankSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.log.Debug(ctx, "rank decode failed", logger.Int64("player_id", playerID), logger.Error(err))
		metrics.RecordCacheMiss("rank")
		return types.RankSnapshot{}, false
	}

	metrics.RecordCacheHit("rank")
	return snap, true
}

// SetRank stores a player's snapshot with the rank TTL.
func (c *Redis) SetRank(ctx context.Context, playerID int64, snap types.RankSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		c.log.Debug(ctx, "rank encode failed", logger.Int64("player_id", playerID), logger.Error(err))
		return
	}
	if err := c.client.Set(ctx, rankKey(playerID), data, c.cfg.rankTTL).Err(); err != nil {
		c.log.Debug(ctx, "rank write failed", logger.Int64("player_id", playerID), logger.Error(err))
		metrics.RecordErrorByComponent("cache", "set_rank")
	}
}

// InvalidateRank deletes one player's snapshot.
func (c *Redis) InvalidateRank(ctx context.Context, playerID int64) {
	if err := c.client.Del(ctx, rankKey(playerID)).Err(); err != nil {
		c.log.Debug(ctx, "rank invalidation failed", logger.Int64("player_id", playerID), logger.Error(err))
		metrics.RecordErrorByComponent("cache", "invalidate_rank")
		metrics.RecordSideEffectFailure("cache")
	}
	metrics.RecordCacheInvalidation("rank")
}
