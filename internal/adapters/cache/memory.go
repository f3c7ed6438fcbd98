package cache

import (
	"context"
	"sync"
	"time"

	"github.com/okian/ladder/internal/domain/types"
	"github.com/okian/ladder/pkg/metrics"
)

// topPage is a cached Top-N result with its expiry.
type topPage struct {
	entries   []types.Entry
	expiresAt time.Time
}

// rankPage is a cached player snapshot with its expiry.
type rankPage struct {
	snap      types.RankSnapshot
	expiresAt time.Time
}

// Memory is the in-process Cache driver: plain maps guarded by a mutex
// with a janitor goroutine sweeping expired entries. Default driver for
// dev mode and tests.
type Memory struct {
	cfg settings

	mu    sync.RWMutex
	top   map[int]topPage
	ranks map[int64]rankPage

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemory constructs the in-process cache and starts its janitor.
func NewMemory(ctx context.Context, opts ...Option) *Memory {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Memory{
		cfg:      cfg,
		top:      make(map[int]topPage),
		ranks:    make(map[int64]rankPage),
		stopChan: make(chan struct{}),
	}
	c.startJanitor(ctx)
	return c
}

// Close stops the janitor.
func (c *Memory) Close() error {
	select {
	case <-c.stopChan:
		// already closed
	default:
		close(c.stopChan)
	}
	c.wg.Wait()
	return nil
}

// GetTop returns the cached page for n, treating expired pages as misses.
func (c *Memory) GetTop(ctx context.Context, n int) ([]types.Entry, bool) {
	c.mu.RLock()
	page, ok := c.top[n]
	c.mu.RUnlock()

	if !ok || time.Now().After(page.expiresAt) {
		metrics.RecordCacheMiss("top")
		return nil, false
	}

	metrics.RecordCacheHit("top")
	out := make([]types.Entry, len(page.entries))
	copy(out, page.entries)
	return out, true
}

// SetTop stores a copy of the page under its N.
func (c *Memory) SetTop(ctx context.Context, n int, entries []types.Entry) {
	if n < 1 || n > c.cfg.maxTop {
		return
	}

	stored := make([]types.Entry, len(entries))
	copy(stored, entries)

	c.mu.Lock()
	c.top[n] = topPage{entries: stored, expiresAt: time.Now().Add(c.cfg.topTTL)}
	c.mu.Unlock()
}

// InvalidateTop drops every cached page.
func (c *Memory) InvalidateTop(ctx context.Context) {
	c.mu.Lock()
	c.top = make(map[int]topPage)
	c.mu.Unlock()
	metrics.RecordCacheInvalidation("top")
}

// GetRank returns the cached snapshot, treating expired ones as misses.
func (c *Memory) GetRank(ctx context.Context, playerID int64) (types.RankSnapshot, bool) {
	c.mu.RLock()
	page, ok := c.ranks[playerID]
	c.mu.RUnlock()

	if !ok || time.Now().After(page.expiresAt) {
		metrics.RecordCacheMiss("rank")
		return types.RankSnapshot{}, false
	}

	metrics.RecordCacheHit("rank")
	return page.snap, true
}

// SetRank stores a player's snapshot.
func (c *Memory) SetRank(ctx context.Context, playerID int64, snap types.RankSnapshot) {
	c.mu.Lock()
	c.ranks[playerID] = rankPage{snap: snap, expiresAt: time.Now().Add(c.cfg.rankTTL)}
	c.mu.Unlock()
}

// InvalidateRank drops one player's snapshot.
func (c *Memory) InvalidateRank(ctx context.Context, playerID int64) {
	c.mu.Lock()
	delete(c.ranks, playerID)
	c.mu.Unlock()
	metrics.RecordCacheInvalidation("rank")
}

// startJanitor sweeps expired entries so an idle cache does not hold
// dead pages between reads.
func (c *Memory) startJanitor(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.janitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// sweep removes expired pages.
func (c *Memory) sweep() {
	now := time.Now()

	c.mu.Lock()
	for n, page := range c.top {
		if now.After(page.expiresAt) {
			delete(c.top, n)
		}
	}
	for id, page := range c.ranks {
		if now.After(page.expiresAt) {
			delete(c.ranks, id)
		}
	}
	c.mu.Unlock()
}
