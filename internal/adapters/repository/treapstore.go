// Package repository defines the leaderboard store interface and errors.
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/ladder/internal/domain/rank"
	"github.com/okian/ladder/internal/domain/types"
	"github.com/okian/ladder/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: total score DESC, then playerID ASC (deterministic).
// The BST comparator treats "less" as "ranks earlier", so an in-order
// traversal walks the board from best to worst. A single mutex stands
// in for the row locking a relational driver gets from the database.

// aggRecord holds the aggregate state for one player.
type aggRecord struct {
	total       int64
	rank        int64 // materialized dense rank, 0 until a recompute pass settles it
	displayName string
	joinedAt    time.Time
}

// treap node
type node struct {
	id    int64
	total int64
	prio  uint64
	left  *node
	right *node
}

// less returns true if (aTotal, aID) should appear before (bTotal, bID)
// on the board (higher totals first).
func less(aTotal, aID, bTotal, bID int64) bool {
	if aTotal != bTotal {
		return aTotal > bTotal // higher total ranks earlier
	}
	return aID < bID // tie-breaker by id asc
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	return y
}

// totalToPriority converts a total to a priority value so higher totals
// stay near the root, which lets TopN exit early.
func totalToPriority(total int64) uint64 {
	const offset = uint64(1) << 63 // shift negatives into positive range
	return uint64(total) + offset
}

func insert(n *node, id, total int64) *node {
	if n == nil {
		return &node{id: id, total: total, prio: totalToPriority(total)}
	}
	if less(total, id, n.total, n.id) {
		n.left = insert(n.left, id, total)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, total)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	return n
}

func deleteNode(n *node, id, total int64) *node {
	if n == nil {
		return nil
	}
	if total == n.total && id == n.id {
		// Merge children by rotating the higher priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, total)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, total)
		}
	} else if less(total, id, n.total, n.id) {
		n.left = deleteNode(n.left, id, total)
	} else {
		n.right = deleteNode(n.right, id, total)
	}
	return n
}

// collectTopN appends up to limit entries in board order. Ranks are left
// unset for the caller to assign by position.
func collectTopN(n *node, limit int, aggs map[int64]aggRecord, out *[]types.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}

	// Left subtree holds higher totals (or equal totals with lower ids).
	collectTopN(n.left, limit, aggs, out)

	if len(*out) < limit {
		if rec, exists := aggs[n.id]; exists {
			*out = append(*out, types.Entry{
				PlayerID:    n.id,
				DisplayName: rec.displayName,
				TotalScore:  rec.total,
			})
		}
	}

	if len(*out) < limit {
		collectTopN(n.right, limit, aggs, out)
	}
}

// collectAll appends every entry in board order.
func collectAll(n *node, aggs map[int64]aggRecord, out *[]types.Entry) {
	if n == nil {
		return
	}
	collectAll(n.left, aggs, out)
	if rec, ok := aggs[n.id]; ok {
		*out = append(*out, types.Entry{
			PlayerID:    n.id,
			DisplayName: rec.displayName,
			TotalScore:  rec.total,
		})
	}
	collectAll(n.right, aggs, out)
}

// TreapStore is the in-memory Store driver. It backs unit tests and dev
// mode; the relational driver is PostgresStore.
type TreapStore struct {
	mu      sync.RWMutex
	root    *node
	byID    map[int64]aggRecord
	journal map[int64][]int64 // append-only session scores per player

	sessionCount int64
	scoreSum     int64

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		metricsUpdateInterval: 5 * time.Second,
		byID:                  make(map[int64]aggRecord),
		journal:               make(map[int64][]int64),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)

	return s
}

// Close gracefully shuts down the background goroutines.
func (s *TreapStore) Close() error {
	select {
	case <-s.stopChan:
		// already closed
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// SubmitScore implements Store.SubmitScore. The single mutex makes the
// journal append and the total refresh atomic, which is what the
// relational driver gets from its row lock.
func (s *TreapStore) SubmitScore(ctx context.Context, playerID, score int64, mode string) (types.SubmissionResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	submittedAt := time.Now().UTC()

	s.mu.Lock()
	rec, ok := s.byID[playerID]
	if !ok {
		rec = aggRecord{
			displayName: DefaultDisplayName(playerID),
			joinedAt:    submittedAt,
		}
	} else {
		s.root = deleteNode(s.root, playerID, rec.total)
	}

	s.journal[playerID] = append(s.journal[playerID], score)

	// Recompute the total from the whole journal rather than adding the
	// delta; mirrors the SUM the relational driver runs.
	var total int64
	for _, sc := range s.journal[playerID] {
		total += sc
	}

	rec.total = total
	s.byID[playerID] = rec
	s.root = insert(s.root, playerID, total)

	s.sessionCount++
	s.scoreSum += score
	s.mu.Unlock()

	return types.SubmissionResult{
		PlayerID:    playerID,
		TotalScore:  total,
		SubmittedAt: submittedAt,
	}, nil
}

// TopN returns the top N entries ordered by total desc.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Entry, 0, n)
	collectTopN(s.root, n, s.byID, &out)
	return out, nil
}

// RankOf returns the live rank view for a player. The rank is derived
// from the current totals, not from the materialized rank column.
func (s *TreapStore) RankOf(ctx context.Context, playerID int64) (types.RankSnapshot, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[playerID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.RankSnapshot{}, ErrNotFound
	}

	totals := make([]int64, 0, len(s.byID))
	for _, r := range s.byID {
		totals = append(totals, r.total)
	}

	return types.RankSnapshot{
		PlayerID:     playerID,
		DisplayName:  rec.displayName,
		TotalScore:   rec.total,
		Rank:         rank.Of(totals, rec.total),
		TotalPlayers: int64(len(s.byID)),
	}, nil
}

// Stats returns data-set wide counters.
func (s *TreapStore) Stats(ctx context.Context) (types.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	avg := 0.0
	if s.sessionCount > 0 {
		avg = float64(s.scoreSum) / float64(s.sessionCount)
	}

	return types.Stats{
		TotalPlayers:  int64(len(s.byID)),
		TotalSessions: s.sessionCount,
		AverageScore:  avg,
	}, nil
}

// RecomputeFullRanks rewrites the materialized rank of every player.
func (s *TreapStore) RecomputeFullRanks(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	// The treap walk already yields board order.
	entries := make([]types.Entry, 0, len(s.byID))
	collectAll(s.root, s.byID, &entries)
	rank.Assign(entries)

	for _, e := range entries {
		rec := s.byID[e.PlayerID]
		rec.rank = int64(e.Rank)
		s.byID[e.PlayerID] = rec
	}

	return int64(len(entries)), nil
}

// RecomputePlayerRank rewrites the materialized rank of one player using
// the count-of-greater-totals rule.
func (s *TreapStore) RecomputePlayerRank(ctx context.Context, playerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[playerID]
	if !ok {
		return ErrNotFound
	}

	totals := make([]int64, 0, len(s.byID))
	for _, r := range s.byID {
		totals = append(totals, r.total)
	}

	rec.rank = int64(rank.Of(totals, rec.total))
	s.byID[playerID] = rec
	return nil
}

// MaterializedRank exposes the stored rank column for a player: the
// value the last recompute wrote, 0 if no pass has ranked the player
// yet. Reads never consult it; the recompute engine and its tests do.
func (s *TreapStore) MaterializedRank(ctx context.Context, playerID int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[playerID]
	if !ok {
		return 0, false
	}
	return rec.rank, true
}

// startMetricsUpdater starts a background goroutine that refreshes the
// data-set gauges at the configured interval.
func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
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
				s.updateMetrics()
			}
		}
	}()
}

// updateMetrics refreshes data-set gauges.
func (s *TreapStore) updateMetrics() {
	s.mu.RLock()
	players := int64(len(s.byID))
	sessions := s.sessionCount
	s.mu.RUnlock()

	metrics.UpdateTotalPlayers(players)
	metrics.UpdateTotalSessions(sessions)
}
