package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestTreapStore_SubmitAndRead(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	// First submission creates the player
	res, err := store.SubmitScore(ctx, 1, 100, "solo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PlayerID != 1 {
		t.Errorf("expected player 1, got %d", res.PlayerID)
	}
	if res.TotalScore != 100 {
		t.Errorf("expected total 100, got %d", res.TotalScore)
	}
	if res.SubmittedAt.IsZero() {
		t.Error("expected a submission timestamp")
	}

	// Totals accumulate across sessions
	res, err = store.SubmitScore(ctx, 1, 150, "solo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalScore != 250 {
		t.Errorf("expected total 250, got %d", res.TotalScore)
	}

	// Rank view reflects the accumulated total
	snap, err := store.RankOf(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.TotalScore != 250 {
		t.Errorf("expected total 250, got %d", snap.TotalScore)
	}
	if snap.Rank != 1 {
		t.Errorf("expected rank 1, got %d", snap.Rank)
	}
	if snap.TotalPlayers != 1 {
		t.Errorf("expected 1 player, got %d", snap.TotalPlayers)
	}
	if snap.DisplayName != "player-1" {
		t.Errorf("expected default display name, got %q", snap.DisplayName)
	}

	// TopN returns the single entry without a rank
	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].PlayerID != 1 || entries[0].TotalScore != 250 {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
	if entries[0].Rank != 0 {
		t.Errorf("expected unset rank, got %d", entries[0].Rank)
	}
}

func TestTreapStore_SumInvariantUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	const submissions = 50

	var wg sync.WaitGroup
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.SubmitScore(ctx, 7, 1, "solo"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := store.RankOf(ctx, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.TotalScore != submissions {
		t.Errorf("expected total %d, got %d", submissions, snap.TotalScore)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalSessions != submissions {
		t.Errorf("expected %d sessions, got %d", submissions, stats.TotalSessions)
	}
	if stats.TotalPlayers != 1 {
		t.Errorf("expected 1 player, got %d", stats.TotalPlayers)
	}
}

func TestTreapStore_Ordering(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	totals := map[int64]int64{
		1: 850,
		2: 950,
		3: 750,
		4: 1000,
		5: 800,
	}
	for id, total := range totals {
		if _, err := store.SubmitScore(ctx, id, total, "solo"); err != nil {
			t.Fatalf("unexpected error for player %d: %v", id, err)
		}
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	expectedOrder := []int64{4, 2, 1, 5, 3}
	for i, id := range expectedOrder {
		if entries[i].PlayerID != id {
			t.Errorf("position %d: expected player %d, got %d", i, id, entries[i].PlayerID)
		}
	}

	// A smaller window returns a prefix of the same order
	top2, err := store.TopN(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top2) != 2 || top2[0].PlayerID != 4 || top2[1].PlayerID != 2 {
		t.Errorf("unexpected top2: %+v", top2)
	}
}

func TestTreapStore_TieBreaking(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	// Equal totals, inserted out of id order
	if _, err := store.SubmitScore(ctx, 9, 500, "solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.SubmitScore(ctx, 2, 500, "solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.SubmitScore(ctx, 5, 300, "solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// Ties order by player id ascending
	if entries[0].PlayerID != 2 || entries[1].PlayerID != 9 {
		t.Errorf("unexpected tie order: %d then %d", entries[0].PlayerID, entries[1].PlayerID)
	}

	// Dense ranking: both tied players rank 1, the next total ranks 2
	for _, id := range []int64{2, 9} {
		snap, err := store.RankOf(ctx, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Rank != 1 {
			t.Errorf("player %d: expected rank 1, got %d", id, snap.Rank)
		}
	}
	snap, err := store.RankOf(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Rank != 2 {
		t.Errorf("expected rank 2 after the tie, got %d", snap.Rank)
	}
}

func TestTreapStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	// Empty store reports zeros, not NaN
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalPlayers != 0 || stats.TotalSessions != 0 || stats.AverageScore != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}

	// Average is the mean session score, not the mean total
	if _, err := store.SubmitScore(ctx, 1, 100, "solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.SubmitScore(ctx, 1, 200, "solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.SubmitScore(ctx, 2, 600, "duo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalPlayers != 2 {
		t.Errorf("expected 2 players, got %d", stats.TotalPlayers)
	}
	if stats.TotalSessions != 3 {
		t.Errorf("expected 3 sessions, got %d", stats.TotalSessions)
	}
	if stats.AverageScore != 300 {
		t.Errorf("expected average 300, got %f", stats.AverageScore)
	}
}

func TestTreapStore_FullRecompute(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	totals := map[int64]int64{
		1: 500,
		2: 400,
		3: 400,
		4: 250,
	}
	for id, total := range totals {
		if _, err := store.SubmitScore(ctx, id, total, "solo"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// No pass has run: the materialized rank column is still unset
	for id := range totals {
		r, ok := store.MaterializedRank(ctx, id)
		if !ok {
			t.Fatalf("player %d missing", id)
		}
		if r != 0 {
			t.Errorf("player %d: expected unset rank, got %d", id, r)
		}
	}

	ranked, err := store.RecomputeFullRanks(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ranked != int64(len(totals)) {
		t.Errorf("expected %d ranked rows, got %d", len(totals), ranked)
	}

	expected := map[int64]int64{1: 1, 2: 2, 3: 2, 4: 3}
	for id, want := range expected {
		got, ok := store.MaterializedRank(ctx, id)
		if !ok {
			t.Fatalf("player %d missing", id)
		}
		if got != want {
			t.Errorf("player %d: expected materialized rank %d, got %d", id, want, got)
		}
	}

	// Idempotent: a second pass settles to the same state
	rankedAgain, err := store.RecomputeFullRanks(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rankedAgain != ranked {
		t.Errorf("expected %d ranked rows on rerun, got %d", ranked, rankedAgain)
	}
	for id, want := range expected {
		got, _ := store.MaterializedRank(ctx, id)
		if got != want {
			t.Errorf("player %d after rerun: expected %d, got %d", id, want, got)
		}
	}
}

func TestTreapStore_IncrementalRecompute(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	if _, err := store.SubmitScore(ctx, 1, 300, "solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.SubmitScore(ctx, 2, 200, "solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The incremental pass writes a real value, not a no-op
	if err := store.RecomputePlayerRank(ctx, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := store.MaterializedRank(ctx, 2)
	if !ok {
		t.Fatal("player 2 missing")
	}
	if got != 2 {
		t.Errorf("expected materialized rank 2, got %d", got)
	}

	// Player 2 overtakes player 1; the next incremental pass tracks it
	if _, err := store.SubmitScore(ctx, 2, 500, "solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.RecomputePlayerRank(ctx, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = store.MaterializedRank(ctx, 2)
	if got != 1 {
		t.Errorf("expected materialized rank 1 after overtake, got %d", got)
	}

	// Unknown players surface ErrNotFound
	if err := store.RecomputePlayerRank(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTreapStore_EdgeCases(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	if _, err := store.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := store.TopN(ctx, -1); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}

	if _, err := store.RankOf(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// A window larger than the data set returns everything
	if _, err := store.SubmitScore(ctx, 1, 10, "solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := store.TopN(ctx, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}

	// Zero scores are valid sessions
	res, err := store.SubmitScore(ctx, 1, 0, "solo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalScore != 10 {
		t.Errorf("expected total 10, got %d", res.TotalScore)
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	const goroutines = 10
	const perGoroutine = 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for i := int64(0); i < perGoroutine; i++ {
				playerID := base*perGoroutine + i + 1
				score := int64(50 + i)
				if _, err := store.SubmitScore(ctx, playerID, score, "solo"); err != nil {
					t.Errorf("player %d: unexpected error: %v", playerID, err)
				}
			}
		}(int64(g))
	}
	wg.Wait()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalPlayers != goroutines*perGoroutine {
		t.Errorf("expected %d players, got %d", goroutines*perGoroutine, stats.TotalPlayers)
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(entries))
	}
	for i := 0; i < len(entries)-1; i++ {
		if entries[i].TotalScore < entries[i+1].TotalScore {
			t.Errorf("entries not in descending order: %d < %d", entries[i].TotalScore, entries[i+1].TotalScore)
		}
	}
}

func TestTreapStore_ManyPlayersDenseRanks(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	// Four tiers of 25 players sharing a total each
	for i := int64(0); i < 100; i++ {
		total := (i%4 + 1) * 100
		if _, err := store.SubmitScore(ctx, i+1, total, "solo"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if _, err := store.RecomputeFullRanks(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Tier totals 400, 300, 200, 100 map to dense ranks 1..4
	for i := int64(0); i < 100; i++ {
		wantRank := int64(4 - i%4)
		got, ok := store.MaterializedRank(ctx, i+1)
		if !ok {
			t.Fatalf("player %d missing", i+1)
		}
		if got != wantRank {
			t.Errorf("player %d: expected rank %d, got %d", i+1, wantRank, got)
		}
	}

	// The live view agrees with the materialized ranks
	for _, id := range []int64{1, 2, 3, 4} {
		snap, err := store.RankOf(ctx, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		materialized, _ := store.MaterializedRank(ctx, id)
		if int64(snap.Rank) != materialized {
			t.Errorf("player %d: live rank %d != materialized %d", id, snap.Rank, materialized)
		}
	}
}

func TestTreapStore_JournalIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	// A lower later score still accumulates; nothing is replaced
	scores := []int64{500, 10, 200}
	var want int64
	for _, sc := range scores {
		res, err := store.SubmitScore(ctx, 3, sc, "solo")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want += sc
		if res.TotalScore != want {
			t.Errorf("expected running total %d, got %d", want, res.TotalScore)
		}
	}

	stats, _ := store.Stats(ctx)
	if stats.TotalSessions != int64(len(scores)) {
		t.Errorf("expected %d sessions, got %d", len(scores), stats.TotalSessions)
	}
}

func TestTreapStore_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)

	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error on double close: %v", err)
	}
}

func BenchmarkTreapStore_SubmitScore(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		var i int64
		for pb.Next() {
			i++
			_, _ = store.SubmitScore(ctx, i%10_000+1, i%1000, "solo")
		}
	})
}

func BenchmarkTreapStore_TopN(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	for i := int64(1); i <= 10_000; i++ {
		_, _ = store.SubmitScore(ctx, i, i%1000, "solo")
	}

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.TopN(ctx, 100)
		}
	})
}

func BenchmarkTreapStore_RankOf(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	for i := int64(1); i <= 10_000; i++ {
		_, _ = store.SubmitScore(ctx, i, i%1000, "solo")
	}

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		var i int64
		for pb.Next() {
			i++
			_, _ = store.RankOf(ctx, i%10_000+1)
		}
	})
}

func BenchmarkTreapStore_FullRecompute(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	for i := int64(1); i <= 10_000; i++ {
		_, _ = store.SubmitScore(ctx, i, i%1000, "solo")
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := store.RecomputeFullRanks(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func ExampleTreapStore() {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()

	_, _ = store.SubmitScore(ctx, 1, 100, "solo")
	_, _ = store.SubmitScore(ctx, 2, 200, "solo")

	entries, _ := store.TopN(ctx, 2)
	for i, e := range entries {
		fmt.Printf("#%d player=%d total=%d\n", i+1, e.PlayerID, e.TotalScore)
	}
	// Output:
	// #1 player=2 total=200
	// #2 player=1 total=100
}
