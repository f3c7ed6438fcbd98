package loadtest

import (
	"context"
	"fmt"
	"log"
	"sort"
)

// Cap on individually logged violations; the rest are summarized.
const maxViolationLogs = 10

// violationLog counts invariant violations and logs the first few.
type violationLog struct {
	count  int
	logged int
}

func (v *violationLog) addf(format string, args ...interface{}) {
	v.count++
	if v.logged < maxViolationLogs {
		log.Printf("⚠️  "+format, args...)
		v.logged++
	}
}

// verifyResults checks the service's ranking invariants through what the
// public API returned: every player's total is the sum of their
// acknowledged submissions, the leaderboard is ordered with dense ranks,
// and the per-player snapshots agree with both.
func verifyResults(ctx context.Context, config *Config, expected map[int64]int64, snapshots []RankSnapshot, leaderboard []Entry, serviceStats ServiceStats, stats *Stats) error {
	log.Println("🔍 Verifying results...")

	if len(expected) > 0 && len(snapshots) == 0 {
		return fmt.Errorf("no rank snapshots to verify")
	}

	var v violationLog

	verifySumInvariant(expected, snapshots, &v)
	verifyRankOrdering(snapshots, &v)
	verifyLeaderboard(expected, leaderboard, &v)
	verifyServiceStats(expected, serviceStats, stats, &v)

	displayTopPerformers(snapshots, leaderboard, config.Verbose)

	stats.Violations = v.count
	if v.count > 0 {
		if v.count > v.logged {
			log.Printf("⚠️  ... and %d more violations", v.count-v.logged)
		}
		return fmt.Errorf("verification found %d invariant violations", v.count)
	}

	log.Println("✅ Result verification completed")
	return nil
}

// verifySumInvariant checks that each player's reported total equals the
// sum of the scores the service acknowledged for them.
func verifySumInvariant(expected map[int64]int64, snapshots []RankSnapshot, v *violationLog) {
	byPlayer := make(map[int64]RankSnapshot, len(snapshots))
	for _, snapshot := range snapshots {
		byPlayer[snapshot.PlayerID] = snapshot
	}

	for playerID, want := range expected {
		snapshot, ok := byPlayer[playerID]
		if !ok {
			v.addf("player %d has acknowledged submissions but no rank snapshot", playerID)
			continue
		}
		if snapshot.TotalScore != want {
			v.addf("player %d total is %d, want %d (sum of acknowledged submissions)",
				playerID, snapshot.TotalScore, want)
		}
	}
}

// verifyRankOrdering checks that ranks move with totals: equal totals
// share a rank, a strictly lower total never outranks a higher one. It
// deliberately avoids assuming the test owns the whole database, so
// players from earlier runs may sit between consecutive ranks.
func verifyRankOrdering(snapshots []RankSnapshot, v *violationLog) {
	sorted := make([]RankSnapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TotalScore > sorted[j].TotalScore
	})

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		switch {
		case cur.TotalScore == prev.TotalScore && cur.Rank != prev.Rank:
			v.addf("players %d and %d share total %d but have ranks %d and %d",
				prev.PlayerID, cur.PlayerID, cur.TotalScore, prev.Rank, cur.Rank)
		case cur.TotalScore < prev.TotalScore && cur.Rank <= prev.Rank:
			v.addf("player %d (total %d, rank %d) outranks player %d (total %d, rank %d)",
				cur.PlayerID, cur.TotalScore, cur.Rank, prev.PlayerID, prev.TotalScore, prev.Rank)
		}
	}
}

// verifyLeaderboard checks ordering and dense ranks on the top slice. The
// leaderboard is the global top, so the first entry must hold rank 1 and
// consecutive distinct totals must hold consecutive ranks.
func verifyLeaderboard(expected map[int64]int64, leaderboard []Entry, v *violationLog) {
	if len(leaderboard) == 0 {
		if len(expected) > 0 {
			v.addf("leaderboard is empty after %d players submitted", len(expected))
		}
		return
	}

	if leaderboard[0].Rank != 1 {
		v.addf("leaderboard head has rank %d, want 1", leaderboard[0].Rank)
	}

	for i := 1; i < len(leaderboard); i++ {
		prev, cur := leaderboard[i-1], leaderboard[i]
		if cur.TotalScore > prev.TotalScore {
			v.addf("leaderboard not ordered: entry %d (total %d) above entry %d (total %d)",
				i-1, prev.TotalScore, i, cur.TotalScore)
			continue
		}
		if cur.TotalScore == prev.TotalScore && cur.Rank != prev.Rank {
			v.addf("leaderboard entries %d and %d share total %d but have ranks %d and %d",
				i-1, i, cur.TotalScore, prev.Rank, cur.Rank)
		}
		if cur.TotalScore < prev.TotalScore && cur.Rank != prev.Rank+1 {
			v.addf("leaderboard ranks not dense: total %d has rank %d after total %d with rank %d",
				cur.TotalScore, cur.Rank, prev.TotalScore, prev.Rank)
		}
	}

	// Leaderboard totals must agree with the acknowledged submissions for
	// players this run created.
	for i, entry := range leaderboard {
		if want, ok := expected[entry.PlayerID]; ok && entry.TotalScore != want {
			v.addf("leaderboard entry %d reports total %d for player %d, want %d",
				i, entry.TotalScore, entry.PlayerID, want)
		}
	}
}

// verifyServiceStats sanity-checks the data set summary against what this
// run wrote. Only lower bounds are asserted, the database may hold rows
// from earlier runs.
func verifyServiceStats(expected map[int64]int64, serviceStats ServiceStats, stats *Stats, v *violationLog) {
	if serviceStats.TotalPlayers < int64(len(expected)) {
		v.addf("stats report %d players, want at least %d", serviceStats.TotalPlayers, len(expected))
	}
	if serviceStats.TotalSessions < int64(stats.SubmissionsSuccessful) {
		v.addf("stats report %d sessions, want at least %d", serviceStats.TotalSessions, stats.SubmissionsSuccessful)
	}
	if serviceStats.TotalSessions > 0 && serviceStats.AverageScore < 0 {
		v.addf("stats report negative average score %.3f", serviceStats.AverageScore)
	}
}

// displayTopPerformers shows the top performers from snapshots and the
// leaderboard.
func displayTopPerformers(snapshots []RankSnapshot, leaderboard []Entry, verbose bool) {
	sorted := make([]RankSnapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TotalScore > sorted[j].TotalScore
	})

	topN := min(10, len(sorted))
	log.Printf("🏆 Top %d players from rank snapshots:", topN)
	for i := 0; i < topN; i++ {
		snapshot := sorted[i]
		log.Printf("   %d. player %d - total: %d (rank %d)", i+1, snapshot.PlayerID, snapshot.TotalScore, snapshot.Rank)
	}

	if len(leaderboard) > 0 {
		leaderboardTopN := min(topN, len(leaderboard))
		log.Printf("🥇 Top %d players from leaderboard:", leaderboardTopN)
		for i := 0; i < leaderboardTopN; i++ {
			entry := leaderboard[i]
			log.Printf("   %d. player %d - total: %d (rank %d)", i+1, entry.PlayerID, entry.TotalScore, entry.Rank)
		}
	}

	if verbose && len(sorted) > 0 {
		log.Printf(`📊 Total score statistics:
   Average: %.1f
   Maximum: %d
   Minimum: %d
`, calculateAverageTotal(sorted), sorted[0].TotalScore, sorted[len(sorted)-1].TotalScore)
	}
}

// calculateAverageTotal calculates the average total score across snapshots.
func calculateAverageTotal(snapshots []RankSnapshot) float64 {
	if len(snapshots) == 0 {
		return 0
	}

	var sum int64
	for _, snapshot := range snapshots {
		sum += snapshot.TotalScore
	}

	return float64(sum) / float64(len(snapshots))
}
