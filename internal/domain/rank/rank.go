// Package rank implements dense ranking over leaderboard totals.
//
// Every path that produces ranks derives them the same way: entries are
// ordered by total score descending with player id ascending as the
// tie-breaker, equal totals share a rank, and the next distinct total
// takes the next consecutive rank. A player's rank therefore equals the
// number of distinct totals strictly greater than theirs, plus one.
package rank

import (
	"sort"

	"github.com/okian/ladder/internal/domain/types"
)

// Less reports whether entry a orders before entry b on the board.
func Less(a, b types.Entry) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore // higher total ranks earlier
	}
	return a.PlayerID < b.PlayerID // tie-breaker by id asc
}

// Sort orders entries into board order.
func Sort(entries []types.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// Assign walks entries already in board order and assigns dense ranks
// in place. Entries with the same total get the same rank, and the next
// distinct total takes the next consecutive rank.
func Assign(entries []types.Entry) {
	if len(entries) == 0 {
		return
	}

	current := 1
	for i := 0; i < len(entries); i++ {
		entries[i].Rank = current

		sameTotalCount := 1
		for j := i + 1; j < len(entries) && entries[j].TotalScore == entries[i].TotalScore; j++ {
			entries[j].Rank = current
			sameTotalCount++
		}

		current++
		i += sameTotalCount - 1 // skip the entries we just ranked
	}
}

// Of computes the dense rank of total against the full set of totals
// without sorting: count the distinct totals strictly greater, add one.
// This is the single-player formula the incremental recompute uses, and
// it agrees with Assign on any settled snapshot.
func Of(totals []int64, total int64) int {
	greater := make(map[int64]struct{})
	for _, t := range totals {
		if t > total {
			greater[t] = struct{}{}
		}
	}
	return len(greater) + 1
}
