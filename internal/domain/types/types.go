// Package types contains common types used across the application
package types

import "time"

// Entry represents one row of the leaderboard.
type Entry struct {
	Rank        int    `json:"rank"`
	PlayerID    int64  `json:"player_id"`
	DisplayName string `json:"display_name"`
	TotalScore  int64  `json:"total_score"`
}

// RankSnapshot is a single player's view of the ranking.
type RankSnapshot struct {
	PlayerID     int64  `json:"player_id"`
	DisplayName  string `json:"display_name"`
	TotalScore   int64  `json:"total_score"`
	Rank         int    `json:"rank"`
	TotalPlayers int64  `json:"total_players"`
}

// SubmissionResult is returned to the caller once a submission committed.
type SubmissionResult struct {
	PlayerID    int64     `json:"player_id"`
	TotalScore  int64     `json:"total_score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Stats summarizes the stored data set.
type Stats struct {
	TotalPlayers  int64   `json:"total_players"`
	TotalSessions int64   `json:"total_sessions"`
	AverageScore  float64 `json:"average_score"`
}

// RecomputeStatus reports the recomputation engine's progress. LastFullAt
// is zero until the first full pass completes.
type RecomputeStatus struct {
	QueueDepth         int       `json:"queue_depth"`
	DeadJobs           int       `json:"dead_jobs"`
	LastFullAt         time.Time `json:"last_full_at"`
	LastFullDurationMs int64     `json:"last_full_duration_ms"`
	LastFullRanked     int64     `json:"last_full_ranked"`
}
