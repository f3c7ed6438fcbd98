package loadtest

import "time"

// Config holds configuration for one load-test run.
type Config struct {
	BaseURL        string        // Base URL of the service
	NumPlayers     int           // Number of distinct players to generate
	NumSubmissions int           // Number of score submissions to generate
	TopN           int           // Number of top entries to fetch
	Workers        int           // Number of concurrent workers
	Timeout        time.Duration // HTTP request timeout
	OutputFile     string        // Output file for generated submissions
	LogFile        string        // Log file for test output
	Verbose        bool          // Enable verbose logging
}

// Submission is the request body for POST /scores.
type Submission struct {
	PlayerID int64  `json:"player_id"`
	Score    int64  `json:"score"`
	Mode     string `json:"mode"`
	TS       string `json:"ts"`
}

// SubmissionResult is the response body for a committed submission.
type SubmissionResult struct {
	PlayerID    int64  `json:"player_id"`
	TotalScore  int64  `json:"total_score"`
	SubmittedAt string `json:"submitted_at"`
}

// Entry is one leaderboard row as returned by GET /leaderboard.
type Entry struct {
	Rank       int   `json:"rank"`
	PlayerID   int64 `json:"player_id"`
	TotalScore int64 `json:"total_score"`
}

// RankSnapshot is one player's ranking as returned by GET /ranks/{id}.
type RankSnapshot struct {
	PlayerID     int64 `json:"player_id"`
	TotalScore   int64 `json:"total_score"`
	Rank         int   `json:"rank"`
	TotalPlayers int64 `json:"total_players"`
}

// ServiceStats is the response body for GET /stats.
type ServiceStats struct {
	TotalPlayers  int64   `json:"total_players"`
	TotalSessions int64   `json:"total_sessions"`
	AverageScore  float64 `json:"average_score"`
}

// RecomputeStatus is the response body for GET /admin/recompute.
type RecomputeStatus struct {
	QueueDepth int       `json:"queue_depth"`
	DeadJobs   int       `json:"dead_jobs"`
	LastFullAt time.Time `json:"last_full_at"`
}

// Stats holds test statistics.
type Stats struct {
	PlayersPlanned        int
	SubmissionsGenerated  int
	SubmissionsSubmitted  int
	SubmissionsSuccessful int
	SubmissionsRejected   int
	SubmissionsFailed     int
	RanksRetrieved        int
	LeaderboardEntries    int
	Violations            int
	StartTime             time.Time
	EndTime               time.Time
	Duration              time.Duration
}
