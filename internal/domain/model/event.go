// Package model contains domain models passed between layers.
package model

import (
	"time"
	"unicode/utf8"
)

const (
	// MaxScore is the inclusive upper bound for a single session score.
	MaxScore = 1_000_000
	// DefaultMode is assumed when a submission does not name a game mode.
	DefaultMode = "solo"
	// maxModeLength bounds the free-form mode string.
	maxModeLength = 32
)

// Submission is a score submission handed to the engine by the transport
// layer: one game session for one player.
type Submission struct {
	PlayerID int64     // player identifier, positive
	Score    int64     // session score, 0..MaxScore
	Mode     string    // game mode, defaults to DefaultMode
	TS       time.Time // submission timestamp, zero means "now"
}

// Normalize fills defaults for optional fields.
func (s *Submission) Normalize() {
	if s.Mode == "" {
		s.Mode = DefaultMode
	}
	if s.TS.IsZero() {
		s.TS = time.Now().UTC()
	}
}

// Validate reports the first range violation, or nil.
func (s Submission) Validate() error {
	if s.PlayerID <= 0 {
		return ErrInvalidPlayerID
	}
	if s.Score < 0 || s.Score > MaxScore {
		return ErrScoreOutOfRange
	}
	if utf8.RuneCountInString(s.Mode) > maxModeLength {
		return ErrInvalidMode
	}
	return nil
}

// ScoreEvent is emitted to the notification sink once a submission has
// committed. Delivery semantics belong to the sink.
type ScoreEvent struct {
	PlayerID   int64     `json:"player_id"`
	Score      int64     `json:"score"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Scope selects how much of the ranking a recompute request rewrites.
type Scope string

const (
	// ScopeFull rewrites the rank of every aggregate row.
	ScopeFull Scope = "full"
	// ScopeIncremental refreshes a single player's rank.
	ScopeIncremental Scope = "incremental"
)

// RecomputeRequest asks the recomputation engine to refresh cached ranks.
// PlayerID is ignored for the full scope.
type RecomputeRequest struct {
	PlayerID int64 `json:"player_id"`
	Scope    Scope `json:"scope"`
}
