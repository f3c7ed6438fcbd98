package repository

import "errors"

// Sentinel kinds for leaderboard store errors.
var (
	// ErrNotFound marks a lookup for a player that has never submitted.
	ErrNotFound = errors.New("player not found")
	// ErrInvalidLimit marks a leaderboard query with a non-positive limit.
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	// ErrTransient marks timeouts and connectivity failures that are
	// safe to retry.
	ErrTransient = errors.New("transient store failure")
)
