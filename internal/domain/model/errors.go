package model

import "errors"

// Validation sentinels. Callers compare with errors.Is to translate them
// into transport-level responses.
var (
	// ErrInvalidPlayerID marks a non-positive player identifier.
	ErrInvalidPlayerID = errors.New("player id must be a positive integer")
	// ErrScoreOutOfRange marks a score below zero or above MaxScore.
	ErrScoreOutOfRange = errors.New("score is outside the accepted range")
	// ErrInvalidMode marks a mode string longer than the accepted bound.
	ErrInvalidMode = errors.New("mode exceeds the maximum length")
)
