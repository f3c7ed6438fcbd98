package loadtest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/okian/ladder/pkg/logger"
)

// Player ID allocation. IDs are offset by the wall clock so repeated runs
// against the same database never collide with each other.
const (
	playerIDStride = 1_000_000
)

// Constants for random number generation.
const (
	scoreTierDivisor = 8
	modeDivisor      = 4
)

// Constants for score generation bands, all inclusive.
const (
	lowBandMin      = 10_000
	lowBandMax      = 250_000
	midBandMin      = 250_000
	midBandMax      = 500_000
	highBandMin     = 500_000
	highBandMax     = 750_000
	eliteBandMin    = 900_000
	eliteBandMax    = 1_000_000
	floorBandMax    = 10_000
	upperMidBandMin = 600_000
	upperMidBandMax = 800_000
	lowerMidBandMin = 100_000
	lowerMidBandMax = 300_000
	fullRangeMax    = 1_000_000
)

// Constants for score band cases.
const (
	caseMidBand      = 0
	caseHighBand     = 1
	caseLowBand      = 2
	caseEliteBand    = 3
	caseFloorBand    = 4
	caseUpperMidBand = 5
	caseLowerMidBand = 6
	caseFullRange    = 7
)

// getRandomInt64 returns a random int64 in [0, n) using crypto/rand.
func getRandomInt64(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// generateSubmissions creates player IDs and the requested number of score
// submissions spread across them.
func generateSubmissions(ctx context.Context, config *Config, stats *Stats) ([]Submission, error) {
	logger.Get().Info(ctx, "generating submissions",
		logger.Int("players", config.NumPlayers),
		logger.Int("submissions", config.NumSubmissions))

	// Allocate player IDs up front. The base moves forward every second, so
	// a rerun writes to a fresh slice of the ID space.
	base := time.Now().Unix() * playerIDStride
	playerIDs := make([]int64, config.NumPlayers)
	for i := range playerIDs {
		playerIDs[i] = base + int64(i)
	}

	submissions := make([]Submission, config.NumSubmissions)

	// Generate submissions concurrently
	type submissionResult struct {
		index      int
		submission Submission
		err        error
	}

	resultChan := make(chan submissionResult, config.NumSubmissions)

	// Use worker pool for submission generation
	workerCount := min(config.Workers, config.NumSubmissions)
	perWorker := config.NumSubmissions / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * perWorker
		end := start + perWorker
		if worker == workerCount-1 {
			end = config.NumSubmissions // Last worker gets remaining submissions
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					resultChan <- submissionResult{index: i, err: ctx.Err()}
					return
				default:
					sub := generateSingleSubmission(playerIDs)
					resultChan <- submissionResult{index: i, submission: sub}
				}
			}
		}(start, end)
	}

	// Collect results
	for i := 0; i < config.NumSubmissions; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during submission generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate submission %d: %w", result.index, result.err)
			}
			submissions[result.index] = result.submission
		}
	}

	// First submissions cover every player once so nobody is left without a
	// session; the rest land on random players.
	for i := 0; i < len(playerIDs) && i < len(submissions); i++ {
		submissions[i].PlayerID = playerIDs[i]
	}

	stats.PlayersPlanned = len(playerIDs)
	stats.SubmissionsGenerated = len(submissions)
	logger.Get().Info(ctx, "generated submissions successfully", logger.Int("count", len(submissions)))

	return submissions, nil
}

// generateSingleSubmission creates a single submission for a random player.
func generateSingleSubmission(playerIDs []int64) Submission {
	playerID := playerIDs[getRandomInt64(int64(len(playerIDs)))]

	return Submission{
		PlayerID: playerID,
		Score:    generateBandedScore(),
		Mode:     generateMode(),
		TS:       time.Now().UTC().Format(time.RFC3339),
	}
}

// generateBandedScore picks a score from one of eight bands so the final
// ranking has clusters, ties, and outliers rather than a flat spread.
func generateBandedScore() int64 {
	switch getRandomInt64(scoreTierDivisor) {
	case caseMidBand:
		return randomInBand(midBandMin, midBandMax)
	case caseHighBand:
		return randomInBand(highBandMin, highBandMax)
	case caseLowBand:
		return randomInBand(lowBandMin, lowBandMax)
	case caseEliteBand:
		return randomInBand(eliteBandMin, eliteBandMax)
	case caseFloorBand:
		// Includes zero, the lowest accepted score
		return randomInBand(0, floorBandMax)
	case caseUpperMidBand:
		return randomInBand(upperMidBandMin, upperMidBandMax)
	case caseLowerMidBand:
		return randomInBand(lowerMidBandMin, lowerMidBandMax)
	case caseFullRange:
		return randomInBand(0, fullRangeMax)
	default:
		return randomInBand(0, fullRangeMax)
	}
}

// randomInBand returns a random score in [low, high].
func randomInBand(low, high int64) int64 {
	return low + getRandomInt64(high-low+1)
}

// generateMode picks a game mode, biased towards solo.
func generateMode() string {
	switch getRandomInt64(modeDivisor) {
	case 0, 1:
		return "solo"
	case 2:
		return "duo"
	default:
		return "squad"
	}
}
