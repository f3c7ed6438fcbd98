package loadtest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ladder/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete load test.
func Run(ctx context.Context, config *Config) error {
	if config.NumPlayers < 1 || config.NumSubmissions < 1 || config.Workers < 1 {
		return fmt.Errorf("players, submissions, and workers must all be at least 1")
	}

	stats := &Stats{
		StartTime: time.Now(),
	}

	// Correlates log lines and artifacts across concurrent runs.
	runID := uuid.NewString()

	logger.Get().Info(ctx, "starting ladder load test",
		logger.String("runID", runID),
		logger.String("baseURL", config.BaseURL),
		logger.Int("players", config.NumPlayers),
		logger.Int("submissions", config.NumSubmissions),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Int("topN", config.TopN),
		logger.String("logFile", config.LogFile),
		logger.Bool("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate submissions
	submissions, err := generateSubmissions(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("submission generation failed: %w", err)
	}

	// Step 3: Submit scores concurrently
	expected, err := submitScores(ctx, config, submissions, stats)
	if err != nil {
		return fmt.Errorf("score submission failed: %w", err)
	}

	// Step 4: Wait for ranks to settle
	if err := settleRanks(ctx, config); err != nil {
		return fmt.Errorf("rank settling failed: %w", err)
	}

	// Step 5: Retrieve rank snapshots concurrently
	expectedTotals := expected.Snapshot()
	playerIDs := make([]int64, 0, len(expectedTotals))
	for playerID := range expectedTotals {
		playerIDs = append(playerIDs, playerID)
	}
	sort.Slice(playerIDs, func(i, j int) bool { return playerIDs[i] < playerIDs[j] })

	snapshots, err := retrieveRanks(ctx, config, playerIDs, stats)
	if err != nil {
		return fmt.Errorf("rank retrieval failed: %w", err)
	}

	// Step 6: Get leaderboard and stats
	leaderboard, err := getLeaderboard(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}

	serviceStats, err := getServiceStats(ctx, config)
	if err != nil {
		return fmt.Errorf("stats retrieval failed: %w", err)
	}

	// Step 7: Save submissions to file. Done before verification so the
	// artifact survives a failed run.
	if err := saveSubmissionsToFile(ctx, config, runID, submissions); err != nil {
		logger.Get().Warn(ctx, "failed to save submissions to file", logger.Error(err))
	}

	// Step 8: Verify results
	if err := verifyResults(ctx, config, expectedTotals, snapshots, leaderboard, serviceStats, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "load test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// settleRanks triggers a full rank recomputation and polls the engine
// until the pass completes and the job queue drains, so the retrieval
// phase reads settled ranks instead of racing the recompute workers.
func settleRanks(ctx context.Context, config *Config) error {
	log.Println("⏳ Waiting for ranks to settle...")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/admin/recompute"

	before, err := getRecomputeStatus(ctx, client, url)
	if err != nil {
		return fmt.Errorf("failed to read recompute status: %w", err)
	}

	resp, err := client.Post(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to trigger recomputation: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read trigger response: %w", err)
	}

	// 429 means a full pass is already queued, which serves just as well.
	if resp.StatusCode != StatusAccepted && resp.StatusCode != StatusTooManyRequests {
		return fmt.Errorf("recomputation trigger failed with HTTP %d: %s", resp.StatusCode, string(body))
	}

	deadline := time.Now().Add(SettleTimeout)
	for {
		status, err := getRecomputeStatus(ctx, client, url)
		if err != nil {
			return fmt.Errorf("failed to poll recompute status: %w", err)
		}

		if status.QueueDepth == 0 && status.LastFullAt.After(before.LastFullAt) {
			log.Printf("✅ Ranks settled (queue drained, full pass at %s)", status.LastFullAt.Format(time.RFC3339))
			return nil
		}

		if time.Now().After(deadline) {
			log.Printf("⚠️  Ranks did not settle within %s, verifying anyway", SettleTimeout)
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for ranks: %w", ctx.Err())
		case <-time.After(SettlePollInterval):
		}
	}
}

// getRecomputeStatus reads the engine's progress report.
func getRecomputeStatus(ctx context.Context, client *HTTPClient, url string) (RecomputeStatus, error) {
	resp, err := client.Get(ctx, url)
	if err != nil {
		return RecomputeStatus{}, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return RecomputeStatus{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return RecomputeStatus{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var status RecomputeStatus
	if err := unmarshalJSON(body, &status); err != nil {
		return RecomputeStatus{}, fmt.Errorf("failed to parse response: %w", err)
	}

	return status, nil
}

// saveSubmissionsToFile saves the generated submissions to a JSON file.
func saveSubmissionsToFile(ctx context.Context, config *Config, runID string, submissions []Submission) error {
	if len(submissions) == 0 {
		return fmt.Errorf("no submissions to save")
	}

	// Determine output filename
	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = fmt.Sprintf("submissions_%s_%s.json", timestamp, runID[:8])
	}

	// Ensure the directory exists
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Write submissions to file
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	// Write JSON array
	if _, err := file.WriteString("[\n"); err != nil {
		return fmt.Errorf("failed to write opening bracket: %w", err)
	}

	for i, sub := range submissions {
		jsonData, err := marshalJSON(sub)
		if err != nil {
			return fmt.Errorf("failed to marshal submission %d: %w", i, err)
		}

		if _, err := file.Write(jsonData); err != nil {
			return fmt.Errorf("failed to write submission %d: %w", i, err)
		}

		// Add comma except for last submission
		if i < len(submissions)-1 {
			if _, err := file.WriteString(","); err != nil {
				return fmt.Errorf("failed to write comma: %w", err)
			}
		}
		_, _ = file.WriteString("\n")
	}

	if _, err := file.WriteString("]\n"); err != nil {
		return fmt.Errorf("failed to write closing bracket: %w", err)
	}

	logger.Get().Info(ctx, "submissions saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, submissionsPerSecond float64

	if stats.SubmissionsSubmitted > 0 {
		successRate = float64(stats.SubmissionsSuccessful) / float64(stats.SubmissionsSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		submissionsPerSecond = float64(stats.SubmissionsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("playersPlanned", stats.PlayersPlanned),
		logger.Int("submissionsGenerated", stats.SubmissionsGenerated),
		logger.Int("submissionsSubmitted", stats.SubmissionsSubmitted),
		logger.Int("submissionsSuccessful", stats.SubmissionsSuccessful),
		logger.Int("submissionsRejected", stats.SubmissionsRejected),
		logger.Int("submissionsFailed", stats.SubmissionsFailed),
		logger.Int("ranksRetrieved", stats.RanksRetrieved),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("submissionsPerSecond", submissionsPerSecond))
}
