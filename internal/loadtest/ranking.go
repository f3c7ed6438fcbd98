package loadtest

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// retrieveRanks retrieves rank snapshots for all players concurrently.
func retrieveRanks(ctx context.Context, config *Config, playerIDs []int64, stats *Stats) ([]RankSnapshot, error) {
	log.Printf("🏆 Retrieving ranks for %d players with %d workers...", len(playerIDs), config.Workers)

	client := newHTTPClient(config.Timeout)

	// Results storage
	snapshots := make([]RankSnapshot, len(playerIDs))
	var (
		retrieved int64
		failed    int64
	)

	// Progress reporting
	var lastReport atomic.Int64
	reportInterval := 1 * time.Second

	// Create worker pool
	indexChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for index := range indexChan {
				select {
				case <-ctx.Done():
					return
				default:
					playerID := playerIDs[index]
					snapshot, err := retrieveSingleRank(ctx, client, config.BaseURL, playerID)

					if err != nil {
						atomic.AddInt64(&failed, 1)
						if config.Verbose {
							log.Printf("⚠️  Failed to get rank for %d: %v", playerID, err)
						}
					} else {
						snapshots[index] = snapshot
						atomic.AddInt64(&retrieved, 1)
					}

					// Progress reporting, one worker at a time
					last := lastReport.Load()
					now := time.Now().UnixNano()
					if now-last >= int64(reportInterval) && lastReport.CompareAndSwap(last, now) {
						ret := atomic.LoadInt64(&retrieved)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("📊 Rank progress: %d/%d retrieved (success: %d, failed: %d)",
								ret+fail, len(playerIDs), ret, fail)
						} else {
							fmt.Printf("\r🏆 Ranks: %d/%d retrieved (success: %d, failed: %d)",
								ret+fail, len(playerIDs), ret, fail)
						}
					}
				}
			}
		}()
	}

	// Send player indices to workers
	go func() {
		defer close(indexChan)
		for i := range playerIDs {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Filter out empty snapshots (failed retrievals)
	validSnapshots := make([]RankSnapshot, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot.PlayerID != 0 { // Zero PlayerID indicates failed retrieval
			validSnapshots = append(validSnapshots, snapshot)
		}
	}

	// Update stats
	stats.RanksRetrieved = len(validSnapshots)

	log.Printf(`✅ Rank retrieval completed:
   Retrieved: %d
   Failed: %d
`, len(validSnapshots), int(atomic.LoadInt64(&failed)))

	return validSnapshots, nil
}

// retrieveSingleRank retrieves the rank snapshot for a single player.
func retrieveSingleRank(ctx context.Context, client *HTTPClient, baseURL string, playerID int64) (RankSnapshot, error) {
	url := baseURL + "/ranks/" + strconv.FormatInt(playerID, 10)

	resp, err := client.Get(ctx, url)
	if err != nil {
		return RankSnapshot{}, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return RankSnapshot{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return RankSnapshot{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var snapshot RankSnapshot
	if err := unmarshalJSON(body, &snapshot); err != nil {
		return RankSnapshot{}, fmt.Errorf("failed to parse response: %w", err)
	}

	return snapshot, nil
}

// getLeaderboard retrieves the top N leaderboard entries.
func getLeaderboard(ctx context.Context, config *Config, stats *Stats) ([]Entry, error) {
	log.Printf("🥇 Getting top %d leaderboard entries...", config.TopN)

	client := newHTTPClient(config.Timeout)
	url := fmt.Sprintf("%s/leaderboard?limit=%d", config.BaseURL, config.TopN)

	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var leaderboard []Entry
	if err := unmarshalJSON(body, &leaderboard); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	stats.LeaderboardEntries = len(leaderboard)
	log.Printf("✅ Retrieved %d leaderboard entries", len(leaderboard))

	return leaderboard, nil
}

// getServiceStats retrieves the service-wide data set summary.
func getServiceStats(ctx context.Context, config *Config) (ServiceStats, error) {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/stats"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return ServiceStats{}, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return ServiceStats{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return ServiceStats{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var serviceStats ServiceStats
	if err := unmarshalJSON(body, &serviceStats); err != nil {
		return ServiceStats{}, fmt.Errorf("failed to parse response: %w", err)
	}

	return serviceStats, nil
}
