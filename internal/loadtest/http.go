package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := marshalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// marshalJSON marshals a struct to JSON
func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// unmarshalJSON unmarshals JSON to a struct
func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// expectedTotals accumulates the score sum each player should end up with,
// counting only submissions the service acknowledged.
type expectedTotals struct {
	mu sync.Mutex
	m  map[int64]int64
}

func newExpectedTotals() *expectedTotals {
	return &expectedTotals{m: make(map[int64]int64)}
}

// Add records an acknowledged score for a player.
func (e *expectedTotals) Add(playerID, score int64) {
	e.mu.Lock()
	e.m[playerID] += score
	e.mu.Unlock()
}

// Snapshot returns a copy of the accumulated totals.
func (e *expectedTotals) Snapshot() map[int64]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int64]int64, len(e.m))
	for id, total := range e.m {
		out[id] = total
	}
	return out
}

// submitScores submits score submissions concurrently using worker pools.
// It returns the expected per-player totals built from acknowledged
// submissions.
func submitScores(ctx context.Context, config *Config, submissions []Submission, stats *Stats) (*expectedTotals, error) {
	log.Printf("📤 Submitting %d scores with %d workers...", len(submissions), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/scores"
	expected := newExpectedTotals()

	// Counters for statistics
	var (
		successful int64
		rejected   int64
		failed     int64
		submitted  int64
	)

	// Progress reporting
	var lastReport atomic.Int64
	reportInterval := 1 * time.Second

	// Create worker pool
	submissionChan := make(chan Submission, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for sub := range submissionChan {
				select {
				case <-ctx.Done():
					return
				default:
					result := submitSingleScore(ctx, client, url, sub)

					// Update counters
					atomic.AddInt64(&submitted, 1)
					switch result {
					case "success":
						atomic.AddInt64(&successful, 1)
						expected.Add(sub.PlayerID, sub.Score)
					case "rejected":
						atomic.AddInt64(&rejected, 1)
					case "failed":
						atomic.AddInt64(&failed, 1)
					}

					// Progress reporting, one worker at a time
					last := lastReport.Load()
					now := time.Now().UnixNano()
					if now-last >= int64(reportInterval) && lastReport.CompareAndSwap(last, now) {
						total := atomic.LoadInt64(&submitted)
						succ := atomic.LoadInt64(&successful)
						rej := atomic.LoadInt64(&rejected)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("📊 Progress: %d/%d submitted (success: %d, rejected: %d, failed: %d)",
								total, len(submissions), succ, rej, fail)
						} else {
							fmt.Printf("\r📤 Submitted: %d/%d (success: %d, rejected: %d, failed: %d)",
								total, len(submissions), succ, rej, fail)
						}
					}
				}
			}
		}()
	}

	// Send submissions to workers
	go func() {
		defer close(submissionChan)
		for _, sub := range submissions {
			select {
			case <-ctx.Done():
				return
			case submissionChan <- sub:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Update stats
	stats.SubmissionsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.SubmissionsSuccessful = int(atomic.LoadInt64(&successful))
	stats.SubmissionsRejected = int(atomic.LoadInt64(&rejected))
	stats.SubmissionsFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`✅ Score submission completed:
   Successful: %d
   Rejected: %d
   Failed: %d
`, stats.SubmissionsSuccessful, stats.SubmissionsRejected, stats.SubmissionsFailed)

	return expected, nil
}

// submitSingleScore submits a single score and returns the result category.
func submitSingleScore(ctx context.Context, client *HTTPClient, url string, sub Submission) string {
	resp, err := client.Post(ctx, url, sub)
	if err != nil {
		return "failed"
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return "failed"
	}

	switch {
	case resp.StatusCode == StatusOK:
		// Committed. The running total in the body must already include
		// this session's score; a shortfall here is worth surfacing even
		// though the final totals are verified separately.
		var result SubmissionResult
		if err := unmarshalJSON(body, &result); err == nil && result.TotalScore < sub.Score {
			log.Printf("⚠️  Running total %d below submitted score %d for player %d",
				result.TotalScore, sub.Score, sub.PlayerID)
		}
		return "success"
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "rejected"
	default:
		return "failed"
	}
}
