package loadtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ladder/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// stubService is an in-memory stand-in for the ranking service. It keeps
// per-player totals and answers the endpoints the load test exercises.
type stubService struct {
	mu         sync.Mutex
	totals     map[int64]int64
	sessions   int64
	scoreSum   int64
	lastFull   time.Time
	skewTotals bool
}

func newStubService() *stubService {
	return &stubService{totals: make(map[int64]int64)}
}

func (s *stubService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/scores", s.handleScores)
	mux.HandleFunc("/ranks/", s.handleRank)
	mux.HandleFunc("/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/admin/recompute", s.handleRecompute)
	return mux
}

func (s *stubService) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (s *stubService) handleScores(w http.ResponseWriter, r *http.Request) {
	var sub Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.totals[sub.PlayerID] += sub.Score
	s.sessions++
	s.scoreSum += sub.Score
	total := s.totals[sub.PlayerID]
	s.mu.Unlock()

	writeStubJSON(w, http.StatusOK, SubmissionResult{
		PlayerID:    sub.PlayerID,
		TotalScore:  total,
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *stubService) handleRank(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/ranks/"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.ranked() {
		if entry.PlayerID == playerID {
			total := entry.TotalScore
			if s.skewTotals {
				total++
			}
			writeStubJSON(w, http.StatusOK, RankSnapshot{
				PlayerID:     entry.PlayerID,
				TotalScore:   total,
				Rank:         entry.Rank,
				TotalPlayers: int64(len(s.totals)),
			})
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *stubService) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.ranked()
	if limit < len(entries) {
		entries = entries[:limit]
	}
	writeStubJSON(w, http.StatusOK, entries)
}

func (s *stubService) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := ServiceStats{
		TotalPlayers:  int64(len(s.totals)),
		TotalSessions: s.sessions,
	}
	if s.sessions > 0 {
		stats.AverageScore = float64(s.scoreSum) / float64(s.sessions)
	}
	writeStubJSON(w, http.StatusOK, stats)
}

func (s *stubService) handleRecompute(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Method == http.MethodPost {
		s.lastFull = time.Now().UTC()
		writeStubJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}
	writeStubJSON(w, http.StatusOK, RecomputeStatus{LastFullAt: s.lastFull})
}

// ranked returns all players ordered by total with dense ranks. Caller
// holds the mutex.
func (s *stubService) ranked() []Entry {
	entries := make([]Entry, 0, len(s.totals))
	for playerID, total := range s.totals {
		entries = append(entries, Entry{PlayerID: playerID, TotalScore: total})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})

	rank := 0
	prev := int64(-1)
	for i := range entries {
		if entries[i].TotalScore != prev {
			rank++
			prev = entries[i].TotalScore
		}
		entries[i].Rank = rank
	}
	return entries
}

// received reports how many sessions were stored and for how many players.
func (s *stubService) received() (sessions int64, players int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions, len(s.totals)
}

func writeStubJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRunAgainstStubService(t *testing.T) {
	Convey("Given a healthy service", t, func() {
		stub := newStubService()
		srv := httptest.NewServer(stub.handler())
		defer srv.Close()

		outputFile := filepath.Join(t.TempDir(), "submissions.json")
		config := &Config{
			BaseURL:        srv.URL,
			NumPlayers:     5,
			NumSubmissions: 40,
			TopN:           10,
			Workers:        4,
			Timeout:        5 * time.Second,
			OutputFile:     outputFile,
		}

		Convey("When the load test runs", func() {
			err := Run(context.Background(), config)

			Convey("Then it completes without violations", func() {
				So(err, ShouldBeNil)
			})

			Convey("Then every submission reached the service", func() {
				So(err, ShouldBeNil)
				sessions, players := stub.received()
				So(sessions, ShouldEqual, 40)
				So(players, ShouldEqual, 5)
			})

			Convey("Then the submissions file is written", func() {
				So(err, ShouldBeNil)
				data, readErr := os.ReadFile(outputFile)
				So(readErr, ShouldBeNil)
				So(string(data), ShouldContainSubstring, `"player_id"`)
			})
		})
	})
}

func TestRunFlagsTotalDrift(t *testing.T) {
	Convey("Given a service whose rank totals drift from the acknowledged sums", t, func() {
		stub := newStubService()
		stub.skewTotals = true
		srv := httptest.NewServer(stub.handler())
		defer srv.Close()

		config := &Config{
			BaseURL:        srv.URL,
			NumPlayers:     3,
			NumSubmissions: 9,
			TopN:           5,
			Workers:        2,
			Timeout:        5 * time.Second,
			OutputFile:     filepath.Join(t.TempDir(), "submissions.json"),
		}

		Convey("When the load test runs", func() {
			err := Run(context.Background(), config)

			Convey("Then verification fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "verification")
			})
		})
	})
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	Convey("Given a config without workers", t, func() {
		config := &Config{
			BaseURL:        "http://localhost:0",
			NumPlayers:     1,
			NumSubmissions: 1,
			Workers:        0,
		}

		Convey("When the load test runs", func() {
			err := Run(context.Background(), config)

			Convey("Then it refuses to start", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestRunAgainstUnreachableService(t *testing.T) {
	Convey("Given no service to talk to", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		config := &Config{
			BaseURL:        srv.URL,
			NumPlayers:     1,
			NumSubmissions: 1,
			Workers:        1,
			Timeout:        time.Second,
		}

		Convey("When the load test runs", func() {
			err := Run(context.Background(), config)

			Convey("Then the health check fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "health check")
			})
		})
	})
}
