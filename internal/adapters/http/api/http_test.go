package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/ladder/internal/adapters/http/api"
	repository "github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// mockService implements api.Service for handler tests.
type mockService struct {
	submitResult types.SubmissionResult
	submitErr    error
	submissions  []model.Submission

	top       []types.Entry
	topErr    error
	lastLimit int

	rank    types.RankSnapshot
	rankErr error

	stats    types.Stats
	statsErr error

	triggerOK bool
	status    types.RecomputeStatus
}

func (m *mockService) SubmitScore(ctx context.Context, sub model.Submission) (types.SubmissionResult, error) {
	if m.submitErr != nil {
		return types.SubmissionResult{}, m.submitErr
	}
	m.submissions = append(m.submissions, sub)
	return m.submitResult, nil
}

func (m *mockService) GetTop(ctx context.Context, n int) ([]types.Entry, error) {
	m.lastLimit = n
	if m.topErr != nil {
		return nil, m.topErr
	}
	if n > len(m.top) {
		return m.top, nil
	}
	return m.top[:n], nil
}

func (m *mockService) GetRank(ctx context.Context, playerID int64) (types.RankSnapshot, error) {
	if m.rankErr != nil {
		return types.RankSnapshot{}, m.rankErr
	}
	return m.rank, nil
}

func (m *mockService) GetStats(ctx context.Context) (types.Stats, error) {
	if m.statsErr != nil {
		return types.Stats{}, m.statsErr
	}
	return m.stats, nil
}

func (m *mockService) TriggerFullRecomputation(ctx context.Context) bool {
	return m.triggerOK
}

func (m *mockService) RecomputeStatus(ctx context.Context) types.RecomputeStatus {
	return m.status
}

// Local response shapes for testing
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackResponse struct {
	Status string `json:"status"`
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		svc := &mockService{
			top:       []types.Entry{{Rank: 1, PlayerID: 1, TotalScore: 100}},
			rank:      types.RankSnapshot{PlayerID: 1, TotalScore: 100, Rank: 1, TotalPlayers: 1},
			triggerOK: true,
		}
		server := api.NewServer(svc)
		mux := http.NewServeMux()

		Convey("When registering routes", func() {
			server.Register(context.Background(), mux)

			Convey("Then health endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/healthz", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And stats endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/stats", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And instrumented endpoints should carry a request ID", func() {
				req := httptest.NewRequest("GET", "/stats", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Header().Get("X-Request-ID"), ShouldNotBeEmpty)
			})

			Convey("And scores endpoint should reject malformed bodies", func() {
				req := httptest.NewRequest("POST", "/scores", strings.NewReader(`{invalid`))
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And scores endpoint should accept a valid submission", func() {
				body := `{"player_id": 1, "score": 100, "mode": "solo"}`
				req := httptest.NewRequest("POST", "/scores", strings.NewReader(body))
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And leaderboard endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/leaderboard?limit=10", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And rank endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/ranks/1", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And recompute endpoint should acknowledge triggers", func() {
				req := httptest.NewRequest("POST", "/admin/recompute", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusAccepted)
			})

			Convey("And recompute endpoint should report status", func() {
				req := httptest.NewRequest("GET", "/admin/recompute", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And root endpoint should serve the dashboard with refresh control", func() {
				req := httptest.NewRequest("GET", "/", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				body := w.Body.String()
				So(body, ShouldContainSubstring, "id=\"refresh-interval\"")
				So(body, ShouldContainSubstring, "id=\"refresh-control\"")
			})

			Convey("And unknown paths should return not found", func() {
				req := httptest.NewRequest("GET", "/unknown", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestScoresHandler_HandlePostScore(t *testing.T) {
	Convey("Given a scores handler", t, func() {
		svc := &mockService{
			submitResult: types.SubmissionResult{
				PlayerID:    42,
				TotalScore:  150,
				SubmittedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			},
		}
		handler := api.NewScoresHandler(svc)

		Convey("When handling a valid POST request", func() {
			body := `{"player_id": 42, "score": 100, "mode": "solo"}`
			req := httptest.NewRequest("POST", "/scores", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should return the committed result", func() {
				handler.HandlePostScore(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var result types.SubmissionResult
				err := json.NewDecoder(w.Body).Decode(&result)
				So(err, ShouldBeNil)
				So(result.PlayerID, ShouldEqual, 42)
				So(result.TotalScore, ShouldEqual, 150)
				So(result.SubmittedAt.IsZero(), ShouldBeFalse)
			})

			Convey("And the submission should reach the service intact", func() {
				handler.HandlePostScore(w, req)
				So(len(svc.submissions), ShouldEqual, 1)
				So(svc.submissions[0].PlayerID, ShouldEqual, 42)
				So(svc.submissions[0].Score, ShouldEqual, 100)
				So(svc.submissions[0].Mode, ShouldEqual, "solo")
			})
		})

		Convey("When the request carries an explicit timestamp", func() {
			body := `{"player_id": 7, "score": 10, "ts": "2025-06-01T10:00:00Z"}`
			req := httptest.NewRequest("POST", "/scores", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then the parsed timestamp should be forwarded", func() {
				handler.HandlePostScore(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(svc.submissions), ShouldEqual, 1)
				want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
				So(svc.submissions[0].TS.Equal(want), ShouldBeTrue)
			})
		})

		Convey("When handling an invalid JSON request", func() {
			req := httptest.NewRequest("POST", "/scores", strings.NewReader(`{invalid json`))
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandlePostScore(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "bad_request")
			})
		})

		Convey("When the timestamp is not RFC3339", func() {
			body := `{"player_id": 7, "score": 10, "ts": "yesterday"}`
			req := httptest.NewRequest("POST", "/scores", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandlePostScore(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(len(svc.submissions), ShouldEqual, 0)
			})
		})

		Convey("When the service rejects the submission", func() {
			svc.submitErr = model.ErrScoreOutOfRange
			body := `{"player_id": 7, "score": 2000000}`
			req := httptest.NewRequest("POST", "/scores", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandlePostScore(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "bad_request")
			})
		})

		Convey("When the store is unavailable", func() {
			svc.submitErr = repository.ErrTransient
			body := `{"player_id": 7, "score": 10}`
			req := httptest.NewRequest("POST", "/scores", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should return service unavailable status", func() {
				handler.HandlePostScore(w, req)
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "store_unavailable")
			})
		})

		Convey("When the service fails unexpectedly", func() {
			svc.submitErr = fmt.Errorf("database error")
			body := `{"player_id": 7, "score": 10}`
			req := httptest.NewRequest("POST", "/scores", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should return internal server error", func() {
				handler.HandlePostScore(w, req)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When handling a non-POST request", func() {
			req := httptest.NewRequest("GET", "/scores", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return not found status", func() {
				handler.HandlePostScore(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestLeaderboardHandler_HandleGetLeaderboard(t *testing.T) {
	Convey("Given a leaderboard handler", t, func() {
		svc := &mockService{
			top: []types.Entry{
				{Rank: 1, PlayerID: 1, TotalScore: 300},
				{Rank: 2, PlayerID: 2, TotalScore: 200},
				{Rank: 3, PlayerID: 3, TotalScore: 100},
			},
		}
		handler := api.NewLeaderboardHandler(svc, api.MaxLimit)

		Convey("When requesting top N entries", func() {
			req := httptest.NewRequest("GET", "/leaderboard?limit=2", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the top N entries", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response []types.Entry
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(len(response), ShouldEqual, 2)
				So(response[0].PlayerID, ShouldEqual, 1)
				So(response[1].PlayerID, ShouldEqual, 2)
			})
		})

		Convey("When no limit is specified", func() {
			req := httptest.NewRequest("GET", "/leaderboard", nil)
			w := httptest.NewRecorder()

			Convey("Then it should fall back to the default limit", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(svc.lastLimit, ShouldEqual, api.DefaultLimit)
			})
		})

		Convey("When the limit exceeds the snapshot cap", func() {
			req := httptest.NewRequest("GET", "/leaderboard?limit=500", nil)
			w := httptest.NewRecorder()

			Convey("Then it should be clamped, not rejected", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(svc.lastLimit, ShouldEqual, api.MaxLimit)
			})
		})

		Convey("When the limit is zero", func() {
			req := httptest.NewRequest("GET", "/leaderboard?limit=0", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the limit is not a number", func() {
			req := httptest.NewRequest("GET", "/leaderboard?limit=abc", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the service returns an error", func() {
			svc.topErr = fmt.Errorf("database error")
			req := httptest.NewRequest("GET", "/leaderboard?limit=10", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return internal server error", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestRankHandler_HandleGetRank(t *testing.T) {
	Convey("Given a rank handler", t, func() {
		svc := &mockService{
			rank: types.RankSnapshot{PlayerID: 123, TotalScore: 850, Rank: 5, TotalPlayers: 10},
		}
		handler := api.NewRankHandler(svc)

		Convey("When requesting rank for an existing player", func() {
			req := httptest.NewRequest("GET", "/ranks/123", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the rank snapshot", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

				var response types.RankSnapshot
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.PlayerID, ShouldEqual, 123)
				So(response.Rank, ShouldEqual, 5)
				So(response.TotalScore, ShouldEqual, 850)
				So(response.TotalPlayers, ShouldEqual, 10)
			})
		})

		Convey("When the path has no player ID", func() {
			req := httptest.NewRequest("GET", "/ranks/", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the path has extra segments", func() {
			req := httptest.NewRequest("GET", "/ranks/12/history", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the player ID is not numeric", func() {
			req := httptest.NewRequest("GET", "/ranks/abc", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the player ID is not positive", func() {
			req := httptest.NewRequest("GET", "/ranks/-4", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When requesting rank for an unknown player", func() {
			svc.rankErr = repository.ErrNotFound
			req := httptest.NewRequest("GET", "/ranks/999", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return not found status", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "not_found")
			})
		})

		Convey("When the store is unavailable", func() {
			svc.rankErr = repository.ErrTransient
			req := httptest.NewRequest("GET", "/ranks/123", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return service unavailable status", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When the service fails unexpectedly", func() {
			svc.rankErr = fmt.Errorf("database error")
			req := httptest.NewRequest("GET", "/ranks/123", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return internal server error", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestStatsHandler_HandleStats(t *testing.T) {
	Convey("Given a stats handler", t, func() {
		svc := &mockService{
			stats: types.Stats{TotalPlayers: 150, TotalSessions: 1000, AverageScore: 72.5},
		}
		handler := api.NewStatsHandler(svc)

		Convey("When handling a stats request", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the stats", func() {
				handler.HandleStats(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response types.Stats
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.TotalPlayers, ShouldEqual, 150)
				So(response.TotalSessions, ShouldEqual, 1000)
				So(response.AverageScore, ShouldEqual, 72.5)
			})
		})

		Convey("When the service returns an error", func() {
			svc.statsErr = fmt.Errorf("database error")
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return internal server error", func() {
				handler.HandleStats(w, req)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When handling a non-GET request", func() {
			req := httptest.NewRequest("POST", "/stats", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return not found status", func() {
				handler.HandleStats(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestRecomputeHandler_HandleRecompute(t *testing.T) {
	Convey("Given a recompute handler", t, func() {
		svc := &mockService{
			triggerOK: true,
			status: types.RecomputeStatus{
				QueueDepth:     3,
				DeadJobs:       1,
				LastFullRanked: 42,
			},
		}
		handler := api.NewRecomputeHandler(svc)

		Convey("When triggering a full recomputation", func() {
			req := httptest.NewRequest("POST", "/admin/recompute", nil)
			w := httptest.NewRecorder()

			Convey("Then it should acknowledge without waiting", func() {
				handler.HandleRecompute(w, req)
				So(w.Code, ShouldEqual, http.StatusAccepted)

				var response ackResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Status, ShouldEqual, "accepted")
			})
		})

		Convey("When the engine rejects the trigger", func() {
			svc.triggerOK = false
			req := httptest.NewRequest("POST", "/admin/recompute", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return too many requests status", func() {
				handler.HandleRecompute(w, req)
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "backpressure")
			})
		})

		Convey("When querying engine status", func() {
			req := httptest.NewRequest("GET", "/admin/recompute", nil)
			w := httptest.NewRecorder()

			Convey("Then it should report queue depth and progress", func() {
				handler.HandleRecompute(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response types.RecomputeStatus
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.QueueDepth, ShouldEqual, 3)
				So(response.DeadJobs, ShouldEqual, 1)
				So(response.LastFullRanked, ShouldEqual, 42)
			})
		})

		Convey("When handling an unsupported method", func() {
			req := httptest.NewRequest("DELETE", "/admin/recompute", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return not found status", func() {
				handler.HandleRecompute(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	Convey("Given a health handler", t, func() {
		handler := api.NewHealthHandler()

		Convey("When handling a health check request", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return OK status", func() {
				handler.HandleHealth(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	Convey("Given the request ID middleware", t, func() {
		var seen string
		inner := func(w http.ResponseWriter, r *http.Request) {
			seen = api.RequestID(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}
		handler := api.RequestIDMiddleware(inner)

		Convey("When the caller sends no request ID", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()
			handler(w, req)

			Convey("Then one is minted and echoed", func() {
				So(w.Header().Get("X-Request-ID"), ShouldNotBeEmpty)
				So(seen, ShouldEqual, w.Header().Get("X-Request-ID"))
			})
		})

		Convey("When the caller provides a request ID", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			req.Header.Set("X-Request-ID", "req-abc-123")
			w := httptest.NewRecorder()
			handler(w, req)

			Convey("Then it is preserved", func() {
				So(w.Header().Get("X-Request-ID"), ShouldEqual, "req-abc-123")
				So(seen, ShouldEqual, "req-abc-123")
			})
		})
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given the metrics middleware", t, func() {
		inner := func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		}
		handler := api.MetricsMiddleware(inner, "teapot")

		Convey("When a request passes through", func() {
			req := httptest.NewRequest("GET", "/teapot", nil)
			w := httptest.NewRecorder()
			handler(w, req)

			Convey("Then status and body are untouched", func() {
				So(w.Code, ShouldEqual, http.StatusTeapot)
				So(w.Body.String(), ShouldEqual, "short and stout")
			})
		})
	})
}
