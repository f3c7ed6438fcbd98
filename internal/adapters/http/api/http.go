// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/types"
)

// Service bundles the operations the HTTP layer exposes. Using an
// interface bundle keeps the handler layer loosely coupled to the
// implementation in internal/app.
type Service interface {
	// SubmitScore records one score session and returns the committed result.
	SubmitScore(ctx context.Context, sub model.Submission) (types.SubmissionResult, error)

	// Read operations expose leaderboard data.
	GetTop(ctx context.Context, n int) ([]Entry, error)
	GetRank(ctx context.Context, playerID int64) (types.RankSnapshot, error)
	GetStats(ctx context.Context) (types.Stats, error)

	// Admin operations drive the recomputation engine.
	TriggerFullRecomputation(ctx context.Context) bool
	RecomputeStatus(ctx context.Context) types.RecomputeStatus
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	recomputeHandler   *RecomputeHandler
	dashboardHandler   *dashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(svc Service) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(svc),
		scoresHandler:      NewScoresHandler(svc),
		leaderboardHandler: NewLeaderboardHandler(svc, MaxLimit),
		rankHandler:        NewRankHandler(svc),
		recomputeHandler:   NewRecomputeHandler(svc),
		dashboardHandler:   newDashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", instrument(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", instrument(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/scores", instrument(s.scoresHandler.HandlePostScore, "scores"))
	mux.HandleFunc("/leaderboard", instrument(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/ranks/", instrument(s.rankHandler.HandleGetRank, "ranks"))
	mux.HandleFunc("/admin/recompute", instrument(s.recomputeHandler.HandleRecompute, "recompute"))
	mux.HandleFunc("/", s.dashboardHandler.HandleDashboard)
}

// instrument composes the standard middleware chain for an endpoint.
func instrument(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return RequestIDMiddleware(MetricsMiddleware(next, endpoint))
}
