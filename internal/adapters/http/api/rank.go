// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/ladder/internal/domain/types"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	GetRank(ctx context.Context, playerID int64) (types.RankSnapshot, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /ranks/{player_id} requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /ranks/
	path := strings.TrimPrefix(r.URL.Path, "/ranks/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	playerID, err := strconv.ParseInt(path, 10, 64)
	if err != nil || playerID < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("player id must be a positive integer")))
		return
	}
	snap, err := h.deps.GetRank(r.Context(), playerID)
	if err != nil {
		status, code := statusFromError(err)
		writeError(w, status, code, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
