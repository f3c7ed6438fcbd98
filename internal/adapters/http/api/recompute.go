// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/ladder/internal/domain/types"
)

// RecomputeDependencies defines the interface for recomputation control.
type RecomputeDependencies interface {
	// TriggerFullRecomputation enqueues a full rank rebuild. Returns false
	// on backpressure.
	TriggerFullRecomputation(ctx context.Context) bool
	RecomputeStatus(ctx context.Context) types.RecomputeStatus
}

// RecomputeHandler handles recomputation admin requests.
type RecomputeHandler struct {
	deps RecomputeDependencies
}

// NewRecomputeHandler creates a new recompute handler.
func NewRecomputeHandler(deps RecomputeDependencies) *RecomputeHandler {
	return &RecomputeHandler{deps: deps}
}

type ackResponse struct {
	Status string `json:"status"`
}

// HandleRecompute handles /admin/recompute requests. POST enqueues a
// full recomputation and acknowledges without waiting for it; GET
// reports engine progress.
func (h *RecomputeHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.recompute"
	switch r.Method {
	case http.MethodPost:
		if ok := h.deps.TriggerFullRecomputation(r.Context()); !ok {
			writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
			return
		}
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.deps.RecomputeStatus(r.Context()))
	default:
		http.NotFound(w, r)
	}
}
