// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/types"
)

// ScoreSubmitter defines the interface for score submission.
type ScoreSubmitter interface {
	SubmitScore(ctx context.Context, sub model.Submission) (types.SubmissionResult, error)
}

// ScoresHandler handles score submission requests.
type ScoresHandler struct {
	svc ScoreSubmitter
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(svc ScoreSubmitter) *ScoresHandler {
	return &ScoresHandler{svc: svc}
}

// scoreRequest mirrors the OpenAPI schema for POST /scores. TS is
// optional; when empty the server stamps the submission itself.
type scoreRequest struct {
	PlayerID int64  `json:"player_id"`
	Score    int64  `json:"score"`
	Mode     string `json:"mode"`
	TS       string `json:"ts"`
}

func (s scoreRequest) submission() (model.Submission, error) {
	sub := model.Submission{PlayerID: s.PlayerID, Score: s.Score, Mode: s.Mode}
	if s.TS != "" {
		ts, err := time.Parse(time.RFC3339, s.TS)
		if err != nil {
			return model.Submission{}, errors.New("invalid ts; must be RFC3339")
		}
		sub.TS = ts
	}
	return sub, nil
}

// HandlePostScore handles POST /scores requests. The submission is
// processed synchronously; the response carries the committed total.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sub, err := req.submission()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	result, err := h.svc.SubmitScore(r.Context(), sub)
	if err != nil {
		status, code := statusFromError(err)
		writeError(w, status, code, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
