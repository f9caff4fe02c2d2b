package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SessionsHandler serves a session's inventory and score submissions.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// scoreRequest mirrors the OpenAPI schema for POST /sessions/{id}/scores.
type scoreRequest struct {
	Player string   `json:"player"`
	Score  *float64 `json:"score"`
}

// HandleGetInventory handles GET /sessions/{id}/inventory.
func (h *SessionsHandler) HandleGetInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.deps.RequestInitialInventory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// HandlePostScore handles POST /sessions/{id}/scores.
func (h *SessionsHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	res, err := h.deps.SubmitScore(r.Context(), chi.URLParam(r, "id"), req.Player, *req.Score)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
