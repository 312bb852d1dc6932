package handlers

import (
	"net/http"

	"eventstaff/internal/matching"
)

// MatchCandidatesHandler POST /api/matches
func (h *Handler) MatchCandidatesHandler(w http.ResponseWriter, r *http.Request) {
	var req matching.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Matches.Find(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
