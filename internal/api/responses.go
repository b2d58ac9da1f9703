package api

import (
	"net/http"
	"strconv"
)

type logResponseRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleLogResponse(w http.ResponseWriter, r *http.Request) {
	var req logResponseRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.responseSvc.Record(r.Context(), req.Action); err != nil {
		s.writeServiceError(w, err, "failed to record response")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleListResponses returns recent action responses.
// Accepts an optional ?limit=N query parameter (default 50).
func (s *Server) handleListResponses(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	responses, err := s.responseSvc.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err, "failed to list responses")
		return
	}
	writeJSON(w, http.StatusOK, responses)
}
