package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// stopSessionsRequest is the JSON body for POST /v1/sessions/stop. An empty
// body stops every session this server left running.
type stopSessionsRequest struct {
	WorkDir string `json:"workdir"`
}

type stopSessionsResponse struct {
	Stopped int    `json:"stopped"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleStopSessions(w http.ResponseWriter, r *http.Request) {
	var req stopSessionsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	n, err := s.engine.StopSessions(r.Context(), req.WorkDir)
	if err != nil {
		s.logger.Error("stop sessions", "workdir", req.WorkDir, "stopped", n, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, stopSessionsResponse{Stopped: n, Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, stopSessionsResponse{Stopped: n})
}
