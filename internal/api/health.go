package api

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
	// Hosts lists the registered guest hosts.
	Hosts []string `json:"hosts"`
	// Sessions is the number of guests left running by run workflows.
	Sessions int `json:"sessions"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := healthResponse{
		Status:   "ok",
		Hosts:    s.registry.Names(),
		Sessions: len(s.engine.Sessions()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
