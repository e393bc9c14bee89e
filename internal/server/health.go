package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// handleHealth returns service status and database connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type resp struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		Database  string `json:"database,omitempty"`
		Error     string `json:"error,omitempty"`
	}

	w.Header().Set("Content-Type", "application/json")
	out := resp{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			out.Status = "error"
			out.Database = "disconnected"
			out.Error = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(out)
			return
		}
		out.Database = "connected"
	}

	_ = json.NewEncoder(w).Encode(out)
}
