package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/garnizeh/uptime-monitor/internal/availability"
	"github.com/garnizeh/uptime-monitor/internal/database"
)

// maxWindowHours bounds the metrics window to 30 days.
const maxWindowHours = 24 * 30

func (s *Server) handleUptimeMetrics(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("target_id")
	if raw == "" {
		writeError(w, http.StatusUnprocessableEntity, "target_id is required")
		return
	}
	targetID, ok := parseUUID(w, raw, "target_id")
	if !ok {
		return
	}

	windowHours := 24
	if v := r.URL.Query().Get("window_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxWindowHours {
			writeError(w, http.StatusUnprocessableEntity, "window_hours must be in [1, 720]")
			return
		}
		windowHours = n
	}

	engine := availability.NewEngine(database.NewQueries(s.db))
	report, err := engine.UptimeWindow(r.Context(), targetID, windowHours, nil, true)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to compute uptime")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
