package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

// checkBody is the check-result representation returned by the API.
type checkBody struct {
	ID         uuid.UUID `json:"id"`
	TargetID   uuid.UUID `json:"target_id"`
	Status     string    `json:"status"`
	HTTPStatus *int      `json:"http_status"`
	LatencyMs  *int      `json:"latency_ms"`
	Error      *string   `json:"error"`
	CheckedAt  time.Time `json:"checked_at"`
}

func toCheckBody(c database.CheckResult) checkBody {
	out := checkBody{
		ID:        c.ID,
		TargetID:  c.TargetID,
		Status:    string(c.Status),
		CheckedAt: c.CheckedAt,
	}
	if c.HTTPStatus.Valid {
		v := int(c.HTTPStatus.Int32)
		out.HTTPStatus = &v
	}
	if c.LatencyMs.Valid {
		v := int(c.LatencyMs.Int32)
		out.LatencyMs = &v
	}
	if c.Error.Valid {
		v := c.Error.String
		out.Error = &v
	}
	return out
}

func (s *Server) handleCheckList(w http.ResponseWriter, r *http.Request, rawID string) {
	targetID, ok := parseUUID(w, rawID, "target id")
	if !ok {
		return
	}
	offset, limit := pagination(r, 200, 1000)
	checks, err := database.NewQueries(s.db).ListCheckResults(r.Context(), targetID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list checks")
		return
	}

	out := make([]checkBody, 0, len(checks))
	for _, c := range checks {
		out = append(out, toCheckBody(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCheckLatest(w http.ResponseWriter, r *http.Request, rawID string) {
	targetID, ok := parseUUID(w, rawID, "target id")
	if !ok {
		return
	}
	check, err := database.NewQueries(s.db).LatestCheckResult(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no checks recorded for target")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load latest check")
		return
	}
	writeJSON(w, http.StatusOK, toCheckBody(check))
}
