package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

// incidentBody is the incident representation returned by the API.
type incidentBody struct {
	ID         uuid.UUID  `json:"id"`
	TargetID   uuid.UUID  `json:"target_id"`
	StartTs    time.Time  `json:"start_ts"`
	EndTs      *time.Time `json:"end_ts"`
	LastStatus string     `json:"last_status"`
	Resolved   bool       `json:"resolved"`
}

func toIncidentBody(i database.Incident) incidentBody {
	out := incidentBody{
		ID:         i.ID,
		TargetID:   i.TargetID,
		StartTs:    i.StartTs,
		LastStatus: string(i.LastStatus),
		Resolved:   i.Resolved,
	}
	if i.EndTs.Valid {
		end := i.EndTs.Time
		out.EndTs = &end
	}
	return out
}

func (s *Server) handleIncidentList(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("target_id")
	if raw == "" {
		writeError(w, http.StatusUnprocessableEntity, "target_id is required")
		return
	}
	targetID, ok := parseUUID(w, raw, "target_id")
	if !ok {
		return
	}

	offset, limit := pagination(r, 100, 1000)
	incidents, err := database.NewQueries(s.db).ListIncidentsByTarget(r.Context(), targetID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	out := make([]incidentBody, 0, len(incidents))
	for _, i := range incidents {
		out = append(out, toIncidentBody(i))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIncidentGet(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseUUID(w, rawID, "incident id")
	if !ok {
		return
	}
	inc, err := database.NewQueries(s.db).GetIncidentByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load incident")
		return
	}
	writeJSON(w, http.StatusOK, toIncidentBody(inc))
}
