package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

// targetBody is the target representation returned by the API.
type targetBody struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	URL              string    `json:"url"`
	CheckIntervalSec int       `json:"check_interval_sec"`
	TimeoutMs        int       `json:"timeout_ms"`
	RetryCount       int       `json:"retry_count"`
	RetryBackoffMs   int       `json:"retry_backoff_ms"`
	SlaTarget        int       `json:"sla_target"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toTargetBody(t database.Target) targetBody {
	return targetBody{
		ID:               t.ID,
		Name:             t.Name,
		URL:              t.URL,
		CheckIntervalSec: t.CheckIntervalSec,
		TimeoutMs:        t.TimeoutMs,
		RetryCount:       t.RetryCount,
		RetryBackoffMs:   t.RetryBackoffMs,
		SlaTarget:        t.SlaTarget,
		IsActive:         t.IsActive,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// targetPatch carries partial updates; nil fields are left unchanged.
type targetPatch struct {
	Name             *string `json:"name"`
	URL              *string `json:"url"`
	CheckIntervalSec *int    `json:"check_interval_sec"`
	TimeoutMs        *int    `json:"timeout_ms"`
	RetryCount       *int    `json:"retry_count"`
	RetryBackoffMs   *int    `json:"retry_backoff_ms"`
	SlaTarget        *int    `json:"sla_target"`
	IsActive         *bool   `json:"is_active"`
}

func (s *Server) handleTargetList(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, 100, 1000)
	targets, err := database.NewQueries(s.db).ListTargets(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}

	out := make([]targetBody, 0, len(targets))
	for _, t := range targets {
		out = append(out, toTargetBody(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTargetCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name             string `json:"name"`
		URL              string `json:"url"`
		CheckIntervalSec int    `json:"check_interval_sec"`
		TimeoutMs        *int   `json:"timeout_ms"`
		RetryCount       *int   `json:"retry_count"`
		RetryBackoffMs   *int   `json:"retry_backoff_ms"`
		SlaTarget        *int   `json:"sla_target"`
		IsActive         *bool  `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := database.InsertTargetParams{
		Name:             body.Name,
		URL:              body.URL,
		CheckIntervalSec: body.CheckIntervalSec,
		TimeoutMs:        5000,
		RetryCount:       2,
		RetryBackoffMs:   500,
		SlaTarget:        999,
		IsActive:         true,
	}
	if body.TimeoutMs != nil {
		params.TimeoutMs = *body.TimeoutMs
	}
	if body.RetryCount != nil {
		params.RetryCount = *body.RetryCount
	}
	if body.RetryBackoffMs != nil {
		params.RetryBackoffMs = *body.RetryBackoffMs
	}
	if body.SlaTarget != nil {
		params.SlaTarget = *body.SlaTarget
	}
	if body.IsActive != nil {
		params.IsActive = *body.IsActive
	}

	if msg := validateTargetParams(params); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	target, err := database.NewQueries(s.db).InsertTarget(r.Context(), params)
	if err != nil {
		if database.IsUniqueViolation(err) {
			writeError(w, http.StatusUnprocessableEntity, "url already monitored")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create target")
		return
	}
	writeJSON(w, http.StatusCreated, toTargetBody(target))
}

func (s *Server) handleTargetGet(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseUUID(w, rawID, "target id")
	if !ok {
		return
	}
	target, err := database.NewQueries(s.db).GetTargetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load target")
		return
	}
	writeJSON(w, http.StatusOK, toTargetBody(target))
}

func (s *Server) handleTargetUpdate(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseUUID(w, rawID, "target id")
	if !ok {
		return
	}
	var patch targetPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q := database.NewQueries(s.db)
	target, err := q.GetTargetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load target")
		return
	}

	if patch.Name != nil {
		target.Name = *patch.Name
	}
	if patch.URL != nil {
		target.URL = *patch.URL
	}
	if patch.CheckIntervalSec != nil {
		target.CheckIntervalSec = *patch.CheckIntervalSec
	}
	if patch.TimeoutMs != nil {
		target.TimeoutMs = *patch.TimeoutMs
	}
	if patch.RetryCount != nil {
		target.RetryCount = *patch.RetryCount
	}
	if patch.RetryBackoffMs != nil {
		target.RetryBackoffMs = *patch.RetryBackoffMs
	}
	if patch.SlaTarget != nil {
		target.SlaTarget = *patch.SlaTarget
	}
	if patch.IsActive != nil {
		target.IsActive = *patch.IsActive
	}

	if msg := validateTarget(target); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	updated, err := q.UpdateTarget(r.Context(), target)
	if err != nil {
		if database.IsUniqueViolation(err) {
			writeError(w, http.StatusUnprocessableEntity, "url already monitored")
			return
		}
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update target")
		return
	}
	writeJSON(w, http.StatusOK, toTargetBody(updated))
}

func (s *Server) handleTargetDelete(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseUUID(w, rawID, "target id")
	if !ok {
		return
	}
	err := database.NewQueries(s.db).DeleteTarget(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete target")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateTargetParams(p database.InsertTargetParams) string {
	return validateTarget(database.Target{
		Name:             p.Name,
		URL:              p.URL,
		CheckIntervalSec: p.CheckIntervalSec,
		TimeoutMs:        p.TimeoutMs,
		RetryCount:       p.RetryCount,
		RetryBackoffMs:   p.RetryBackoffMs,
		SlaTarget:        p.SlaTarget,
	})
}

func validateTarget(t database.Target) string {
	if t.Name == "" || len(t.Name) > 255 {
		return "name must be 1-255 characters"
	}
	if msg := validateURL(t.URL); msg != "" {
		return msg
	}
	if t.CheckIntervalSec < 1 {
		return "check_interval_sec must be >= 1"
	}
	if t.TimeoutMs < 1 {
		return "timeout_ms must be >= 1"
	}
	if t.RetryCount < 0 {
		return "retry_count must be >= 0"
	}
	if t.RetryBackoffMs < 0 {
		return "retry_backoff_ms must be >= 0"
	}
	if t.SlaTarget < 0 || t.SlaTarget > 1000 {
		return "sla_target must be in [0, 1000]"
	}
	return ""
}

func validateURL(raw string) string {
	if raw == "" || len(raw) > 2048 {
		return "url must be 1-2048 characters"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "url must be a valid absolute URL"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("unsupported url scheme %q", u.Scheme)
	}
	return ""
}
