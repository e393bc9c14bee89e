// Package availability converts a target's sparse check stream into uptime
// and downtime seconds over a window, and derives the SLA verdict.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

// Sample is one check observation on the timeline.
type Sample struct {
	Status    database.Status
	CheckedAt time.Time
}

// Report is the availability record for one target over [FromTs, ToTs].
// Availability and SlaMet are nil when the window holds no attributable time.
type Report struct {
	TargetID          uuid.UUID `json:"target_id"`
	WindowHours       int       `json:"window_hours"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
	DowntimeSeconds   float64   `json:"downtime_seconds"`
	Availability      *float64  `json:"availability"`
	SampleCount       int       `json:"sample_count"`
	FromTs            time.Time `json:"from_ts"`
	ToTs              time.Time `json:"to_ts"`
	SlaTargetPerMille int       `json:"sla_target_per_mille"`
	SlaMet            *bool     `json:"sla_met"`
}

// Compute sweeps the window [w0, w1] and splits it into uptime and downtime
// seconds.
//
// The baseline is the last sample before w0 when one exists. Otherwise the
// sweep starts at the first in-window sample and the time before it is not
// attributed. With no samples at all, the whole window counts as downtime
// under the unknown-as-down policy; without the policy, ok is false and no
// time is attributed.
//
// Out-of-order samples (behind the sweep cursor) are skipped, not errored.
func Compute(prev *Sample, samples []Sample, w0, w1 time.Time, assumeUnknownAsDown bool) (uptime, downtime float64, ok bool) {
	var (
		status database.Status
		cursor time.Time
	)

	switch {
	case prev != nil:
		status = prev.Status
		cursor = w0
	case len(samples) > 0:
		status = samples[0].Status
		cursor = samples[0].CheckedAt
		samples = samples[1:]
	case assumeUnknownAsDown:
		status = database.StatusDown
		cursor = w0
	default:
		return 0, 0, false
	}

	advance := func(to time.Time) {
		delta := to.Sub(cursor).Seconds()
		if delta <= 0 {
			return
		}
		if status == database.StatusUp {
			uptime += delta
		} else {
			downtime += delta
		}
	}

	for _, s := range samples {
		if s.CheckedAt.Before(cursor) {
			continue
		}
		advance(s.CheckedAt)
		status = s.Status
		cursor = s.CheckedAt
	}
	advance(w1)

	return uptime, downtime, true
}

// Engine computes availability reports from the store.
type Engine struct {
	q   *database.Queries
	now func() time.Time
}

// NewEngine constructs an Engine over the given query layer.
func NewEngine(q *database.Queries) *Engine {
	return &Engine{q: q, now: func() time.Time { return time.Now().UTC() }}
}

// UptimeWindow computes the report for [now - windowHours, now]. When
// slaTargetPerMille is nil the target's configured SLA applies. Returns
// database.ErrNotFound for an unknown target.
func (e *Engine) UptimeWindow(ctx context.Context, targetID uuid.UUID, windowHours int, slaTargetPerMille *int, assumeUnknownAsDown bool) (Report, error) {
	now := e.now()
	w0 := now.Add(-time.Duration(windowHours) * time.Hour)

	target, err := e.q.GetTargetByID(ctx, targetID)
	if err != nil {
		return Report{}, fmt.Errorf("resolve target: %w", err)
	}
	sla := target.SlaTarget
	if slaTargetPerMille != nil {
		sla = *slaTargetPerMille
	}

	var prev *Sample
	before, err := e.q.LatestCheckBefore(ctx, targetID, w0)
	if err == nil {
		prev = &Sample{Status: before.Status, CheckedAt: before.CheckedAt}
	} else if !errors.Is(err, database.ErrNotFound) {
		return Report{}, fmt.Errorf("baseline check: %w", err)
	}

	rows, err := e.q.ListChecksInWindow(ctx, targetID, w0, now)
	if err != nil {
		return Report{}, fmt.Errorf("window checks: %w", err)
	}
	samples := make([]Sample, len(rows))
	for i, r := range rows {
		samples[i] = Sample{Status: r.Status, CheckedAt: r.CheckedAt}
	}

	report := Report{
		TargetID:          targetID,
		WindowHours:       windowHours,
		SampleCount:       len(samples),
		FromTs:            w0,
		ToTs:              now,
		SlaTargetPerMille: sla,
	}

	uptime, downtime, ok := Compute(prev, samples, w0, now, assumeUnknownAsDown)
	if !ok {
		return report, nil
	}
	report.UptimeSeconds = uptime
	report.DowntimeSeconds = downtime

	if total := uptime + downtime; total > 0 {
		av := uptime / total
		report.Availability = &av
		met := av >= float64(sla)/1000
		report.SlaMet = &met
	}
	return report, nil
}
