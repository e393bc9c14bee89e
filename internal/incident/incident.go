// Package incident implements the per-target incident state machine driven by
// probe outcomes. A target is HEALTHY when it has no open incident and FAILING
// while exactly one unresolved incident exists; the partial unique index on
// open incidents embeds that invariant in the store.
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

// TransitionKind classifies the effect of one probe outcome on a target's
// incident state.
type TransitionKind int

const (
	// TransitionNone: HEALTHY target stayed healthy.
	TransitionNone TransitionKind = iota
	// TransitionOpened: HEALTHY -> FAILING, a new incident was inserted.
	TransitionOpened
	// TransitionOngoing: FAILING target failed again; the open incident was refreshed.
	TransitionOngoing
	// TransitionResolved: FAILING -> HEALTHY, the open incident was closed.
	TransitionResolved
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionOpened:
		return "opened"
	case TransitionOngoing:
		return "ongoing"
	case TransitionResolved:
		return "resolved"
	default:
		return "none"
	}
}

// Transition is the observable result of advancing the state machine.
// Incident is populated for every kind except TransitionNone.
type Transition struct {
	Kind     TransitionKind
	Incident database.Incident
}

// Decide returns the transition implied by a probe status given whether the
// target currently has an open incident.
func Decide(hasOpen bool, status database.Status) TransitionKind {
	switch {
	case status == database.StatusDown && !hasOpen:
		return TransitionOpened
	case status == database.StatusDown && hasOpen:
		return TransitionOngoing
	case status == database.StatusUp && hasOpen:
		return TransitionResolved
	default:
		return TransitionNone
	}
}

// Apply advances the incident state machine for one probe outcome. It must run
// inside the same transaction that records the check result.
//
// The open-incident lookup uses FOR UPDATE SKIP LOCKED: when a concurrent
// worker holds the row, Apply proceeds as if no incident were open, and an
// attempted duplicate insert fails on uq_incidents_open. That error propagates
// to the caller, which retries the whole completion transaction.
func Apply(ctx context.Context, q *database.Queries, targetID uuid.UUID, status database.Status, ts time.Time) (Transition, error) {
	open, err := q.GetOpenIncidentForUpdate(ctx, targetID)
	hasOpen := err == nil
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return Transition{}, fmt.Errorf("lookup open incident: %w", err)
	}

	switch Decide(hasOpen, status) {
	case TransitionOpened:
		inc, err := q.InsertOpenIncident(ctx, targetID, ts)
		if err != nil {
			return Transition{}, fmt.Errorf("open incident: %w", err)
		}
		return Transition{Kind: TransitionOpened, Incident: inc}, nil

	case TransitionOngoing:
		if err := q.TouchOpenIncident(ctx, open.ID, database.StatusDown); err != nil {
			return Transition{}, fmt.Errorf("refresh incident: %w", err)
		}
		open.LastStatus = database.StatusDown
		return Transition{Kind: TransitionOngoing, Incident: open}, nil

	case TransitionResolved:
		closed, err := q.CloseIncident(ctx, open.ID, ts)
		if err != nil {
			return Transition{}, fmt.Errorf("close incident: %w", err)
		}
		return Transition{Kind: TransitionResolved, Incident: closed}, nil

	default:
		return Transition{Kind: TransitionNone}, nil
	}
}
