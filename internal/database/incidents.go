package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const incidentColumns = `id, target_id, start_ts, end_ts, last_status, resolved`

func scanIncident(row interface{ Scan(...any) error }) (Incident, error) {
	var i Incident
	err := row.Scan(&i.ID, &i.TargetID, &i.StartTs, &i.EndTs, &i.LastStatus, &i.Resolved)
	return i, err
}

// InsertOpenIncident opens an incident for a target. The partial unique index
// uq_incidents_open rejects a second open incident for the same target; the
// caller treats that violation as a retry signal.
func (q *Queries) InsertOpenIncident(ctx context.Context, targetID uuid.UUID, startTs time.Time) (Incident, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO incidents (target_id, start_ts, end_ts, last_status, resolved)
		VALUES ($1, $2, NULL, 'DOWN', FALSE)
		RETURNING `+incidentColumns,
		targetID, startTs,
	)
	i, err := scanIncident(row)
	if err != nil {
		return Incident{}, fmt.Errorf("insert open incident: %w", err)
	}
	return i, nil
}

// GetOpenIncidentForUpdate row-locks and returns the open incident for a
// target, skipping it when a concurrent worker already holds the lock.
// Returns ErrNotFound when no open (unlocked) incident exists.
func (q *Queries) GetOpenIncidentForUpdate(ctx context.Context, targetID uuid.UUID) (Incident, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE target_id = $1 AND NOT resolved
		FOR UPDATE SKIP LOCKED`, targetID)
	i, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, ErrNotFound
	}
	if err != nil {
		return Incident{}, fmt.Errorf("get open incident: %w", err)
	}
	return i, nil
}

// TouchOpenIncident refreshes last_status on an open incident.
func (q *Queries) TouchOpenIncident(ctx context.Context, id uuid.UUID, lastStatus Status) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE incidents SET last_status = $2 WHERE id = $1 AND NOT resolved`,
		id, lastStatus)
	if err != nil {
		return fmt.Errorf("touch open incident: %w", err)
	}
	return nil
}

// CloseIncident resolves an open incident at endTs and returns the final row.
func (q *Queries) CloseIncident(ctx context.Context, id uuid.UUID, endTs time.Time) (Incident, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE incidents
		SET end_ts = $2, last_status = 'UP', resolved = TRUE
		WHERE id = $1 AND NOT resolved
		RETURNING `+incidentColumns,
		id, endTs,
	)
	i, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, ErrNotFound
	}
	if err != nil {
		return Incident{}, fmt.Errorf("close incident: %w", err)
	}
	return i, nil
}

// GetIncidentByID fetches one incident. Returns ErrNotFound when absent.
func (q *Queries) GetIncidentByID(ctx context.Context, id uuid.UUID) (Incident, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	i, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, ErrNotFound
	}
	if err != nil {
		return Incident{}, fmt.Errorf("get incident: %w", err)
	}
	return i, nil
}

// ListIncidentsByTarget returns incidents for a target, newest first.
func (q *Queries) ListIncidentsByTarget(ctx context.Context, targetID uuid.UUID, offset, limit int) ([]Incident, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE target_id = $1
		ORDER BY start_ts DESC
		OFFSET $2 LIMIT $3`, targetID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

// CountOpenIncidents returns the number of unresolved incidents fleet-wide.
func (q *Queries) CountOpenIncidents(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT count(*) FROM incidents WHERE NOT resolved`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open incidents: %w", err)
	}
	return n, nil
}
