package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnsureSchedulerEntries inserts a scheduler_state row with next_run_at = now
// for every target lacking one. Idempotent; safe to call from every worker at
// startup.
func (q *Queries) EnsureSchedulerEntries(ctx context.Context, now time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO scheduler_state (target_id, next_run_at)
		SELECT t.id, $1 FROM targets t
		ON CONFLICT (target_id) DO NOTHING`, now)
	if err != nil {
		return fmt.Errorf("ensure scheduler entries: %w", err)
	}
	return nil
}

// DueRow is one acquirable scheduler row joined with its target snapshot.
type DueRow struct {
	SchedulerID uuid.UUID
	Target      Target
}

// SelectDueRowsForUpdate selects up to limit scheduler rows whose target is
// active, whose next_run_at has passed and whose lease is absent or expired,
// oldest due first. Selected rows are row-locked; rows locked by concurrent
// workers are skipped. Must run inside a transaction.
func (q *Queries) SelectDueRowsForUpdate(ctx context.Context, now time.Time, limit int) ([]DueRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT s.id, `+prefixedTargetColumns("t")+`
		FROM scheduler_state s
		JOIN targets t ON t.id = s.target_id
		WHERE t.is_active
		  AND s.next_run_at <= $1
		  AND (s.lease_expires_at IS NULL OR s.lease_expires_at <= $1)
		ORDER BY s.next_run_at ASC
		LIMIT $2
		FOR UPDATE OF s SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DueRow
	for rows.Next() {
		var d DueRow
		err := rows.Scan(
			&d.SchedulerID,
			&d.Target.ID, &d.Target.Name, &d.Target.URL, &d.Target.CheckIntervalSec,
			&d.Target.TimeoutMs, &d.Target.RetryCount, &d.Target.RetryBackoffMs,
			&d.Target.SlaTarget, &d.Target.IsActive, &d.Target.CreatedAt, &d.Target.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan due row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due rows: %w", err)
	}
	return out, nil
}

// LeaseSchedulerRow marks one selected row as leased by owner until expires.
func (q *Queries) LeaseSchedulerRow(ctx context.Context, id uuid.UUID, owner string, expires time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE scheduler_state
		SET lease_owner = $2, lease_expires_at = $3
		WHERE id = $1`, id, owner, expires)
	if err != nil {
		return fmt.Errorf("lease scheduler row: %w", err)
	}
	return nil
}

// GetSchedulerRowForUpdate row-locks and returns one scheduler row. Returns
// ErrNotFound when the row is gone (target deleted mid-lease).
func (q *Queries) GetSchedulerRowForUpdate(ctx context.Context, id uuid.UUID) (SchedulerState, error) {
	var s SchedulerState
	err := q.db.QueryRowContext(ctx, `
		SELECT id, target_id, next_run_at, lease_owner, lease_expires_at
		FROM scheduler_state
		WHERE id = $1
		FOR UPDATE`, id).
		Scan(&s.ID, &s.TargetID, &s.NextRunAt, &s.LeaseOwner, &s.LeaseExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SchedulerState{}, ErrNotFound
	}
	if err != nil {
		return SchedulerState{}, fmt.Errorf("get scheduler row: %w", err)
	}
	return s, nil
}

// ReleaseSchedulerRow stores the next due time and clears the lease.
func (q *Queries) ReleaseSchedulerRow(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE scheduler_state
		SET next_run_at = $2, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = $1`, id, nextRunAt)
	if err != nil {
		return fmt.Errorf("release scheduler row: %w", err)
	}
	return nil
}

// prefixedTargetColumns qualifies the target column list with a table alias
// for use in joins.
func prefixedTargetColumns(alias string) string {
	return alias + `.id, ` + alias + `.name, ` + alias + `.url, ` +
		alias + `.check_interval_sec, ` + alias + `.timeout_ms, ` +
		alias + `.retry_count, ` + alias + `.retry_backoff_ms, ` +
		alias + `.sla_target, ` + alias + `.is_active, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
