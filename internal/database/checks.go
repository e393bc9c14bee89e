package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const checkColumns = `id, target_id, status, http_status, latency_ms, error, checked_at`

func scanCheck(row interface{ Scan(...any) error }) (CheckResult, error) {
	var c CheckResult
	err := row.Scan(&c.ID, &c.TargetID, &c.Status, &c.HTTPStatus, &c.LatencyMs, &c.Error, &c.CheckedAt)
	return c, err
}

// InsertCheckResultParams carries one probe outcome for persistence.
type InsertCheckResultParams struct {
	TargetID   uuid.UUID
	Status     Status
	HTTPStatus sql.NullInt32
	LatencyMs  sql.NullInt32
	Error      sql.NullString
	CheckedAt  time.Time
}

// InsertCheckResult appends a check result row.
func (q *Queries) InsertCheckResult(ctx context.Context, p InsertCheckResultParams) (CheckResult, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO check_results (target_id, status, http_status, latency_ms, error, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+checkColumns,
		p.TargetID, p.Status, p.HTTPStatus, p.LatencyMs, p.Error, p.CheckedAt,
	)
	c, err := scanCheck(row)
	if err != nil {
		return CheckResult{}, fmt.Errorf("insert check result: %w", err)
	}
	return c, nil
}

// LatestCheckResult returns the most recent check for a target, or
// ErrNotFound if the target has never been probed.
func (q *Queries) LatestCheckResult(ctx context.Context, targetID uuid.UUID) (CheckResult, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+checkColumns+` FROM check_results
		WHERE target_id = $1
		ORDER BY checked_at DESC
		LIMIT 1`, targetID)
	c, err := scanCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CheckResult{}, ErrNotFound
	}
	if err != nil {
		return CheckResult{}, fmt.Errorf("latest check result: %w", err)
	}
	return c, nil
}

// ListCheckResults returns recent checks for a target, newest first.
func (q *Queries) ListCheckResults(ctx context.Context, targetID uuid.UUID, offset, limit int) ([]CheckResult, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+checkColumns+` FROM check_results
		WHERE target_id = $1
		ORDER BY checked_at DESC
		OFFSET $2 LIMIT $3`, targetID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list check results: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectChecks(rows)
}

// LatestCheckBefore returns the most recent check strictly before ts, used as
// the availability baseline for a window. Returns ErrNotFound when none exists.
func (q *Queries) LatestCheckBefore(ctx context.Context, targetID uuid.UUID, ts time.Time) (CheckResult, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+checkColumns+` FROM check_results
		WHERE target_id = $1 AND checked_at < $2
		ORDER BY checked_at DESC
		LIMIT 1`, targetID, ts)
	c, err := scanCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CheckResult{}, ErrNotFound
	}
	if err != nil {
		return CheckResult{}, fmt.Errorf("latest check before: %w", err)
	}
	return c, nil
}

// ListChecksInWindow returns checks with checked_at in [from, to], oldest first.
func (q *Queries) ListChecksInWindow(ctx context.Context, targetID uuid.UUID, from, to time.Time) ([]CheckResult, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+checkColumns+` FROM check_results
		WHERE target_id = $1 AND checked_at >= $2 AND checked_at <= $3
		ORDER BY checked_at ASC`, targetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list checks in window: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectChecks(rows)
}

func collectChecks(rows *sql.Rows) ([]CheckResult, error) {
	var out []CheckResult
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check result: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check results: %w", err)
	}
	return out, nil
}
