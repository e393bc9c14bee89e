package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

const targetColumns = `id, name, url, check_interval_sec, timeout_ms, retry_count,
	retry_backoff_ms, sla_target, is_active, created_at, updated_at`

func scanTarget(row interface{ Scan(...any) error }) (Target, error) {
	var t Target
	err := row.Scan(
		&t.ID, &t.Name, &t.URL, &t.CheckIntervalSec, &t.TimeoutMs, &t.RetryCount,
		&t.RetryBackoffMs, &t.SlaTarget, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// InsertTargetParams carries the attributes of a new target.
type InsertTargetParams struct {
	Name             string
	URL              string
	CheckIntervalSec int
	TimeoutMs        int
	RetryCount       int
	RetryBackoffMs   int
	SlaTarget        int
	IsActive         bool
}

// InsertTarget creates a target and returns the stored row.
func (q *Queries) InsertTarget(ctx context.Context, p InsertTargetParams) (Target, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO targets (name, url, check_interval_sec, timeout_ms, retry_count,
			retry_backoff_ms, sla_target, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+targetColumns,
		p.Name, p.URL, p.CheckIntervalSec, p.TimeoutMs, p.RetryCount,
		p.RetryBackoffMs, p.SlaTarget, p.IsActive,
	)
	t, err := scanTarget(row)
	if err != nil {
		return Target{}, fmt.Errorf("insert target: %w", err)
	}
	return t, nil
}

// GetTargetByID fetches one target. Returns ErrNotFound when absent.
func (q *Queries) GetTargetByID(ctx context.Context, id uuid.UUID) (Target, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE id = $1`, id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Target{}, ErrNotFound
	}
	if err != nil {
		return Target{}, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// ListTargets returns targets ordered by creation time.
func (q *Queries) ListTargets(ctx context.Context, offset, limit int) ([]Target, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM targets ORDER BY created_at OFFSET $1 LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("list targets: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return out, nil
}

// UpdateTarget persists the mutable attributes of the given target and bumps
// updated_at. The caller loads the row, applies changes and writes it back.
func (q *Queries) UpdateTarget(ctx context.Context, t Target) (Target, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE targets
		SET name = $2, url = $3, check_interval_sec = $4, timeout_ms = $5,
			retry_count = $6, retry_backoff_ms = $7, sla_target = $8,
			is_active = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+targetColumns,
		t.ID, t.Name, t.URL, t.CheckIntervalSec, t.TimeoutMs,
		t.RetryCount, t.RetryBackoffMs, t.SlaTarget, t.IsActive,
	)
	updated, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Target{}, ErrNotFound
	}
	if err != nil {
		return Target{}, fmt.Errorf("update target: %w", err)
	}
	return updated, nil
}

// DeleteTarget removes a target; dependent rows cascade. Returns ErrNotFound
// when no row was deleted.
func (q *Queries) DeleteTarget(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM targets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
