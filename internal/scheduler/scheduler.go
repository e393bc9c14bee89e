// Package scheduler distributes probing work across concurrent workers. Each
// target owns one scheduler_state row; workers acquire due rows under a
// SKIP LOCKED discipline, so two workers can never hold the same target, and
// a crashed worker's lease simply expires and becomes acquirable again.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
	"github.com/garnizeh/uptime-monitor/internal/incident"
	"github.com/garnizeh/uptime-monitor/internal/probe"
)

// completeRetries bounds the completion transaction attempts on store
// contention, the first attempt included.
const completeRetries = 3

// ErrTargetGone is returned by Complete when the target (and its scheduler
// row) was deleted while the probe was in flight.
var ErrTargetGone = errors.New("target gone")

// Job is one leased unit of work: a scheduler row plus a snapshot of its
// target at acquire time.
type Job struct {
	SchedulerID uuid.UUID
	Target      database.Target
}

// Scheduler manages scheduler_state rows for a fleet of workers.
type Scheduler struct {
	db           *sql.DB
	leaseTimeout time.Duration
	now          func() time.Time
}

// New constructs a Scheduler over the shared store.
func New(db *sql.DB, leaseTimeout time.Duration) *Scheduler {
	return &Scheduler{
		db:           db,
		leaseTimeout: leaseTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// EnsureEntries inserts a scheduler row with next_run_at = now for every
// target lacking one. Idempotent; called at worker startup.
func (s *Scheduler) EnsureEntries(ctx context.Context) error {
	return database.NewQueries(s.db).EnsureSchedulerEntries(ctx, s.now())
}

// Acquire leases up to limit due targets for workerID. Rows locked by
// concurrent workers are skipped; overdue targets come first. The returned
// jobs are exclusively owned until completed or the lease expires.
func (s *Scheduler) Acquire(ctx context.Context, limit int, workerID string) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("acquire: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := database.New(tx)
	now := s.now()

	due, err := q.SelectDueRowsForUpdate(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}

	leaseUntil := now.Add(s.leaseTimeout)
	jobs := make([]Job, 0, len(due))
	for _, d := range due {
		if err := q.LeaseSchedulerRow(ctx, d.SchedulerID, workerID, leaseUntil); err != nil {
			return nil, fmt.Errorf("acquire: %w", err)
		}
		jobs = append(jobs, Job{SchedulerID: d.SchedulerID, Target: d.Target})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("acquire: commit: %w", err)
	}
	return jobs, nil
}

// Complete records a probe outcome for a leased job: the check result, the
// incident transition and the new next_run_at all commit in one transaction,
// with the lease cleared. next_run_at derives from the outcome's checked_at
// rather than the previous schedule, so a lagging scheduler absorbs the lag
// instead of firing storms.
//
// Store contention (serialization failures, deadlocks, a duplicate
// open-incident insert) retries the whole transaction a bounded number of
// times. Returns ErrTargetGone when the scheduler row vanished mid-flight.
func (s *Scheduler) Complete(ctx context.Context, job Job, out probe.Outcome) (incident.Transition, error) {
	var lastErr error
	for attempt := 0; attempt < completeRetries; attempt++ {
		tr, err := s.completeOnce(ctx, job, out)
		if err == nil || !database.IsContention(err) {
			return tr, err
		}
		lastErr = err
	}
	return incident.Transition{}, fmt.Errorf("complete: retries exhausted: %w", lastErr)
}

func (s *Scheduler) completeOnce(ctx context.Context, job Job, out probe.Outcome) (incident.Transition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return incident.Transition{}, fmt.Errorf("complete: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := database.New(tx)

	if _, err := q.GetSchedulerRowForUpdate(ctx, job.SchedulerID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return incident.Transition{}, ErrTargetGone
		}
		return incident.Transition{}, fmt.Errorf("complete: %w", err)
	}

	if _, err := q.InsertCheckResult(ctx, checkParams(job.Target.ID, out)); err != nil {
		return incident.Transition{}, fmt.Errorf("complete: %w", err)
	}

	tr, err := incident.Apply(ctx, q, job.Target.ID, out.Status, out.CheckedAt)
	if err != nil {
		return incident.Transition{}, fmt.Errorf("complete: %w", err)
	}

	nextRunAt := out.CheckedAt.Add(time.Duration(job.Target.CheckIntervalSec) * time.Second)
	if err := q.ReleaseSchedulerRow(ctx, job.SchedulerID, nextRunAt); err != nil {
		return incident.Transition{}, fmt.Errorf("complete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return incident.Transition{}, fmt.Errorf("complete: commit: %w", err)
	}
	return tr, nil
}

// checkParams flattens a probe outcome into check_results columns.
func checkParams(targetID uuid.UUID, out probe.Outcome) database.InsertCheckResultParams {
	p := database.InsertCheckResultParams{
		TargetID:  targetID,
		Status:    out.Status,
		LatencyMs: sql.NullInt32{Int32: int32(out.LatencyMs), Valid: true},
		CheckedAt: out.CheckedAt,
	}
	if out.HTTPStatus > 0 {
		p.HTTPStatus = sql.NullInt32{Int32: int32(out.HTTPStatus), Valid: true}
	}
	if out.ErrorKind != "" {
		p.Error = sql.NullString{String: out.ErrorKind, Valid: true}
	}
	return p
}
