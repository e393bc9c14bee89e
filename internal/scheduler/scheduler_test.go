package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
	"github.com/garnizeh/uptime-monitor/internal/incident"
	"github.com/garnizeh/uptime-monitor/internal/probe"
)

// setupDB opens the Postgres test database or skips the test when
// TEST_DATABASE_URL is unset.
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping store-backed test")
	}
	db, err := database.InitDB(context.Background(), url)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close DB: %v", err)
		}
	})
	return db
}

// createTarget inserts a target with a unique URL and registers cleanup.
func createTarget(t *testing.T, db *sql.DB, intervalSec int) database.Target {
	t.Helper()
	q := database.NewQueries(db)
	target, err := q.InsertTarget(context.Background(), database.InsertTargetParams{
		Name:             "test-" + t.Name(),
		URL:              fmt.Sprintf("https://example.com/%s", uuid.NewString()),
		CheckIntervalSec: intervalSec,
		TimeoutMs:        5000,
		RetryCount:       1,
		RetryBackoffMs:   100,
		SlaTarget:        999,
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("InsertTarget failed: %v", err)
	}
	t.Cleanup(func() {
		_ = q.DeleteTarget(context.Background(), target.ID)
	})
	return target
}

func TestEnsureEntries_Idempotent(t *testing.T) {
	db := setupDB(t)
	target := createTarget(t, db, 60)
	s := New(db, 30*time.Second)
	ctx := context.Background()

	if err := s.EnsureEntries(ctx); err != nil {
		t.Fatalf("first EnsureEntries: %v", err)
	}
	if err := s.EnsureEntries(ctx); err != nil {
		t.Fatalf("second EnsureEntries: %v", err)
	}

	var n int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM scheduler_state WHERE target_id = $1`, target.ID).Scan(&n)
	if err != nil {
		t.Fatalf("count scheduler rows: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 scheduler row, got %d", n)
	}
}

func TestAcquire_DisjointAcrossWorkers(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, createTarget(t, db, 60).ID)
	}
	targetSet := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		targetSet[id] = true
	}

	s := New(db, 30*time.Second)
	if err := s.EnsureEntries(ctx); err != nil {
		t.Fatalf("EnsureEntries: %v", err)
	}

	a, err := s.Acquire(ctx, 1000, "worker-a")
	if err != nil {
		t.Fatalf("worker-a Acquire: %v", err)
	}
	b, err := s.Acquire(ctx, 1000, "worker-b")
	if err != nil {
		t.Fatalf("worker-b Acquire: %v", err)
	}

	seen := make(map[uuid.UUID]string)
	for _, j := range a {
		if targetSet[j.Target.ID] {
			seen[j.Target.ID] = "a"
		}
	}
	for _, j := range b {
		if !targetSet[j.Target.ID] {
			continue
		}
		if owner, dup := seen[j.Target.ID]; dup {
			t.Fatalf("target %s leased by both worker-%s and worker-b", j.Target.ID, owner)
		}
		seen[j.Target.ID] = "b"
	}
	if len(seen) != len(ids) {
		t.Fatalf("expected the union of acquires to cover all %d targets, got %d", len(ids), len(seen))
	}
}

func TestAcquire_SkipsLeasedUntilExpiry(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	target := createTarget(t, db, 60)

	short := New(db, 300*time.Millisecond)
	if err := short.EnsureEntries(ctx); err != nil {
		t.Fatalf("EnsureEntries: %v", err)
	}

	jobs, err := short.Acquire(ctx, 1000, "worker-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !containsTarget(jobs, target.ID) {
		t.Fatalf("expected worker-a to lease target %s", target.ID)
	}

	// While the lease is live the target is not acquirable.
	again, err := short.Acquire(ctx, 1000, "worker-b")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if containsTarget(again, target.ID) {
		t.Fatal("target leased twice while lease was live")
	}

	// After expiry, a second worker succeeds without manual reclamation.
	time.Sleep(400 * time.Millisecond)
	reclaimed, err := short.Acquire(ctx, 1000, "worker-b")
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	if !containsTarget(reclaimed, target.ID) {
		t.Fatal("expected expired lease to be acquirable")
	}
}

func TestComplete_HappyPath(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	target := createTarget(t, db, 60)

	s := New(db, 30*time.Second)
	if err := s.EnsureEntries(ctx); err != nil {
		t.Fatalf("EnsureEntries: %v", err)
	}
	jobs, err := s.Acquire(ctx, 1000, "worker-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	job, ok := findJob(jobs, target.ID)
	if !ok {
		t.Fatalf("target %s not leased", target.ID)
	}

	checkedAt := time.Now().UTC().Truncate(time.Millisecond)
	tr, err := s.Complete(ctx, job, probe.Outcome{
		Status:     database.StatusUp,
		HTTPStatus: 200,
		LatencyMs:  120,
		CheckedAt:  checkedAt,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if tr.Kind != incident.TransitionNone {
		t.Fatalf("expected no transition on healthy UP, got %s", tr.Kind)
	}

	q := database.NewQueries(db)
	check, err := q.LatestCheckResult(ctx, target.ID)
	if err != nil {
		t.Fatalf("LatestCheckResult: %v", err)
	}
	if check.Status != database.StatusUp || check.HTTPStatus.Int32 != 200 {
		t.Fatalf("unexpected check row: %+v", check)
	}

	var state database.SchedulerState
	err = db.QueryRowContext(ctx, `
		SELECT id, target_id, next_run_at, lease_owner, lease_expires_at
		FROM scheduler_state WHERE target_id = $1`, target.ID).
		Scan(&state.ID, &state.TargetID, &state.NextRunAt, &state.LeaseOwner, &state.LeaseExpiresAt)
	if err != nil {
		t.Fatalf("load scheduler state: %v", err)
	}
	if state.LeaseOwner.Valid || state.LeaseExpiresAt.Valid {
		t.Fatalf("expected lease cleared, got %+v", state)
	}
	wantNext := checkedAt.Add(60 * time.Second)
	if diff := state.NextRunAt.Sub(wantNext); diff < -time.Second || diff > time.Second {
		t.Fatalf("next_run_at = %v, want ~%v", state.NextRunAt, wantNext)
	}
}

func TestComplete_IncidentLifecycle(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	target := createTarget(t, db, 1)

	s := New(db, 30*time.Second)
	if err := s.EnsureEntries(ctx); err != nil {
		t.Fatalf("EnsureEntries: %v", err)
	}

	// DOWN opens an incident.
	jobs, err := s.Acquire(ctx, 1000, "worker-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	job, ok := findJob(jobs, target.ID)
	if !ok {
		t.Fatalf("target not leased")
	}
	downAt := time.Now().UTC()
	tr, err := s.Complete(ctx, job, probe.Outcome{
		Status:     database.StatusDown,
		HTTPStatus: 503,
		LatencyMs:  80,
		CheckedAt:  downAt,
	})
	if err != nil {
		t.Fatalf("Complete DOWN: %v", err)
	}
	if tr.Kind != incident.TransitionOpened {
		t.Fatalf("expected opened transition, got %s", tr.Kind)
	}
	if tr.Incident.Resolved || tr.Incident.LastStatus != database.StatusDown {
		t.Fatalf("unexpected incident: %+v", tr.Incident)
	}

	// UP resolves it; no second incident row appears.
	time.Sleep(1100 * time.Millisecond)
	jobs, err = s.Acquire(ctx, 1000, "worker-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	job, ok = findJob(jobs, target.ID)
	if !ok {
		t.Fatalf("target not due again")
	}
	upAt := time.Now().UTC()
	tr, err = s.Complete(ctx, job, probe.Outcome{
		Status:     database.StatusUp,
		HTTPStatus: 200,
		LatencyMs:  50,
		CheckedAt:  upAt,
	})
	if err != nil {
		t.Fatalf("Complete UP: %v", err)
	}
	if tr.Kind != incident.TransitionResolved {
		t.Fatalf("expected resolved transition, got %s", tr.Kind)
	}
	if !tr.Incident.Resolved || !tr.Incident.EndTs.Valid {
		t.Fatalf("incident not closed: %+v", tr.Incident)
	}

	q := database.NewQueries(db)
	incidents, err := q.ListIncidentsByTarget(ctx, target.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListIncidentsByTarget: %v", err)
	}
	if len(incidents) != 1 {
		t.Fatalf("expected exactly 1 incident, got %d", len(incidents))
	}
}

func containsTarget(jobs []Job, id uuid.UUID) bool {
	_, ok := findJob(jobs, id)
	return ok
}

func findJob(jobs []Job, id uuid.UUID) (Job, bool) {
	for _, j := range jobs {
		if j.Target.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

func TestCheckParams_Flattening(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()

	p := checkParams(id, probe.Outcome{
		Status:     database.StatusUp,
		HTTPStatus: 204,
		LatencyMs:  42,
		CheckedAt:  now,
	})
	if !p.HTTPStatus.Valid || p.HTTPStatus.Int32 != 204 {
		t.Fatalf("expected http status recorded, got %+v", p.HTTPStatus)
	}
	if p.Error.Valid {
		t.Fatal("expected no error on success")
	}

	p = checkParams(id, probe.Outcome{
		Status:    database.StatusDown,
		LatencyMs: 3200,
		ErrorKind: probe.ErrKindTimeout,
		CheckedAt: now,
	})
	if p.HTTPStatus.Valid {
		t.Fatal("expected no http status for transport failure")
	}
	if !p.Error.Valid || p.Error.String != "timeout" {
		t.Fatalf("expected timeout error kind, got %+v", p.Error)
	}
	if !p.LatencyMs.Valid || p.LatencyMs.Int32 != 3200 {
		t.Fatalf("expected latency recorded, got %+v", p.LatencyMs)
	}
}
