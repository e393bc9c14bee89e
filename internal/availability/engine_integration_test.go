package availability

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

func setupEngine(t *testing.T) (*Engine, *database.Queries, database.Target) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping store-backed test")
	}
	db, err := database.InitDB(context.Background(), url)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	q := database.NewQueries(db)
	target, err := q.InsertTarget(context.Background(), database.InsertTargetParams{
		Name:             "engine-" + t.Name(),
		URL:              fmt.Sprintf("https://example.com/%s", uuid.NewString()),
		CheckIntervalSec: 60,
		TimeoutMs:        5000,
		RetryCount:       1,
		RetryBackoffMs:   100,
		SlaTarget:        999,
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("InsertTarget failed: %v", err)
	}
	t.Cleanup(func() { _ = q.DeleteTarget(context.Background(), target.ID) })

	return NewEngine(q), q, target
}

func insertCheck(t *testing.T, q *database.Queries, targetID uuid.UUID, status database.Status, at time.Time) {
	t.Helper()
	_, err := q.InsertCheckResult(context.Background(), database.InsertCheckResultParams{
		TargetID:  targetID,
		Status:    status,
		HTTPStatus: sql.NullInt32{Int32: 200, Valid: true},
		LatencyMs: sql.NullInt32{Int32: 50, Valid: true},
		CheckedAt: at,
	})
	if err != nil {
		t.Fatalf("InsertCheckResult failed: %v", err)
	}
}

// The 24h scenario: UP baseline before the window, DOWN at W0+1h, UP again at
// W0+1h30m. Expect 1800s downtime, 84600s uptime, SLA 999 missed.
func TestUptimeWindow_Scenario(t *testing.T) {
	engine, q, target := setupEngine(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	engine.now = func() time.Time { return now }
	w0 := now.Add(-24 * time.Hour)

	insertCheck(t, q, target.ID, database.StatusUp, w0.Add(-5*time.Minute))
	insertCheck(t, q, target.ID, database.StatusDown, w0.Add(time.Hour))
	insertCheck(t, q, target.ID, database.StatusUp, w0.Add(90*time.Minute))

	report, err := engine.UptimeWindow(ctx, target.ID, 24, nil, true)
	require.NoError(t, err)

	require.Equal(t, 2, report.SampleCount)
	require.InDelta(t, 1800, report.DowntimeSeconds, 1.0)
	require.InDelta(t, 84600, report.UptimeSeconds, 1.0)
	require.NotNil(t, report.Availability)
	require.InDelta(t, 84600.0/86400.0, *report.Availability, 1e-4)
	require.Equal(t, 999, report.SlaTargetPerMille)
	require.NotNil(t, report.SlaMet)
	require.False(t, *report.SlaMet)
}

func TestUptimeWindow_SLAOverride(t *testing.T) {
	engine, q, target := setupEngine(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	engine.now = func() time.Time { return now }
	w0 := now.Add(-24 * time.Hour)

	insertCheck(t, q, target.ID, database.StatusUp, w0.Add(-time.Minute))
	insertCheck(t, q, target.ID, database.StatusDown, w0.Add(time.Hour))
	insertCheck(t, q, target.ID, database.StatusUp, w0.Add(90*time.Minute))

	relaxed := 950
	report, err := engine.UptimeWindow(ctx, target.ID, 24, &relaxed, true)
	require.NoError(t, err)
	require.Equal(t, 950, report.SlaTargetPerMille)
	require.NotNil(t, report.SlaMet)
	require.True(t, *report.SlaMet) // 97.9% >= 95.0%
}
