package database

import (
	"context"
	"fmt"
)

// FleetStats is a point-in-time summary of the monitored fleet, broadcast to
// websocket subscribers.
type FleetStats struct {
	ActiveTargets int `json:"active_targets"`
	Up            int `json:"up"`
	Down          int `json:"down"`
	OpenIncidents int `json:"open_incidents"`
}

// GetFleetStats derives UP/DOWN counts from each active target's most recent
// check. Targets never probed count as neither.
func (q *Queries) GetFleetStats(ctx context.Context) (FleetStats, error) {
	var s FleetStats
	err := q.db.QueryRowContext(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (c.target_id) c.target_id, c.status
			FROM check_results c
			JOIN targets t ON t.id = c.target_id
			WHERE t.is_active
			ORDER BY c.target_id, c.checked_at DESC
		)
		SELECT
			(SELECT count(*) FROM targets WHERE is_active),
			(SELECT count(*) FROM latest WHERE status = 'UP'),
			(SELECT count(*) FROM latest WHERE status = 'DOWN'),
			(SELECT count(*) FROM incidents WHERE NOT resolved)`).
		Scan(&s.ActiveTargets, &s.Up, &s.Down, &s.OpenIncidents)
	if err != nil {
		return FleetStats{}, fmt.Errorf("fleet stats: %w", err)
	}
	return s, nil
}
