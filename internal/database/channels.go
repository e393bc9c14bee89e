package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertNotificationChannel registers an alert destination.
func (q *Queries) InsertNotificationChannel(ctx context.Context, chType string, config json.RawMessage, isActive bool) (NotificationChannel, error) {
	var c NotificationChannel
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO notification_channels (type, config, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, type, config, is_active, created_at`,
		chType, []byte(config), isActive).
		Scan(&c.ID, &c.Type, (*[]byte)(&c.Config), &c.IsActive, &c.CreatedAt)
	if err != nil {
		return NotificationChannel{}, fmt.Errorf("insert notification channel: %w", err)
	}
	return c, nil
}

// ListActiveChannelsByType returns the active channels of one type, oldest
// first, so adapters fan out in registration order.
func (q *Queries) ListActiveChannelsByType(ctx context.Context, chType string) ([]NotificationChannel, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, type, config, is_active, created_at
		FROM notification_channels
		WHERE type = $1 AND is_active
		ORDER BY created_at ASC`, chType)
	if err != nil {
		return nil, fmt.Errorf("list active channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NotificationChannel
	for rows.Next() {
		var c NotificationChannel
		if err := rows.Scan(&c.ID, &c.Type, (*[]byte)(&c.Config), &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification channel: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification channels: %w", err)
	}
	return out, nil
}

// InsertNotificationEvent records a queued delivery attempt for an incident
// transition on one channel.
func (q *Queries) InsertNotificationEvent(ctx context.Context, incidentID, channelID uuid.UUID) (NotificationEvent, error) {
	var e NotificationEvent
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO notification_events (incident_id, channel_id, status)
		VALUES ($1, $2, 'QUEUED')
		RETURNING id, incident_id, channel_id, status, error, sent_at, created_at`,
		incidentID, channelID).
		Scan(&e.ID, &e.IncidentID, &e.ChannelID, &e.Status, &e.Error, &e.SentAt, &e.CreatedAt)
	if err != nil {
		return NotificationEvent{}, fmt.Errorf("insert notification event: %w", err)
	}
	return e, nil
}

// MarkNotificationEvent finalizes a delivery attempt as SENT or FAILED.
func (q *Queries) MarkNotificationEvent(ctx context.Context, id uuid.UUID, status string, sendErr sql.NullString, sentAt time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE notification_events
		SET status = $2, error = $3, sent_at = $4
		WHERE id = $1`, id, status, sendErr, sentAt)
	if err != nil {
		return fmt.Errorf("mark notification event: %w", err)
	}
	return nil
}
