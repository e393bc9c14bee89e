package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the binary outcome of a probe.
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// Notification event delivery states.
const (
	NotificationQueued = "QUEUED"
	NotificationSent   = "SENT"
	NotificationFailed = "FAILED"
)

// Target is an endpoint under monitoring.
type Target struct {
	ID               uuid.UUID
	Name             string
	URL              string
	CheckIntervalSec int
	TimeoutMs        int
	RetryCount       int
	RetryBackoffMs   int
	SlaTarget        int
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CheckResult is the persisted outcome of a single probe. Rows are append-only.
type CheckResult struct {
	ID         uuid.UUID
	TargetID   uuid.UUID
	Status     Status
	HTTPStatus sql.NullInt32
	LatencyMs  sql.NullInt32
	Error      sql.NullString
	CheckedAt  time.Time
}

// Incident is a contiguous DOWN interval for a target. At most one unresolved
// incident exists per target, enforced by uq_incidents_open.
type Incident struct {
	ID         uuid.UUID
	TargetID   uuid.UUID
	StartTs    time.Time
	EndTs      sql.NullTime
	LastStatus Status
	Resolved   bool
}

// SchedulerState carries the next due time and the current lease for one
// target. Exactly one row exists per target.
type SchedulerState struct {
	ID             uuid.UUID
	TargetID       uuid.UUID
	NextRunAt      time.Time
	LeaseOwner     sql.NullString
	LeaseExpiresAt sql.NullTime
}

// NotificationChannel is an alert destination (e.g. a Telegram chat).
type NotificationChannel struct {
	ID        uuid.UUID
	Type      string
	Config    json.RawMessage
	IsActive  bool
	CreatedAt time.Time
}

// NotificationEvent records one delivery attempt of an incident transition to
// one channel.
type NotificationEvent struct {
	ID         uuid.UUID
	IncidentID uuid.UUID
	ChannelID  uuid.UUID
	Status     string
	Error      sql.NullString
	SentAt     sql.NullTime
	CreatedAt  time.Time
}
