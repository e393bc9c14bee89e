// Package alert defines the notification contract the monitoring core emits
// on incident transitions, plus the built-in senders.
package alert

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

// Event describes one incident transition for delivery to notifiers.
type Event struct {
	TargetID       uuid.UUID
	TargetName     string
	URL            string
	Status         database.Status
	PreviousStatus database.Status
	IncidentID     uuid.UUID
	CheckedAt      time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
	ErrorKind      string
}

// Sender delivers one alert event to a destination. Implementations must be
// safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// Registry is an ordered list of senders. Delivery is best-effort: each
// sender is invoked once, sequentially; failures are logged, not retried, and
// never block the caller.
type Registry struct {
	senders []Sender
}

// NewRegistry builds a registry over the given senders, called in order.
func NewRegistry(senders ...Sender) *Registry {
	return &Registry{senders: senders}
}

// Register appends a sender to the fan-out order.
func (r *Registry) Register(s Sender) {
	r.senders = append(r.senders, s)
}

// Notify delivers ev to every registered sender.
func (r *Registry) Notify(ctx context.Context, ev Event) {
	for _, s := range r.senders {
		if err := s.Send(ctx, ev); err != nil {
			log.Printf("alert: sender %T failed for target %s: %v", s, ev.TargetID, err)
		}
	}
}

// LogSender writes alert events to the process log. Useful as a default
// notifier and in tests.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, ev Event) error {
	log.Printf("alert: target=%s name=%q url=%s status=%s previous=%s incident=%s error=%q",
		ev.TargetID, ev.TargetName, ev.URL, ev.Status, ev.PreviousStatus, ev.IncidentID, ev.ErrorKind)
	return nil
}
