// Package worker runs the monitoring loop: acquire due targets, probe them
// under a bounded concurrency ceiling, persist outcomes and emit alerts on
// incident transitions.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/uptime-monitor/internal/alert"
	"github.com/garnizeh/uptime-monitor/internal/config"
	"github.com/garnizeh/uptime-monitor/internal/database"
	"github.com/garnizeh/uptime-monitor/internal/incident"
	"github.com/garnizeh/uptime-monitor/internal/probe"
	"github.com/garnizeh/uptime-monitor/internal/scheduler"
)

// Checker is the probe dependency of the worker; satisfied by probe.Checker.
type Checker interface {
	Check(ctx context.Context, req probe.Request) probe.Outcome
}

// Worker owns one polling loop. Multiple Worker processes may run against the
// same store; the scheduler's lease discipline keeps them from colliding.
type Worker struct {
	cfg     *config.Config
	sched   *scheduler.Scheduler
	checker Checker
	alerts  *alert.Registry
	id      string
}

// New constructs a Worker with a unique identity.
func New(cfg *config.Config, sched *scheduler.Scheduler, checker Checker, alerts *alert.Registry) *Worker {
	return &Worker{
		cfg:     cfg,
		sched:   sched,
		checker: checker,
		alerts:  alerts,
		id:      "worker-" + uuid.NewString(),
	}
}

// ID returns the worker's lease-owner identity.
func (w *Worker) ID() string { return w.id }

// Run executes the polling loop until ctx is cancelled, then drains in-flight
// probes. Their leases are released by Complete or expire naturally.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.sched.EnsureEntries(ctx); err != nil {
		return fmt.Errorf("worker: ensure scheduler entries: %w", err)
	}
	log.Printf("worker: %s started (concurrency=%d batch=%d)", w.id, w.cfg.CheckerConcurrency, w.cfg.FetchBatchSize)

	// Counting semaphore for in-flight probes. The loop polls only when
	// capacity remains and never asks for more than it can run.
	sem := make(chan struct{}, w.cfg.CheckerConcurrency)
	var wg sync.WaitGroup
	backoff := NewBackoff(time.Second, time.Minute)

	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			log.Printf("worker: %s shutting down", w.id)
			return fmt.Errorf("worker: %w", err)
		}

		free := cap(sem) - len(sem)
		if free == 0 {
			_ = sleepCtx(ctx, w.cfg.PollInterval)
			continue
		}

		limit := free
		if limit > w.cfg.FetchBatchSize {
			limit = w.cfg.FetchBatchSize
		}

		jobs, err := w.sched.Acquire(ctx, limit, w.id)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			delay := backoff.Next()
			log.Printf("worker: acquire failed: %v; backing off %v", err, delay)
			_ = sleepCtx(ctx, delay)
			continue
		}
		backoff.Reset()

		if len(jobs) == 0 {
			_ = sleepCtx(ctx, w.cfg.PollInterval)
			continue
		}

		for _, job := range jobs {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// Unstarted jobs keep their leases; they expire and get
				// reacquired elsewhere.
				continue
			}
			wg.Add(1)
			go func(job scheduler.Job) {
				defer wg.Done()
				defer func() { <-sem }()
				w.runJob(ctx, job)
			}(job)
		}
	}
}

// runJob probes one leased target, records the outcome and emits alerts on
// incident transitions.
func (w *Worker) runJob(ctx context.Context, job scheduler.Job) {
	out := w.checker.Check(ctx, probe.Request{
		URL:            job.Target.URL,
		TimeoutMs:      job.Target.TimeoutMs,
		RetryCount:     job.Target.RetryCount,
		RetryBackoffMs: job.Target.RetryBackoffMs,
	})

	tr, err := w.sched.Complete(ctx, job, out)
	if err != nil {
		if errors.Is(err, scheduler.ErrTargetGone) {
			log.Printf("worker: target %s removed mid-flight, dropping result", job.Target.ID)
			return
		}
		log.Printf("worker: complete failed for target %s: %v", job.Target.ID, err)
		return
	}

	if ev, ok := transitionEvent(job.Target, out, tr); ok {
		w.alerts.Notify(ctx, ev)
	}
}

// transitionEvent maps an opened or resolved incident onto an alert event.
// Ongoing failures and healthy checks emit nothing.
func transitionEvent(target database.Target, out probe.Outcome, tr incident.Transition) (alert.Event, bool) {
	ev := alert.Event{
		TargetID:   target.ID,
		TargetName: target.Name,
		URL:        target.URL,
		Status:     out.Status,
		IncidentID: tr.Incident.ID,
		CheckedAt:  out.CheckedAt,
		ErrorKind:  out.ErrorKind,
	}

	switch tr.Kind {
	case incident.TransitionOpened:
		ev.PreviousStatus = database.StatusUp
		start := tr.Incident.StartTs
		ev.StartedAt = &start
		return ev, true
	case incident.TransitionResolved:
		ev.PreviousStatus = database.StatusDown
		start := tr.Incident.StartTs
		ev.StartedAt = &start
		if tr.Incident.EndTs.Valid {
			end := tr.Incident.EndTs.Time
			ev.EndedAt = &end
		}
		return ev, true
	default:
		return alert.Event{}, false
	}
}

// sleepCtx blocks for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
