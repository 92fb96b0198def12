// Package retention purges aged-out tasks and idle conversations on a
// cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/config"
	"tally/internal/events"
	"tally/internal/history"
	"tally/internal/todo"
)

// Janitor deletes completed tasks and idle conversations past their TTL.
type Janitor struct {
	tasks   todo.Store
	convs   history.Store
	bus     *events.Bus
	sched   *Schedule
	taskTTL time.Duration
	convTTL time.Duration
	now     func() time.Time
	done    chan struct{}
}

// NewJanitor creates a janitor from retention config.
func NewJanitor(cfg config.RetentionConfig, tasks todo.Store, convs history.Store, bus *events.Bus) (*Janitor, error) {
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("retention schedule: %w", err)
	}
	return &Janitor{
		tasks:   tasks,
		convs:   convs,
		bus:     bus,
		sched:   sched,
		taskTTL: cfg.CompletedTaskTTL.Duration(),
		convTTL: cfg.IdleConversationTTL.Duration(),
		now:     time.Now,
		done:    make(chan struct{}),
	}, nil
}

// Start begins the schedule loop.
func (j *Janitor) Start() {
	slog.Info("retention janitor started", "schedule", j.sched.String(),
		"task_ttl", j.taskTTL, "conversation_ttl", j.convTTL)
	go j.loop()
}

// Stop halts the janitor.
func (j *Janitor) Stop() {
	close(j.done)
	slog.Info("retention janitor stopped")
}

func (j *Janitor) loop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case now := <-ticker.C:
			if j.sched.Due(now) {
				if err := j.RunOnce(context.Background()); err != nil {
					slog.Error("retention run failed", "error", err)
				}
			}
		}
	}
}

// RunOnce performs a single purge pass.
func (j *Janitor) RunOnce(ctx context.Context) error {
	now := j.now()

	tasksPurged, err := j.tasks.PurgeCompletedBefore(ctx, now.Add(-j.taskTTL))
	if err != nil {
		return fmt.Errorf("purge tasks: %w", err)
	}

	msgsPurged, err := j.convs.PurgeIdleBefore(ctx, now.Add(-j.convTTL))
	if err != nil {
		return fmt.Errorf("purge conversations: %w", err)
	}

	slog.Info("retention pass complete", "tasks", tasksPurged, "messages", msgsPurged)

	if j.bus != nil {
		j.bus.Publish(events.NewEvent(events.EventRetentionPurged, events.SourceJanitor, map[string]any{
			"tasks_purged":    tasksPurged,
			"messages_purged": msgsPurged,
		}))
	}
	return nil
}
