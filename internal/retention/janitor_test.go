package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tally/internal/config"
	"tally/internal/history"
	"tally/internal/storage"
	"tally/internal/todo"
)

func TestParseSchedule_Valid(t *testing.T) {
	expr, err := ParseSchedule("0 3 * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if expr.String() != "0 3 * * *" {
		t.Fatalf("expected raw %q, got %q", "0 3 * * *", expr.String())
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	_, err := ParseSchedule("not a cron")
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestSchedule_Next(t *testing.T) {
	expr, err := ParseSchedule("0 3 * * *") // every day at 3am
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	base := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	next := expr.Next(base)

	expected := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Fatalf("expected next %v, got %v", expected, next)
	}
}

func TestSchedule_Due(t *testing.T) {
	expr, err := ParseSchedule("0 3 * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	if !expr.Due(time.Date(2026, 1, 1, 3, 0, 30, 0, time.UTC)) {
		t.Error("expected match at 03:00")
	}
	if expr.Due(time.Date(2026, 1, 1, 3, 1, 0, 0, time.UTC)) {
		t.Error("expected no match at 03:01")
	}
}

func TestJanitor_RunOnce(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	taskStore := todo.NewSQLStore(db)
	histStore := history.NewSQLStore(db)
	ctx := context.Background()

	// One old completed task, one fresh pending task.
	old := &todo.Task{ID: todo.GenerateTaskID(), UserID: "u1", Title: "old chore"}
	if err := taskStore.Create(ctx, old); err != nil {
		t.Fatal(err)
	}
	if _, err := taskStore.Complete(ctx, "u1", old.ID, ""); err != nil {
		t.Fatal(err)
	}
	fresh := &todo.Task{ID: todo.GenerateTaskID(), UserID: "u1", Title: "fresh chore"}
	if err := taskStore.Create(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	cfg := config.RetentionConfig{
		Schedule:            "0 3 * * *",
		CompletedTaskTTL:    config.Duration(time.Hour),
		IdleConversationTTL: config.Duration(time.Hour),
	}
	j, err := NewJanitor(cfg, taskStore, histStore, nil)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}

	// Pretend the completed task aged out.
	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if err := j.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, err := taskStore.Get(ctx, "u1", old.ID); err != todo.ErrNotFound {
		t.Fatalf("expected old task purged, got err %v", err)
	}
	if _, err := taskStore.Get(ctx, "u1", fresh.ID); err != nil {
		t.Fatalf("expected fresh task kept, got err %v", err)
	}
}

func TestJanitor_BadSchedule(t *testing.T) {
	cfg := config.RetentionConfig{Schedule: "nope"}
	if _, err := NewJanitor(cfg, nil, nil, nil); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
