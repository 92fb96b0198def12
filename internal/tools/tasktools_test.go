package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"tally/internal/storage"
	"tally/internal/todo"
)

func taskRegistry(t *testing.T) (*Registry, todo.Store) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	store := todo.NewSQLStore(db)
	return NewTaskRegistry(store), store
}

func payload(t *testing.T, out Outcome) map[string]any {
	t.Helper()
	if !out.OK {
		t.Fatalf("outcome failed: %s (%s)", out.Kind, out.Detail)
	}
	var m map[string]any
	if err := json.Unmarshal(out.Payload, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestAddTask(t *testing.T) {
	r, store := taskRegistry(t)
	ctx := context.Background()

	out := r.Invoke(ctx, "add_task",
		json.RawMessage(`{"title":"  buy groceries  ","due_date":"2026-04-01","priority":"high"}`), "u1")
	body := payload(t, out)

	task := body["task"].(map[string]any)
	if task["title"] != "buy groceries" {
		t.Errorf("title = %v, want trimmed", task["title"])
	}
	if task["priority"] != "high" {
		t.Errorf("priority = %v", task["priority"])
	}

	stored, err := store.Get(ctx, "u1", task["id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if stored.DueDate == nil || stored.DueDate.Format("2006-01-02") != "2026-04-01" {
		t.Errorf("DueDate = %v", stored.DueDate)
	}
}

func TestAddTaskDefaultsPriority(t *testing.T) {
	r, _ := taskRegistry(t)
	out := r.Invoke(context.Background(), "add_task", json.RawMessage(`{"title":"t"}`), "u1")
	body := payload(t, out)
	if body["task"].(map[string]any)["priority"] != "medium" {
		t.Errorf("priority = %v, want medium", body["task"].(map[string]any)["priority"])
	}
}

func TestAddTaskRejectsBlankTitle(t *testing.T) {
	r, _ := taskRegistry(t)
	out := r.Invoke(context.Background(), "add_task", json.RawMessage(`{"title":"   "}`), "u1")
	if out.OK || out.Kind != FailInvalidInput {
		t.Errorf("outcome = %+v, want invalid_input", out)
	}
}

func TestAddTaskRejectsOverlongTitle(t *testing.T) {
	r, _ := taskRegistry(t)
	long := strings.Repeat("x", 300)
	out := r.Invoke(context.Background(), "add_task",
		json.RawMessage(`{"title":"`+long+`"}`), "u1")
	if out.OK || out.Kind != FailInvalidInput {
		t.Errorf("outcome = %+v, want invalid_input", out)
	}
}

func TestListTasksEmptyIsSuccess(t *testing.T) {
	r, _ := taskRegistry(t)
	out := r.Invoke(context.Background(), "list_tasks", json.RawMessage(`{}`), "u1")
	body := payload(t, out)
	if body["total_count"] != float64(0) {
		t.Errorf("total_count = %v, want 0", body["total_count"])
	}
}

func TestListTasksScopedToOwner(t *testing.T) {
	r, _ := taskRegistry(t)
	ctx := context.Background()

	payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"mine"}`), "u1"))
	payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"theirs"}`), "u2"))

	body := payload(t, r.Invoke(ctx, "list_tasks", json.RawMessage(`{}`), "u1"))
	if body["total_count"] != float64(1) {
		t.Errorf("total_count = %v, want 1", body["total_count"])
	}
}

func TestCompleteTaskLifecycle(t *testing.T) {
	r, _ := taskRegistry(t)
	ctx := context.Background()

	body := payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"t"}`), "u1"))
	id := body["task"].(map[string]any)["id"].(string)

	done := payload(t, r.Invoke(ctx, "complete_task",
		json.RawMessage(`{"task_id":"`+id+`","completion_notes":"all set"}`), "u1"))
	if done["task"].(map[string]any)["completed"] != true {
		t.Error("task should be completed")
	}

	again := r.Invoke(ctx, "complete_task", json.RawMessage(`{"task_id":"`+id+`"}`), "u1")
	if again.OK || again.Kind != FailAlreadyCompleted {
		t.Errorf("second completion = %+v, want already_completed", again)
	}
}

func TestCompleteTaskNotFound(t *testing.T) {
	r, _ := taskRegistry(t)
	out := r.Invoke(context.Background(), "complete_task",
		json.RawMessage(`{"task_id":"task_ffffffff"}`), "u1")
	if out.OK || out.Kind != FailNotFound {
		t.Errorf("outcome = %+v, want not_found", out)
	}
}

func TestCompleteTaskByTitle(t *testing.T) {
	r, store := taskRegistry(t)
	ctx := context.Background()

	body := payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"Water the plants"}`), "u1"))
	id := body["task"].(map[string]any)["id"].(string)

	done := payload(t, r.Invoke(ctx, "complete_task", json.RawMessage(`{"title":"water"}`), "u1"))
	if done["task"].(map[string]any)["id"] != id {
		t.Errorf("completed %v, want %s", done["task"].(map[string]any)["id"], id)
	}

	stored, err := store.Get(ctx, "u1", id)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Completed {
		t.Error("task should be completed")
	}
}

func TestDeleteTaskByTitle(t *testing.T) {
	r, _ := taskRegistry(t)
	ctx := context.Background()

	payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"old report"}`), "u1"))

	deleted := payload(t, r.Invoke(ctx, "delete_task", json.RawMessage(`{"title":"report"}`), "u1"))
	if deleted["title"] != "old report" {
		t.Errorf("title = %v", deleted["title"])
	}

	body := payload(t, r.Invoke(ctx, "list_tasks", json.RawMessage(`{}`), "u1"))
	if body["total_count"] != float64(0) {
		t.Errorf("total_count = %v, want 0", body["total_count"])
	}
}

func TestTargetByTitleAmbiguousOrMissing(t *testing.T) {
	r, _ := taskRegistry(t)
	ctx := context.Background()

	payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"call mom"}`), "u1"))
	payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"call the bank"}`), "u1"))

	out := r.Invoke(ctx, "complete_task", json.RawMessage(`{"title":"call"}`), "u1")
	if out.OK || out.Kind != FailInvalidInput {
		t.Errorf("ambiguous title = %+v, want invalid_input", out)
	}

	out = r.Invoke(ctx, "delete_task", json.RawMessage(`{"title":"groceries"}`), "u1")
	if out.OK || out.Kind != FailNotFound {
		t.Errorf("unmatched title = %+v, want not_found", out)
	}

	out = r.Invoke(ctx, "delete_task", json.RawMessage(`{}`), "u1")
	if out.OK || out.Kind != FailInvalidInput {
		t.Errorf("no id and no title = %+v, want invalid_input", out)
	}
}

func TestDeleteTaskNamesTheTask(t *testing.T) {
	r, _ := taskRegistry(t)
	ctx := context.Background()

	body := payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"old report"}`), "u1"))
	id := body["task"].(map[string]any)["id"].(string)

	deleted := payload(t, r.Invoke(ctx, "delete_task", json.RawMessage(`{"task_id":"`+id+`"}`), "u1"))
	if deleted["title"] != "old report" {
		t.Errorf("title = %v", deleted["title"])
	}

	out := r.Invoke(ctx, "delete_task", json.RawMessage(`{"task_id":"`+id+`"}`), "u1")
	if out.OK || out.Kind != FailNotFound {
		t.Errorf("second delete = %+v, want not_found", out)
	}
}

func TestDeleteTaskCrossUser(t *testing.T) {
	r, _ := taskRegistry(t)
	ctx := context.Background()

	body := payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"secret"}`), "u1"))
	id := body["task"].(map[string]any)["id"].(string)

	out := r.Invoke(ctx, "delete_task", json.RawMessage(`{"task_id":"`+id+`"}`), "u2")
	if out.OK || out.Kind != FailNotFound {
		t.Errorf("cross-user delete = %+v, want not_found", out)
	}
}

func TestUpdateTask(t *testing.T) {
	r, _ := taskRegistry(t)
	ctx := context.Background()

	body := payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"draft"}`), "u1"))
	id := body["task"].(map[string]any)["id"].(string)

	updated := payload(t, r.Invoke(ctx, "update_task",
		json.RawMessage(`{"task_id":"`+id+`","title":"final","priority":"low"}`), "u1"))
	task := updated["task"].(map[string]any)
	if task["title"] != "final" || task["priority"] != "low" {
		t.Errorf("task = %+v", task)
	}
}

func TestUpdateTaskRejectsEmptyUpdate(t *testing.T) {
	r, _ := taskRegistry(t)
	ctx := context.Background()

	body := payload(t, r.Invoke(ctx, "add_task", json.RawMessage(`{"title":"t"}`), "u1"))
	id := body["task"].(map[string]any)["id"].(string)

	out := r.Invoke(ctx, "update_task", json.RawMessage(`{"task_id":"`+id+`"}`), "u1")
	if out.OK || out.Kind != FailInvalidInput {
		t.Errorf("outcome = %+v, want invalid_input", out)
	}
}
