package respond

import (
	"encoding/json"
	"strings"
	"testing"

	"tally/internal/history"
	"tally/internal/intent"
	"tally/internal/tools"
)

func success(t *testing.T, payload any) tools.Outcome {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return tools.Outcome{OK: true, Payload: b}
}

func TestComposeSingleSuccess(t *testing.T) {
	got := Compose([]Executed{{
		Call:    history.ToolCall{Name: "add_task"},
		Outcome: success(t, map[string]any{"message": `Task "buy groceries" added`}),
	}})
	want := `Task "buy groceries" added.`
	if got != want {
		t.Errorf("Compose = %q, want %q", got, want)
	}
}

func TestComposeListing(t *testing.T) {
	got := Compose([]Executed{{
		Call: history.ToolCall{Name: "list_tasks"},
		Outcome: success(t, map[string]any{
			"total_count": 2,
			"tasks": []map[string]any{
				{"id": "task_1", "title": "buy groceries", "priority": "high", "due_date": "2026-03-05T00:00:00Z"},
				{"id": "task_2", "title": "walk the dog", "priority": "medium", "completed": true},
			},
		}),
	}})
	for _, want := range []string{
		"You have 2 tasks:",
		"1. buy groceries (high priority, due 2026-03-05)",
		"2. walk the dog (done)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("listing %q missing %q", got, want)
		}
	}
}

func TestComposeEmptyListing(t *testing.T) {
	got := Compose([]Executed{{
		Call:    history.ToolCall{Name: "list_tasks"},
		Outcome: success(t, map[string]any{"total_count": 0, "tasks": []any{}}),
	}})
	if got != "You have no matching tasks." {
		t.Errorf("Compose = %q", got)
	}
}

func TestComposePartialFailureKeepsOrder(t *testing.T) {
	got := Compose([]Executed{
		{
			Call:    history.ToolCall{Name: "add_task"},
			Outcome: success(t, map[string]any{"message": `Task "buy milk" added`}),
		},
		{
			Call:    history.ToolCall{Name: "complete_task"},
			Outcome: tools.Failure(tools.FailNotFound, "no task with id task_ffffffff"),
		},
	})
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), got)
	}
	if !strings.Contains(lines[0], "added") {
		t.Errorf("line 0 = %q, want the add result first", lines[0])
	}
	if !strings.Contains(lines[1], "couldn't find") {
		t.Errorf("line 1 = %q, want the failure second", lines[1])
	}
}

func TestComposeFailureKinds(t *testing.T) {
	tests := []struct {
		kind tools.FailureKind
		want string
	}{
		{tools.FailNotFound, "couldn't find"},
		{tools.FailAlreadyCompleted, "already"},
		{tools.FailSkippedDependency, "skipped"},
		{tools.FailStorage, "try again"},
	}
	for _, tt := range tests {
		got := Compose([]Executed{{
			Call:    history.ToolCall{Name: "complete_task"},
			Outcome: tools.Failure(tt.kind, ""),
		}})
		if !strings.Contains(got, tt.want) {
			t.Errorf("kind %s: %q missing %q", tt.kind, got, tt.want)
		}
	}
}

func TestComposeClarify(t *testing.T) {
	got := ComposeClarify(intent.Clarify("Which task do you mean?"))
	if got != "Which task do you mean?" {
		t.Errorf("ComposeClarify = %q", got)
	}
	if got := ComposeClarify(intent.Clarify("")); got == "" {
		t.Error("empty question should still produce a prompt")
	}
}

func TestComposeConfirmation(t *testing.T) {
	call := history.ToolCall{
		Name:      "delete_task",
		Arguments: json.RawMessage(`{"task_id":"task_1a2b3c4d","title":"old report"}`),
	}
	got := ComposeConfirmation(call)
	if !strings.Contains(got, "old report") {
		t.Errorf("confirmation %q should name the task", got)
	}
}
