package history

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tally/internal/storage"
)

func testStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db)
}

func TestAppendAssignsPositions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg := &Message{Role: RoleUser, Content: fmt.Sprintf("message %d", i)}
		if err := s.Append(ctx, "u1", "conv_1", msg); err != nil {
			t.Fatal(err)
		}
		if msg.Position != int64(i) {
			t.Errorf("message %d got position %d", i, msg.Position)
		}
	}

	// Positions are scoped per conversation, not global.
	msg := &Message{Role: RoleUser, Content: "other conversation"}
	if err := s.Append(ctx, "u1", "conv_2", msg); err != nil {
		t.Fatal(err)
	}
	if msg.Position != 1 {
		t.Errorf("new conversation starts at position %d, want 1", msg.Position)
	}
}

func TestLoadRecentWindow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := s.Append(ctx, "u1", "conv_1", &Message{
			Role: RoleUser, Content: fmt.Sprintf("message %d", i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.LoadRecent(ctx, "u1", "conv_1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Content != "message 3" || msgs[2].Content != "message 5" {
		t.Errorf("window = [%q .. %q], want the newest three oldest-first",
			msgs[0].Content, msgs[2].Content)
	}
}

func TestLoadRecentIsScoped(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "u1", "conv_1", &Message{Role: RoleUser, Content: "mine"}); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.LoadRecent(ctx, "u2", "conv_1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("another user sees %d messages, want 0", len(msgs))
	}
}

func TestAppendRoundTripsToolTrace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	in := &Message{
		Role:    RoleAssistant,
		Content: "done",
		ToolCalls: []ToolCall{
			{ID: "call_1", Name: "add_task", Arguments: json.RawMessage(`{"title":"t"}`)},
		},
		ToolResults: []ToolResult{
			{ToolCallID: "call_1", Status: StatusSuccess, Payload: json.RawMessage(`{"ok":true}`)},
		},
	}
	if err := s.Append(ctx, "u1", "conv_1", in); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.LoadRecent(ctx, "u1", "conv_1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	got := msgs[0]
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "add_task" {
		t.Errorf("ToolCalls = %+v", got.ToolCalls)
	}
	if len(got.ToolResults) != 1 || got.ToolResults[0].Status != StatusSuccess {
		t.Errorf("ToolResults = %+v", got.ToolResults)
	}
}

func TestConcurrentAppendsKeepDistinctPositions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	msgs := make([]*Message, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msgs[i] = &Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)}
			if err := s.Append(ctx, "u1", "conv_1", msgs[i]); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if seen[m.Position] {
			t.Fatalf("position %d assigned twice", m.Position)
		}
		seen[m.Position] = true
	}
	if len(seen) != n {
		t.Errorf("assigned %d distinct positions, want %d", len(seen), n)
	}
}

func TestPurgeIdleBefore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	old := time.Now().Add(-100 * 24 * time.Hour).UTC()
	if err := s.Append(ctx, "u1", "conv_old", &Message{
		Role: RoleUser, Content: "stale", CreatedAt: old,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "u1", "conv_new", &Message{
		Role: RoleUser, Content: "fresh",
	}); err != nil {
		t.Fatal(err)
	}

	n, err := s.PurgeIdleBefore(ctx, time.Now().Add(-90*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d messages, want 1", n)
	}

	remaining, err := s.LoadRecent(ctx, "u1", "conv_new", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Errorf("fresh conversation lost: %d messages", len(remaining))
	}
}
