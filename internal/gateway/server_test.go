package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"tally/internal/config"
	"tally/internal/events"
	"tally/internal/history"
	"tally/internal/intent"
	"tally/internal/orchestrator"
	"tally/internal/storage"
	"tally/internal/todo"
	"tally/internal/tools"
)

// waitForEvents polls the bus history until at least n events are present.
func waitForEvents(bus *events.Bus, n int) {
	for i := 0; i < 200; i++ {
		if len(bus.History(100)) >= n {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
}

func newTestServer(t *testing.T, tokens map[string]string) *Server {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus(64)
	t.Cleanup(func() { bus.Close() })

	taskStore := todo.NewSQLStore(db)
	histStore := history.NewSQLStore(db)
	registry := tools.NewTaskRegistry(taskStore)
	orch := orchestrator.New(histStore, registry, intent.NewRuleResolver(), bus, orchestrator.Options{})

	cfg := config.ServerConfig{Host: "localhost", Port: 0, AuthTokens: tokens}
	srv := NewServer(cfg, orch, histStore, taskStore, bus)
	t.Cleanup(srv.hub.Close)
	return srv
}

func doRequest(srv *Server, method, path, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(srv, http.MethodGet, "/api/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status %q, got %q", "ok", body["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(srv, http.MethodGet, "/api/tasks", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(t, map[string]string{"secret-token": "alice"})

	// No token
	w := doRequest(srv, http.MethodGet, "/api/tasks", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", w.Code)
	}

	// X-User-ID is ignored when tokens are configured
	w = doRequest(srv, http.MethodGet, "/api/tasks", "alice", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 with header only, got %d", w.Code)
	}

	// Wrong token
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 with wrong token, got %d", rec.Code)
	}

	// Valid token
	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 with valid token, got %d", rec.Code)
	}
}

func TestTaskCRUD(t *testing.T) {
	srv := newTestServer(t, nil)

	// Create
	w := doRequest(srv, http.MethodPost, "/api/tasks", "alice", `{"title":"buy milk","priority":"high"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var created todo.Task
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.Title != "buy milk" || created.Priority != todo.PriorityHigh {
		t.Fatalf("unexpected task: %+v", created)
	}

	// List
	w = doRequest(srv, http.MethodGet, "/api/tasks", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected status 200, got %d", w.Code)
	}
	var list []todo.Task
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 task, got %d", len(list))
	}

	// Get
	w = doRequest(srv, http.MethodGet, "/api/tasks/"+created.ID, "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected status 200, got %d", w.Code)
	}

	// Update
	w = doRequest(srv, http.MethodPatch, "/api/tasks/"+created.ID, "alice", `{"priority":"low"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated todo.Task
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if updated.Priority != todo.PriorityLow {
		t.Fatalf("expected priority low, got %s", updated.Priority)
	}

	// Complete
	w = doRequest(srv, http.MethodPost, "/api/tasks/"+created.ID+"/complete", "alice", `{"notes":"done at the store"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	// Complete again conflicts
	w = doRequest(srv, http.MethodPost, "/api/tasks/"+created.ID+"/complete", "alice", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("re-complete: expected status 409, got %d", w.Code)
	}

	// Delete
	w = doRequest(srv, http.MethodDelete, "/api/tasks/"+created.ID, "alice", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected status 204, got %d", w.Code)
	}

	// Gone
	w = doRequest(srv, http.MethodGet, "/api/tasks/"+created.ID, "alice", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get deleted: expected status 404, got %d", w.Code)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(srv, http.MethodPost, "/api/tasks", "alice", `{"title":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank title: expected status 400, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodPost, "/api/tasks", "alice", `{"title":"x","priority":"urgent"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad priority: expected status 400, got %d", w.Code)
	}
}

func TestCrossUserIsolation(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(srv, http.MethodPost, "/api/tasks", "alice", `{"title":"private"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected status 201, got %d", w.Code)
	}
	var created todo.Task
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	w = doRequest(srv, http.MethodGet, "/api/tasks/"+created.ID, "bob", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-user get: expected status 404, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodGet, "/api/tasks", "bob", "")
	var list []todo.Task
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list for bob, got %d", len(list))
	}
}

func TestHandleChat(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(srv, http.MethodPost, "/api/chat", "alice", `{"content":"add a task to buy milk"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("chat: expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp orchestrator.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ConversationID == "" {
		t.Fatal("expected a conversation id")
	}
	if resp.Status != orchestrator.StatusCompleted {
		t.Fatalf("expected status completed, got %s", resp.Status)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "add_task" {
		t.Fatalf("expected one add_task call, got %+v", resp.ToolCalls)
	}

	// The turn is persisted and readable back
	w = doRequest(srv, http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", resp.ConversationID), "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("messages: expected status 200, got %d", w.Code)
	}
	var msgs []history.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != history.RoleUser || msgs[1].Role != history.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestHandleChat_EmptyContent(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(srv, http.MethodPost, "/api/chat", "alice", `{"content":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestHandleEvents_LimitParam(t *testing.T) {
	srv := newTestServer(t, nil)

	for i := 0; i < 10; i++ {
		srv.bus.Publish(events.NewEvent(events.EventToolCall, events.SourceGateway, map[string]any{"i": i}))
	}
	waitForEvents(srv.bus, 10)

	w := doRequest(srv, http.MethodGet, "/api/events?limit=5", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 5 {
		t.Fatalf("expected 5 events with limit=5, got %d", len(body))
	}
}

func TestHandleChat_StorageGone(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	bus := events.NewBus(16)
	t.Cleanup(func() { bus.Close() })

	taskStore := todo.NewSQLStore(db)
	histStore := history.NewSQLStore(db)
	orch := orchestrator.New(histStore, tools.NewTaskRegistry(taskStore), intent.NewRuleResolver(), bus, orchestrator.Options{})
	srv := NewServer(config.ServerConfig{Host: "localhost"}, orch, histStore, taskStore, bus)
	t.Cleanup(srv.hub.Close)

	db.Close()

	w := doRequest(srv, http.MethodPost, "/api/chat", "alice", `{"content":"add a task to buy milk"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 with storage gone, got %d", w.Code)
	}
}

func TestWriteStoreErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{todo.ErrNotFound, http.StatusNotFound},
		{todo.ErrAlreadyCompleted, http.StatusConflict},
		{storage.ErrUnavailable, http.StatusInternalServerError},
		{history.ErrUnavailable, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		writeStoreError(w, fmt.Errorf("op: %w", tc.err))
		if w.Code != tc.want {
			t.Errorf("status for %v = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}
