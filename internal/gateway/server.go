package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tally/internal/config"
	"tally/internal/events"
	"tally/internal/gateway/ws"
	"tally/internal/history"
	"tally/internal/orchestrator"
	"tally/internal/storage"
	"tally/internal/todo"
)

// Server is the Tally gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	orch       *orchestrator.Orchestrator
	history    history.Store
	tasks      todo.Store
	auth       *Authenticator
}

// NewServer creates a new gateway server.
func NewServer(cfg config.ServerConfig, orch *orchestrator.Orchestrator, hist history.Store, tasks todo.Store, bus *events.Bus) *Server {
	hub := ws.NewHub(bus)

	s := &Server{
		hub:     hub,
		bus:     bus,
		orch:    orch,
		history: hist,
		tasks:   tasks,
		auth:    NewAuthenticator(cfg.AuthTokens),
	}
	hub.SetChatHandler(s)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Post("/api/chat", s.handleChat)
		r.Get("/api/conversations/{id}/messages", s.handleMessages)
		r.Get("/api/events", s.handleEvents)
		r.Get("/api/ws", s.handleWS)

		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/{id}", s.handleGetTask)
			r.Patch("/{id}", s.handleUpdateTask)
			r.Post("/{id}/complete", s.handleCompleteTask)
			r.Delete("/{id}", s.handleDeleteTask)
		})
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: r,
	}

	return s
}

// SetAuthTokens replaces the gateway's bearer-token map, e.g. after a
// config reload.
func (s *Server) SetAuthTokens(tokens map[string]string) {
	s.auth.SetTokens(tokens)
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("Tally gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Chat implements ws.ChatHandler, routing WebSocket chat requests to the
// orchestrator.
func (s *Server) Chat(ctx context.Context, userID, conversationID, content string) (any, error) {
	return s.orch.HandleTurn(ctx, orchestrator.Request{
		UserID:         userID,
		ConversationID: conversationID,
		Content:        content,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, UserID(r.Context()))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.orch.HandleTurn(r.Context(), orchestrator.Request{
		UserID:         UserID(r.Context()),
		ConversationID: req.ConversationID,
		Content:        req.Content,
	})
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrEmptyContent):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, orchestrator.ErrNoIdentity):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, history.ErrUnavailable), errors.Is(err, storage.ErrUnavailable):
			writeError(w, http.StatusInternalServerError, "storage unavailable")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}

	msgs, err := s.history.LoadRecent(r.Context(), UserID(r.Context()), conversationID, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*history.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}

	recent := s.bus.History(limit)

	type eventJSON struct {
		ID             string             `json:"id"`
		ConversationID string             `json:"conversation_id,omitempty"`
		Type           string             `json:"type"`
		Timestamp      string             `json:"timestamp"`
		Source         events.EventSource `json:"source"`
		Payload        map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, len(recent))
	for i, e := range recent {
		result[i] = eventJSON{
			ID:             e.ID,
			ConversationID: e.ConversationID,
			Type:           string(e.Type),
			Timestamp:      e.Timestamp.Format(time.RFC3339Nano),
			Source:         e.Source,
			Payload:        e.Payload,
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, todo.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, todo.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "task already completed")
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, history.ErrUnavailable):
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
