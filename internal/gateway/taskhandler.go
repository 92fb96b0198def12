package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tally/internal/todo"
)

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Category    string     `json:"category,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if len(title) > todo.MaxTitleLen {
		writeError(w, http.StatusBadRequest, "title too long")
		return
	}
	if req.Priority != "" && !todo.ValidPriority(todo.Priority(req.Priority)) {
		writeError(w, http.StatusBadRequest, "priority must be low, medium, or high")
		return
	}
	if len(req.Category) > todo.MaxCategoryLen {
		writeError(w, http.StatusBadRequest, "category too long")
		return
	}

	task := &todo.Task{
		ID:          todo.GenerateTaskID(),
		UserID:      UserID(r.Context()),
		Title:       title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Priority:    todo.Priority(req.Priority),
		Category:    req.Category,
	}

	if err := s.tasks.Create(r.Context(), task); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := todo.ListFilter{
		Status:   todo.StatusFilter(q.Get("status")),
		Priority: todo.Priority(q.Get("priority")),
		Category: q.Get("category"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	list, err := s.tasks.List(r.Context(), UserID(r.Context()), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []*todo.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var upd todo.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if upd.Empty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	if upd.Title != nil {
		trimmed := strings.TrimSpace(*upd.Title)
		if trimmed == "" {
			writeError(w, http.StatusBadRequest, "title cannot be blank")
			return
		}
		if len(trimmed) > todo.MaxTitleLen {
			writeError(w, http.StatusBadRequest, "title too long")
			return
		}
		upd.Title = &trimmed
	}
	if upd.Priority != nil && !todo.ValidPriority(*upd.Priority) {
		writeError(w, http.StatusBadRequest, "priority must be low, medium, or high")
		return
	}

	task, err := s.tasks.Update(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	task, err := s.tasks.Complete(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
