package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tally/internal/storage"
	"tally/internal/todo"
)

// NewTaskRegistry builds the standard task tool catalog backed by store.
func NewTaskRegistry(store todo.Store) *Registry {
	r := NewRegistry()
	t := &taskTools{store: store}

	r.Register(&ToolSpec{
		Name:        "add_task",
		Description: "Creates a new task in the user's task list with the given properties",
		Parameters: map[string]ParamSpec{
			"title":       {Type: "string", Description: "The title of the task", Required: true},
			"description": {Type: "string", Description: "Detailed description of the task"},
			"due_date":    {Type: "string", Description: "Due date in ISO 8601 format"},
			"priority":    {Type: "string", Description: "Priority level", Enum: []string{"low", "medium", "high"}},
			"category":    {Type: "string", Description: "Category for organizing tasks"},
		},
	}, t.addTask)

	r.Register(&ToolSpec{
		Name:        "list_tasks",
		Description: "Retrieves the user's tasks, with optional filtering",
		Parameters: map[string]ParamSpec{
			"status":   {Type: "string", Description: "Filter by completion status", Enum: []string{"all", "pending", "completed"}},
			"priority": {Type: "string", Description: "Filter by priority", Enum: []string{"low", "medium", "high"}},
			"category": {Type: "string", Description: "Filter by category"},
			"limit":    {Type: "integer", Description: "Maximum number of tasks to return (max 100)"},
			"offset":   {Type: "integer", Description: "Number of tasks to skip for pagination"},
		},
	}, t.listTasks)

	r.Register(&ToolSpec{
		Name:        "complete_task",
		Description: "Marks a specific task as completed",
		Parameters: map[string]ParamSpec{
			"task_id":          {Type: "string", Description: "The identifier of the task to complete"},
			"title":            {Type: "string", Description: "Title of the task to complete, used when the id is not known"},
			"completion_notes": {Type: "string", Description: "Additional notes about task completion"},
		},
	}, t.completeTask)

	r.Register(&ToolSpec{
		Name:        "delete_task",
		Description: "Permanently removes a task from the user's task list",
		Destructive: true,
		Parameters: map[string]ParamSpec{
			"task_id": {Type: "string", Description: "The identifier of the task to delete"},
			"title":   {Type: "string", Description: "Title of the task to delete, used when the id is not known"},
		},
	}, t.deleteTask)

	r.Register(&ToolSpec{
		Name:        "update_task",
		Description: "Modifies properties of an existing task",
		Parameters: map[string]ParamSpec{
			"task_id":     {Type: "string", Description: "The identifier of the task to update", Required: true},
			"title":       {Type: "string", Description: "New title for the task"},
			"description": {Type: "string", Description: "New description for the task"},
			"due_date":    {Type: "string", Description: "New due date in ISO 8601 format"},
			"priority":    {Type: "string", Description: "New priority level", Enum: []string{"low", "medium", "high"}},
			"category":    {Type: "string", Description: "New category for the task"},
			"completed":   {Type: "boolean", Description: "New completion status"},
		},
	}, t.updateTask)

	return r
}

type taskTools struct {
	store todo.Store
}

// storeFailure maps store errors to outcome kinds. A task owned by someone
// else surfaces as not_found, never as a permission error.
func storeFailure(err error) Outcome {
	switch {
	case errors.Is(err, todo.ErrNotFound):
		return Failure(FailNotFound, "task not found")
	case errors.Is(err, todo.ErrAlreadyCompleted):
		return Failure(FailAlreadyCompleted, "task is already completed")
	case errors.Is(err, storage.ErrUnavailable):
		return Failure(FailStorage, "storage unavailable")
	default:
		return Failure(FailStorage, err.Error())
	}
}

type addTaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

func (t *taskTools) addTask(ctx context.Context, ownerID string, args json.RawMessage) Outcome {
	var in addTaskInput
	if err := json.Unmarshal(args, &in); err != nil {
		return Failure(FailInvalidInput, "parse arguments: "+err.Error())
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Failure(FailInvalidInput, "title must not be empty")
	}
	if len(title) > todo.MaxTitleLen {
		return Failure(FailInvalidInput, fmt.Sprintf("title exceeds %d characters", todo.MaxTitleLen))
	}
	if len(in.Description) > todo.MaxDescriptionLen {
		return Failure(FailInvalidInput, fmt.Sprintf("description exceeds %d characters", todo.MaxDescriptionLen))
	}
	if len(in.Category) > todo.MaxCategoryLen {
		return Failure(FailInvalidInput, fmt.Sprintf("category exceeds %d characters", todo.MaxCategoryLen))
	}

	task := &todo.Task{
		UserID:      ownerID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Priority:    todo.PriorityMedium,
		Category:    strings.TrimSpace(in.Category),
	}
	if in.Priority != "" {
		task.Priority = todo.Priority(in.Priority)
	}
	if in.DueDate != "" {
		due, err := parseDueDate(in.DueDate)
		if err != nil {
			return Failure(FailInvalidInput, err.Error())
		}
		task.DueDate = &due
	}

	if err := t.store.Create(ctx, task); err != nil {
		return storeFailure(err)
	}
	return Success(map[string]any{
		"message": fmt.Sprintf("Task %q added", task.Title),
		"task":    task,
	})
}

type listTasksInput struct {
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Category string `json:"category"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

func (t *taskTools) listTasks(ctx context.Context, ownerID string, args json.RawMessage) Outcome {
	var in listTasksInput
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return Failure(FailInvalidInput, "parse arguments: "+err.Error())
		}
	}

	filter := todo.ListFilter{
		Status:   todo.StatusFilter(in.Status),
		Priority: todo.Priority(in.Priority),
		Category: in.Category,
		Limit:    in.Limit,
		Offset:   in.Offset,
	}
	if filter.Status == "" {
		filter.Status = todo.StatusAll
	}

	tasks, err := t.store.List(ctx, ownerID, filter)
	if err != nil {
		return storeFailure(err)
	}
	// An empty result set is a success, not an error.
	return Success(map[string]any{
		"total_count": len(tasks),
		"tasks":       tasks,
	})
}

// findTarget resolves which task a call is about. An explicit id wins; with
// only a title the open tasks are searched, and anything but exactly one
// match fails rather than guessing.
func (t *taskTools) findTarget(ctx context.Context, ownerID, taskID, title string) (string, *Outcome) {
	if taskID != "" {
		return taskID, nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		out := Failure(FailInvalidInput, "task_id or title is required")
		return "", &out
	}
	matches, err := t.store.FindByTitle(ctx, ownerID, title)
	if err != nil {
		out := storeFailure(err)
		return "", &out
	}
	switch len(matches) {
	case 1:
		return matches[0].ID, nil
	case 0:
		out := Failure(FailNotFound, fmt.Sprintf("no open task matching %q", title))
		return "", &out
	default:
		out := Failure(FailInvalidInput, fmt.Sprintf("%q matches %d tasks", title, len(matches)))
		return "", &out
	}
}

type completeTaskInput struct {
	TaskID          string `json:"task_id"`
	Title           string `json:"title"`
	CompletionNotes string `json:"completion_notes"`
}

func (t *taskTools) completeTask(ctx context.Context, ownerID string, args json.RawMessage) Outcome {
	var in completeTaskInput
	if err := json.Unmarshal(args, &in); err != nil {
		return Failure(FailInvalidInput, "parse arguments: "+err.Error())
	}

	id, fail := t.findTarget(ctx, ownerID, in.TaskID, in.Title)
	if fail != nil {
		return *fail
	}
	task, err := t.store.Complete(ctx, ownerID, id, in.CompletionNotes)
	if err != nil {
		return storeFailure(err)
	}
	return Success(map[string]any{
		"message": fmt.Sprintf("Task %q marked as completed", task.Title),
		"task":    task,
	})
}

type deleteTaskInput struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
}

func (t *taskTools) deleteTask(ctx context.Context, ownerID string, args json.RawMessage) Outcome {
	var in deleteTaskInput
	if err := json.Unmarshal(args, &in); err != nil {
		return Failure(FailInvalidInput, "parse arguments: "+err.Error())
	}

	id, fail := t.findTarget(ctx, ownerID, in.TaskID, in.Title)
	if fail != nil {
		return *fail
	}
	// Fetch first so the reply can name what was deleted.
	task, err := t.store.Get(ctx, ownerID, id)
	if err != nil {
		return storeFailure(err)
	}
	if err := t.store.Delete(ctx, ownerID, id); err != nil {
		return storeFailure(err)
	}
	return Success(map[string]any{
		"message": fmt.Sprintf("Task %q deleted", task.Title),
		"task_id": task.ID,
		"title":   task.Title,
	})
}

type updateTaskInput struct {
	TaskID      string  `json:"task_id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
	Priority    *string `json:"priority"`
	Category    *string `json:"category"`
	Completed   *bool   `json:"completed"`
}

func (t *taskTools) updateTask(ctx context.Context, ownerID string, args json.RawMessage) Outcome {
	var in updateTaskInput
	if err := json.Unmarshal(args, &in); err != nil {
		return Failure(FailInvalidInput, "parse arguments: "+err.Error())
	}

	upd := todo.Update{
		Description: in.Description,
		Category:    in.Category,
		Completed:   in.Completed,
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return Failure(FailInvalidInput, "title must not be empty")
		}
		upd.Title = &title
	}
	if in.Priority != nil {
		p := todo.Priority(*in.Priority)
		upd.Priority = &p
	}
	if in.DueDate != nil {
		due, err := parseDueDate(*in.DueDate)
		if err != nil {
			return Failure(FailInvalidInput, err.Error())
		}
		upd.DueDate = &due
	}
	if upd.Empty() {
		return Failure(FailInvalidInput, "update requires at least one field")
	}

	task, err := t.store.Update(ctx, ownerID, in.TaskID, upd)
	if err != nil {
		return storeFailure(err)
	}
	return Success(map[string]any{
		"message": fmt.Sprintf("Task %q updated", task.Title),
		"task":    task,
	})
}

// parseDueDate accepts RFC 3339 timestamps or bare dates.
func parseDueDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("due_date %q is not an ISO 8601 date", s)
}
