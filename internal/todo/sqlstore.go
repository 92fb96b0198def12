package todo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tally/internal/storage"
)

// SQLStore is the SQLite-backed task store. All queries filter by owner id.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore on an opened database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const taskColumns = `id, user_id, title, description, due_date, priority, category,
	completed, completion_notes, completed_at, created_at, updated_at`

// Create inserts a new task, assigning ID and timestamps if unset.
func (s *SQLStore) Create(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, encodeTime(t.DueDate),
		string(t.Priority), t.Category, boolToInt(t.Completed),
		t.CompletionNotes, encodeTime(t.CompletedAt),
		t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: insert task: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Get returns the task with the given id if it belongs to ownerID.
func (s *SQLStore) Get(ctx context.Context, ownerID, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, ownerID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get task: %v", storage.ErrUnavailable, err)
	}
	return t, nil
}

// List returns the owner's tasks matching the filter, newest first.
func (s *SQLStore) List(ctx context.Context, ownerID string, filter ListFilter) ([]*Task, error) {
	var (
		conds = []string{"user_id = ?"}
		args  = []any{ownerID}
	)

	switch filter.Status {
	case StatusPending:
		conds = append(conds, "completed = 0")
	case StatusCompleted:
		conds = append(conds, "completed = 1")
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	q := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task: %v", storage.ErrUnavailable, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list tasks: %v", storage.ErrUnavailable, err)
	}
	return tasks, nil
}

// Update applies a partial mutation and returns the updated task.
func (s *SQLStore) Update(ctx context.Context, ownerID, id string, upd Update) (*Task, error) {
	t, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.DueDate != nil {
		t.DueDate = upd.DueDate
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.Category != nil {
		t.Category = *upd.Category
	}
	if upd.Completed != nil {
		t.Completed = *upd.Completed
		if t.Completed {
			now := time.Now().UTC()
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
			t.CompletionNotes = ""
		}
	}
	t.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, due_date = ?, priority = ?,
		 category = ?, completed = ?, completion_notes = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		t.Title, t.Description, encodeTime(t.DueDate), string(t.Priority),
		t.Category, boolToInt(t.Completed), t.CompletionNotes,
		encodeTime(t.CompletedAt), t.UpdatedAt.Format(time.RFC3339Nano),
		id, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: update task: %v", storage.ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return t, nil
}

// Complete marks a task as done. Completing an already-completed task is an
// error, not a silent success.
func (s *SQLStore) Complete(ctx context.Context, ownerID, id, notes string) (*Task, error) {
	t, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if t.Completed {
		return nil, ErrAlreadyCompleted
	}

	now := time.Now().UTC()
	t.Completed = true
	t.CompletedAt = &now
	t.CompletionNotes = notes
	t.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = 1, completion_notes = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		notes, encodeTime(t.CompletedAt), now.Format(time.RFC3339Nano), id, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: complete task: %v", storage.ErrUnavailable, err)
	}
	return t, nil
}

// Delete removes the task if it belongs to ownerID.
func (s *SQLStore) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("%w: delete task: %v", storage.ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByTitle returns pending tasks whose title contains fragment,
// case-insensitively, oldest first.
func (s *SQLStore) FindByTitle(ctx context.Context, ownerID, fragment string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND completed = 0 AND instr(lower(title), lower(?)) > 0
		 ORDER BY created_at ASC`,
		ownerID, fragment)
	if err != nil {
		return nil, fmt.Errorf("%w: find by title: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task: %v", storage.ErrUnavailable, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// PurgeCompletedBefore deletes completed tasks whose completion predates cutoff.
func (s *SQLStore) PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE completed = 1 AND completed_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("%w: purge tasks: %v", storage.ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*Task, error) {
	var (
		t                               Task
		due, completedAt                sql.NullString
		created, updated, priority      string
		completed                       int
	)
	err := r.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &due, &priority,
		&t.Category, &completed, &t.CompletionNotes, &completedAt, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.Completed = completed != 0
	t.DueDate = decodeTime(due)
	t.CompletedAt = decodeTime(completedAt)
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		t.UpdatedAt = ts
	}
	return &t, nil
}

func encodeTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLStore)(nil)
