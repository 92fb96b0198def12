package todo

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a task does not exist for the requesting owner.
// A task owned by a different user yields the same error, never the row.
var ErrNotFound = errors.New("task not found")

// StatusFilter selects tasks by completion state.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusPending   StatusFilter = "pending"
	StatusCompleted StatusFilter = "completed"
)

// ListFilter defines criteria for filtering task lists.
type ListFilter struct {
	Status   StatusFilter `json:"status,omitempty"`
	Priority Priority     `json:"priority,omitempty"`
	Category string       `json:"category,omitempty"`
	Limit    int          `json:"limit,omitempty"`
	Offset   int          `json:"offset,omitempty"`
}

// Store defines the owner-scoped persistence interface for tasks.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, ownerID, id string) (*Task, error)
	List(ctx context.Context, ownerID string, filter ListFilter) ([]*Task, error)
	Update(ctx context.Context, ownerID, id string, upd Update) (*Task, error)
	Complete(ctx context.Context, ownerID, id, notes string) (*Task, error)
	Delete(ctx context.Context, ownerID, id string) error
	// FindByTitle returns pending tasks whose title contains the given
	// fragment, case-insensitively. Used for fuzzy references in chat.
	FindByTitle(ctx context.Context, ownerID, fragment string) ([]*Task, error)
	// PurgeCompletedBefore deletes completed tasks older than cutoff and
	// returns the number removed. Used by the retention janitor.
	PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ErrAlreadyCompleted is returned by Complete when the task is already done.
var ErrAlreadyCompleted = errors.New("task already completed")
