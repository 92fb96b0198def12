// Package todo provides persistent task management scoped by owner.
package todo

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxTitleLen and MaxCategoryLen bound user-supplied fields.
const (
	MaxTitleLen       = 255
	MaxDescriptionLen = 2000
	MaxCategoryLen    = 100
)

// Priority represents the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work owned by exactly one user. Every store operation is
// scoped by UserID; a task is never visible to any other identity.
type Task struct {
	ID              string     `json:"id"`
	UserID          string     `json:"-"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Priority        Priority   `json:"priority"`
	Category        string     `json:"category,omitempty"`
	Completed       bool       `json:"completed"`
	CompletionNotes string     `json:"completion_notes,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Update describes a partial mutation of a task. Nil fields are untouched.
type Update struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
}

// Empty reports whether the update carries no fields at all.
func (u Update) Empty() bool {
	return u.Title == nil && u.Description == nil && u.DueDate == nil &&
		u.Priority == nil && u.Category == nil && u.Completed == nil
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}
