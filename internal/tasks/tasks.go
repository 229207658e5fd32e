// Package tasks defines the task domain model, validation rules, and the
// storage interface task tools and HTTP handlers operate on.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation limits for task fields.
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 2000
	MaxListLimit         = 100
	DefaultListLimit     = 50
)

var (
	// ErrTaskNotFound is returned when a task does not exist or belongs to
	// another user. The two cases are deliberately indistinguishable so that
	// task IDs cannot be probed across users.
	ErrTaskNotFound = errors.New("task not found")

	// ErrStorage wraps backend failures so callers can classify them
	// without knowing the storage driver.
	ErrStorage = errors.New("task storage failure")
)

// Task is a single todo item owned by a user.
type Task struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput holds the fields for creating a task.
type CreateInput struct {
	Title       string
	Description string
}

// UpdateInput holds the optional fields for updating a task.
// Nil fields are left unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
}

// ListFilter selects which tasks to return.
type ListFilter struct {
	Completed *bool // nil = both
	Limit     int   // 0 = DefaultListLimit
	Offset    int
}

// Store is the persistence interface for tasks. Every operation is scoped
// to the owning user; a task belonging to another user behaves as missing.
type Store interface {
	CreateTask(ctx context.Context, userID string, in CreateInput) (*Task, error)
	GetTask(ctx context.Context, userID string, id int64) (*Task, error)
	ListTasks(ctx context.Context, userID string, filter ListFilter) ([]Task, error)
	UpdateTask(ctx context.Context, userID string, id int64, in UpdateInput) (*Task, error)
	SetTaskCompleted(ctx context.Context, userID string, id int64, completed bool) (*Task, error)
	DeleteTask(ctx context.Context, userID string, id int64) error
}

// ValidateTitle checks the title against the length limits.
func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return fmt.Errorf("title must not be empty")
	}
	if len(trimmed) > MaxTitleLength {
		return fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	return nil
}

// ValidateDescription checks the description against the length limit.
func ValidateDescription(desc string) error {
	if len(desc) > MaxDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", MaxDescriptionLength)
	}
	return nil
}

// NormalizeFilter applies defaults and clamps the list filter.
func NormalizeFilter(f ListFilter) ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
