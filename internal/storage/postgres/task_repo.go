package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jkaninda/kazi/internal/tasks"
)

// Compile-time interface check.
var _ tasks.Store = (*TaskRepository)(nil)

// TaskRepository implements tasks.Store with GORM.
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a TaskRepository.
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func toTask(m *TaskModel) *tasks.Task {
	return &tasks.Task{
		ID:          m.ID,
		UserID:      m.UserID,
		Title:       m.Title,
		Description: m.Description,
		Completed:   m.Completed,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// getOwned loads a task owned by userID. A missing row and a row owned by
// another user are both reported as tasks.ErrTaskNotFound.
func (r *TaskRepository) getOwned(ctx context.Context, userID string, id int64) (*TaskModel, error) {
	var model TaskModel
	err := r.db.WithContext(ctx).
		Scopes(UserScope(userID)).
		Where("id = ?", id).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, tasks.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading task: %w", tasks.ErrStorage, err)
	}
	return &model, nil
}

// CreateTask inserts a new task owned by userID.
func (r *TaskRepository) CreateTask(ctx context.Context, userID string, in tasks.CreateInput) (*tasks.Task, error) {
	now := time.Now().UTC()
	model := TaskModel{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("%w: creating task: %w", tasks.ErrStorage, err)
	}
	return toTask(&model), nil
}

// GetTask returns a task owned by userID.
func (r *TaskRepository) GetTask(ctx context.Context, userID string, id int64) (*tasks.Task, error) {
	model, err := r.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return toTask(model), nil
}

// ListTasks returns the user's tasks, newest first.
func (r *TaskRepository) ListTasks(ctx context.Context, userID string, filter tasks.ListFilter) ([]tasks.Task, error) {
	filter = tasks.NormalizeFilter(filter)

	q := r.db.WithContext(ctx).
		Scopes(UserScope(userID)).
		Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset)
	if filter.Completed != nil {
		q = q.Where("completed = ?", *filter.Completed)
	}

	var models []TaskModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: listing tasks: %w", tasks.ErrStorage, err)
	}

	out := make([]tasks.Task, len(models))
	for i := range models {
		out[i] = *toTask(&models[i])
	}
	return out, nil
}

// UpdateTask applies the non-nil fields of in to a task owned by userID.
func (r *TaskRepository) UpdateTask(ctx context.Context, userID string, id int64, in tasks.UpdateInput) (*tasks.Task, error) {
	model, err := r.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if in.Title != nil {
		updates["title"] = *in.Title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}

	if err := r.db.WithContext(ctx).Model(model).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("%w: updating task: %w", tasks.ErrStorage, err)
	}
	return toTask(model), nil
}

// SetTaskCompleted marks a task owned by userID as completed or reopened.
func (r *TaskRepository) SetTaskCompleted(ctx context.Context, userID string, id int64, completed bool) (*tasks.Task, error) {
	model, err := r.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"completed":  completed,
		"updated_at": time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Model(model).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("%w: completing task: %w", tasks.ErrStorage, err)
	}
	return toTask(model), nil
}

// DeleteTask removes a task owned by userID.
func (r *TaskRepository) DeleteTask(ctx context.Context, userID string, id int64) error {
	res := r.db.WithContext(ctx).
		Scopes(UserScope(userID)).
		Where("id = ?", id).
		Delete(&TaskModel{})
	if res.Error != nil {
		return fmt.Errorf("%w: deleting task: %w", tasks.ErrStorage, res.Error)
	}
	if res.RowsAffected == 0 {
		return tasks.ErrTaskNotFound
	}
	return nil
}
