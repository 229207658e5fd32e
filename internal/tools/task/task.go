// Package task implements the LLM tools for managing a user's todo list:
// add_task, list_tasks, update_task, complete_task, and delete_task.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jkaninda/kazi/internal/tasks"
	"github.com/jkaninda/kazi/internal/tools"
)

// RegisterAll registers the full task tool set on the catalog.
func RegisterAll(reg *tools.Registry, store tasks.Store, logger *slog.Logger) {
	reg.Register(NewAddTool(store, logger))
	reg.Register(NewListTool(store, logger))
	reg.Register(NewUpdateTool(store, logger))
	reg.Register(NewCompleteTool(store, logger))
	reg.Register(NewDeleteTool(store, logger))
}

// --- add_task ---

// AddTool creates a new task for the acting user.
type AddTool struct {
	store  tasks.Store
	logger *slog.Logger
}

func NewAddTool(store tasks.Store, logger *slog.Logger) *AddTool {
	return &AddTool{store: store, logger: logger}
}

func (t *AddTool) Name() string { return "add_task" }

func (t *AddTool) Description() string {
	return "Create a new task on the user's todo list. Requires a title; an optional description adds detail."
}

func (t *AddTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       stringProperty("Short task title.", 1, tasks.MaxTitleLength, nil),
			"description": stringProperty("Optional longer description.", 0, tasks.MaxDescriptionLength, nil),
		},
		"required": []any{"title"},
	}
}

func (t *AddTool) Validate(params map[string]any) error {
	title, err := requireString(params, "title")
	if err != nil {
		return err
	}
	if err := tasks.ValidateTitle(title); err != nil {
		return err
	}
	if desc, ok, err := optionalString(params, "description"); err != nil {
		return err
	} else if ok {
		return tasks.ValidateDescription(desc)
	}
	return nil
}

func (t *AddTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}

	title, _ := requireString(params, "title")
	desc, _, _ := optionalString(params, "description")

	created, err := t.store.CreateTask(ctx, userID, tasks.CreateInput{
		Title:       title,
		Description: desc,
	})
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "task created",
		slog.String("user_id", userID),
		slog.Int64("task_id", created.ID),
	)
	return map[string]any{"task": taskPayload(created)}, nil
}

// --- list_tasks ---

// ListTool returns the user's tasks, optionally filtered by completion state.
type ListTool struct {
	store  tasks.Store
	logger *slog.Logger
}

func NewListTool(store tasks.Store, logger *slog.Logger) *ListTool {
	return &ListTool{store: store, logger: logger}
}

func (t *ListTool) Name() string { return "list_tasks" }

func (t *ListTool) Description() string {
	return "List the user's tasks, newest first. Optionally filter by completion state and paginate with limit/offset."
}

func (t *ListTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"completed": map[string]any{
				"type":        "boolean",
				"description": "Only return tasks with this completion state. Omit for all tasks.",
				"default":     nil,
			},
			"limit":  intProperty("Maximum number of tasks to return.", 1, tasks.MaxListLimit, tasks.DefaultListLimit),
			"offset": intProperty("Number of tasks to skip.", 0, nil, 0),
		},
	}
}

func (t *ListTool) Validate(params map[string]any) error {
	if limit, ok, err := optionalInt(params, "limit"); err != nil {
		return err
	} else if ok && (limit < 1 || limit > tasks.MaxListLimit) {
		return fmt.Errorf("limit must be between 1 and %d", tasks.MaxListLimit)
	}
	if offset, ok, err := optionalInt(params, "offset"); err != nil {
		return err
	} else if ok && offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	if _, _, err := optionalBool(params, "completed"); err != nil {
		return err
	}
	return nil
}

func (t *ListTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}

	filter := tasks.ListFilter{Limit: tasks.DefaultListLimit}
	if completed, ok, _ := optionalBool(params, "completed"); ok {
		filter.Completed = &completed
	}
	if limit, ok, _ := optionalInt(params, "limit"); ok {
		filter.Limit = limit
	}
	if offset, ok, _ := optionalInt(params, "offset"); ok {
		filter.Offset = offset
	}

	list, err := t.store.ListTasks(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	payload := make([]any, len(list))
	for i := range list {
		payload[i] = taskPayload(&list[i])
	}
	return map[string]any{"tasks": payload, "count": len(list)}, nil
}

// --- update_task ---

// UpdateTool changes a task's title and/or description.
type UpdateTool struct {
	store  tasks.Store
	logger *slog.Logger
}

func NewUpdateTool(store tasks.Store, logger *slog.Logger) *UpdateTool {
	return &UpdateTool{store: store, logger: logger}
}

func (t *UpdateTool) Name() string { return "update_task" }

func (t *UpdateTool) Description() string {
	return "Update a task's title and/or description. At least one field must be provided."
}

func (t *UpdateTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id":     intProperty("ID of the task to update.", 1, nil, nil),
			"title":       stringProperty("New task title.", 1, tasks.MaxTitleLength, nil),
			"description": stringProperty("New task description.", 0, tasks.MaxDescriptionLength, nil),
		},
		"required": []any{"task_id"},
	}
}

func (t *UpdateTool) Validate(params map[string]any) error {
	if _, err := requireInt(params, "task_id"); err != nil {
		return err
	}

	title, hasTitle, err := optionalString(params, "title")
	if err != nil {
		return err
	}
	if hasTitle {
		if err := tasks.ValidateTitle(title); err != nil {
			return err
		}
	}

	desc, hasDesc, err := optionalString(params, "description")
	if err != nil {
		return err
	}
	if hasDesc {
		if err := tasks.ValidateDescription(desc); err != nil {
			return err
		}
	}

	if !hasTitle && !hasDesc {
		return fmt.Errorf("provide a title or a description to update")
	}
	return nil
}

func (t *UpdateTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}

	id, _ := requireInt(params, "task_id")

	var in tasks.UpdateInput
	if title, ok, _ := optionalString(params, "title"); ok {
		in.Title = &title
	}
	if desc, ok, _ := optionalString(params, "description"); ok {
		in.Description = &desc
	}

	updated, err := t.store.UpdateTask(ctx, userID, int64(id), in)
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "task updated",
		slog.String("user_id", userID),
		slog.Int64("task_id", updated.ID),
	)
	return map[string]any{"task": taskPayload(updated)}, nil
}

// --- complete_task ---

// CompleteTool marks a task complete (or reopens it).
type CompleteTool struct {
	store  tasks.Store
	logger *slog.Logger
}

func NewCompleteTool(store tasks.Store, logger *slog.Logger) *CompleteTool {
	return &CompleteTool{store: store, logger: logger}
}

func (t *CompleteTool) Name() string { return "complete_task" }

func (t *CompleteTool) Description() string {
	return "Mark a task as completed. Pass completed=false to reopen a task."
}

func (t *CompleteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id": intProperty("ID of the task.", 1, nil, nil),
			"completed": map[string]any{
				"type":        "boolean",
				"description": "Target completion state.",
				"default":     true,
			},
		},
		"required": []any{"task_id"},
	}
}

func (t *CompleteTool) Validate(params map[string]any) error {
	if _, err := requireInt(params, "task_id"); err != nil {
		return err
	}
	_, _, err := optionalBool(params, "completed")
	return err
}

func (t *CompleteTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}

	id, _ := requireInt(params, "task_id")
	completed := true
	if v, ok, _ := optionalBool(params, "completed"); ok {
		completed = v
	}

	updated, err := t.store.SetTaskCompleted(ctx, userID, int64(id), completed)
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "task completion changed",
		slog.String("user_id", userID),
		slog.Int64("task_id", updated.ID),
		slog.Bool("completed", completed),
	)
	return map[string]any{"task": taskPayload(updated)}, nil
}

// --- delete_task ---

// DeleteTool removes a task permanently.
type DeleteTool struct {
	store  tasks.Store
	logger *slog.Logger
}

func NewDeleteTool(store tasks.Store, logger *slog.Logger) *DeleteTool {
	return &DeleteTool{store: store, logger: logger}
}

func (t *DeleteTool) Name() string { return "delete_task" }

func (t *DeleteTool) Description() string {
	return "Delete a task permanently. This cannot be undone."
}

func (t *DeleteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id": intProperty("ID of the task to delete.", 1, nil, nil),
		},
		"required": []any{"task_id"},
	}
}

func (t *DeleteTool) Validate(params map[string]any) error {
	_, err := requireInt(params, "task_id")
	return err
}

func (t *DeleteTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}

	id, _ := requireInt(params, "task_id")
	if err := t.store.DeleteTask(ctx, userID, int64(id)); err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "task deleted",
		slog.String("user_id", userID),
		slog.Int64("task_id", int64(id)),
	)
	return map[string]any{"deleted": true, "task_id": id}, nil
}

// --- helpers ---

// actingUser extracts the user ID placed in the context by the orchestrator.
func actingUser(ctx context.Context) (string, error) {
	userID, ok := tools.UserIDFromContext(ctx)
	if !ok || userID == "" {
		return "", fmt.Errorf("no acting user in context")
	}
	return userID, nil
}

// taskPayload shapes a task for tool results. Timestamps stay as time.Time;
// the dispatcher converts them to RFC 3339 strings during encoding.
func taskPayload(t *tasks.Task) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
		"created_at":  t.CreatedAt,
		"updated_at":  t.UpdatedAt,
	}
}

// stringProperty builds a string JSON Schema property. Zero minLen and nil
// values are emitted as nulls and stripped by the schema sanitizer.
func stringProperty(desc string, minLen, maxLen int, def any) map[string]any {
	p := map[string]any{
		"type":        "string",
		"description": desc,
		"maxLength":   maxLen,
		"default":     def,
	}
	if minLen > 0 {
		p["minLength"] = minLen
	} else {
		p["minLength"] = nil
	}
	return p
}

// intProperty builds an integer JSON Schema property. Nil bounds and
// defaults are stripped by the schema sanitizer.
func intProperty(desc string, minimum, maximum, def any) map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": desc,
		"minimum":     minimum,
		"maximum":     maximum,
		"default":     def,
	}
}

func requireString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	return s, nil
}

func optionalString(params map[string]any, key string) (string, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	return s, true, nil
}

func requireInt(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing required parameter: %s", key)
	}
	n, ok := asInt(v)
	if !ok {
		return 0, fmt.Errorf("parameter %s must be an integer, got %T", key, v)
	}
	return n, nil
}

func optionalInt(params map[string]any, key string) (int, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	n, ok := asInt(v)
	if !ok {
		return 0, false, fmt.Errorf("parameter %s must be an integer, got %T", key, v)
	}
	return n, true, nil
}

func optionalBool(params map[string]any, key string) (bool, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, fmt.Errorf("parameter %s must be a boolean, got %T", key, v)
	}
	return b, true, nil
}

// asInt accepts the numeric types JSON decoding produces.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
