package task

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jkaninda/kazi/internal/tasks"
	"github.com/jkaninda/kazi/internal/tools"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userCtx(userID string) context.Context {
	return tools.ContextWithUserID(context.Background(), userID)
}

func seedTask(t *testing.T, store tasks.Store, userID, title string) *tasks.Task {
	t.Helper()
	created, err := store.CreateTask(context.Background(), userID, tasks.CreateInput{Title: title})
	if err != nil {
		t.Fatalf("seeding task: %v", err)
	}
	return created
}

func TestAddTool(t *testing.T) {
	store := tasks.NewInMemoryStore()
	tool := NewAddTool(store, discardLogger())

	params := map[string]any{"title": "Buy milk", "description": "2 liters"}
	if err := tool.Validate(params); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	data, err := tool.Execute(userCtx("alice"), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := data.(map[string]any)["task"].(map[string]any)
	if payload["title"] != "Buy milk" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	list, _ := store.ListTasks(context.Background(), "alice", tasks.ListFilter{})
	if len(list) != 1 {
		t.Errorf("expected 1 stored task, got %d", len(list))
	}
}

func TestAddTool_Validation(t *testing.T) {
	tool := NewAddTool(tasks.NewInMemoryStore(), discardLogger())

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"missing title", map[string]any{}},
		{"empty title", map[string]any{"title": "   "}},
		{"title too long", map[string]any{"title": strings.Repeat("x", tasks.MaxTitleLength+1)}},
		{"description too long", map[string]any{
			"title":       "ok",
			"description": strings.Repeat("x", tasks.MaxDescriptionLength+1),
		}},
		{"wrong type", map[string]any{"title": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tool.Validate(tt.params); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAddTool_NoUserInContext(t *testing.T) {
	tool := NewAddTool(tasks.NewInMemoryStore(), discardLogger())
	if _, err := tool.Execute(context.Background(), map[string]any{"title": "x"}); err == nil {
		t.Error("expected error without acting user")
	}
}

func TestListTool_FiltersAndPaginates(t *testing.T) {
	store := tasks.NewInMemoryStore()
	first := seedTask(t, store, "alice", "first")
	seedTask(t, store, "alice", "second")
	seedTask(t, store, "alice", "third")
	seedTask(t, store, "bob", "not mine")
	if _, err := store.SetTaskCompleted(context.Background(), "alice", first.ID, true); err != nil {
		t.Fatal(err)
	}

	tool := NewListTool(store, discardLogger())

	// Completion filter.
	data, err := tool.Execute(userCtx("alice"), map[string]any{"completed": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.(map[string]any)["count"] != 1 {
		t.Errorf("expected 1 completed task, got %v", data.(map[string]any)["count"])
	}

	// Pagination, newest first. JSON decoding yields float64 numbers.
	data, err = tool.Execute(userCtx("alice"), map[string]any{"limit": float64(2), "offset": float64(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page := data.(map[string]any)["tasks"].([]any)
	if len(page) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(page))
	}
	if page[0].(map[string]any)["title"] != "second" {
		t.Errorf("expected newest-first ordering, got %+v", page[0])
	}
}

func TestListTool_Validation(t *testing.T) {
	tool := NewListTool(tasks.NewInMemoryStore(), discardLogger())

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"limit too small", map[string]any{"limit": float64(0)}},
		{"limit too large", map[string]any{"limit": float64(tasks.MaxListLimit + 1)}},
		{"negative offset", map[string]any{"offset": float64(-1)}},
		{"fractional limit", map[string]any{"limit": 2.5}},
		{"completed not bool", map[string]any{"completed": "yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tool.Validate(tt.params); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestUpdateTool(t *testing.T) {
	store := tasks.NewInMemoryStore()
	created := seedTask(t, store, "alice", "old title")

	tool := NewUpdateTool(store, discardLogger())
	params := map[string]any{"task_id": float64(created.ID), "title": "new title"}
	if err := tool.Validate(params); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	data, err := tool.Execute(userCtx("alice"), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := data.(map[string]any)["task"].(map[string]any)
	if payload["title"] != "new title" {
		t.Errorf("expected updated title, got %+v", payload)
	}
}

func TestUpdateTool_RequiresAField(t *testing.T) {
	tool := NewUpdateTool(tasks.NewInMemoryStore(), discardLogger())
	if err := tool.Validate(map[string]any{"task_id": float64(1)}); err == nil {
		t.Error("expected validation error when no field is provided")
	}
}

func TestUpdateTool_OtherUsersTaskNotFound(t *testing.T) {
	store := tasks.NewInMemoryStore()
	created := seedTask(t, store, "alice", "private")

	tool := NewUpdateTool(store, discardLogger())
	_, err := tool.Execute(userCtx("bob"), map[string]any{
		"task_id": float64(created.ID),
		"title":   "hijacked",
	})
	if err != tasks.ErrTaskNotFound {
		t.Errorf("expected ErrTaskNotFound for foreign task, got %v", err)
	}
}

func TestCompleteTool_DefaultsToComplete(t *testing.T) {
	store := tasks.NewInMemoryStore()
	created := seedTask(t, store, "alice", "todo")

	tool := NewCompleteTool(store, discardLogger())
	data, err := tool.Execute(userCtx("alice"), map[string]any{"task_id": float64(created.ID)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := data.(map[string]any)["task"].(map[string]any)
	if payload["completed"] != true {
		t.Errorf("expected completed=true, got %+v", payload)
	}

	// Reopen.
	data, err = tool.Execute(userCtx("alice"), map[string]any{
		"task_id":   float64(created.ID),
		"completed": false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload = data.(map[string]any)["task"].(map[string]any)
	if payload["completed"] != false {
		t.Errorf("expected completed=false, got %+v", payload)
	}
}

func TestDeleteTool(t *testing.T) {
	store := tasks.NewInMemoryStore()
	created := seedTask(t, store, "alice", "temp")

	tool := NewDeleteTool(store, discardLogger())
	data, err := tool.Execute(userCtx("alice"), map[string]any{"task_id": float64(created.ID)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.(map[string]any)["deleted"] != true {
		t.Errorf("unexpected payload: %+v", data)
	}

	if _, err := store.GetTask(context.Background(), "alice", created.ID); err != tasks.ErrTaskNotFound {
		t.Errorf("expected task gone, got %v", err)
	}
}

func TestSchemas_SanitizeCleanly(t *testing.T) {
	store := tasks.NewInMemoryStore()
	reg := tools.NewRegistry()
	RegisterAll(reg, store, discardLogger())

	if got := len(reg.List()); got != 5 {
		t.Fatalf("expected 5 tools, got %d", got)
	}

	for _, def := range tools.ToLLMDefinitions(reg) {
		props, ok := def.InputSchema["properties"].(map[string]any)
		if !ok {
			t.Errorf("tool %s: schema has no properties", def.Name)
			continue
		}
		for name, raw := range props {
			prop := raw.(map[string]any)
			for attr, v := range prop {
				if v == nil {
					t.Errorf("tool %s: property %s still carries null %s", def.Name, name, attr)
				}
			}
		}
	}
}
