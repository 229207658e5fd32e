package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/kazi/internal/tasks"
)

// staticTool is a configurable tool stub for dispatcher tests.
type staticTool struct {
	name        string
	schema      map[string]any
	validateErr error
	execData    any
	execErr     error
}

func (t *staticTool) Name() string                { return t.name }
func (t *staticTool) Description() string         { return "test tool" }
func (t *staticTool) InputSchema() map[string]any { return t.schema }
func (t *staticTool) Validate(map[string]any) error {
	return t.validateErr
}
func (t *staticTool) Execute(context.Context, map[string]any) (any, error) {
	return t.execData, t.execErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(tools ...Tool) *Dispatcher {
	reg := NewRegistry()
	for _, t := range tools {
		reg.Register(t)
	}
	return NewDispatcher(reg, discardLogger())
}

func TestDispatch_Success(t *testing.T) {
	d := newDispatcher(&staticTool{
		name:     "add_task",
		execData: map[string]any{"id": int64(1), "title": "Buy milk"},
	})

	res := d.Dispatch(context.Background(), "add_task", map[string]any{"title": "Buy milk"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Error != nil {
		t.Errorf("expected no error, got %+v", res.Error)
	}
	data := res.Data.(map[string]any)
	if data["title"] != "Buy milk" {
		t.Errorf("unexpected data: %+v", data)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := newDispatcher()

	res := d.Dispatch(context.Background(), "launch_rocket", nil)
	if res.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if res.Error == nil || res.Error.Code != CodeUnknownTool {
		t.Errorf("expected %s, got %+v", CodeUnknownTool, res.Error)
	}
	if !strings.Contains(res.Error.Message, "launch_rocket") {
		t.Errorf("expected tool name in message, got %q", res.Error.Message)
	}
}

func TestDispatch_ValidationError(t *testing.T) {
	d := newDispatcher(&staticTool{
		name:        "add_task",
		validateErr: errors.New("title must not be empty"),
	})

	res := d.Dispatch(context.Background(), "add_task", map[string]any{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error.Code != CodeValidationError {
		t.Errorf("expected %s, got %s", CodeValidationError, res.Error.Code)
	}
}

func TestDispatch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"not found", tasks.ErrTaskNotFound, CodeTaskNotFound},
		{"wrapped not found", fmt.Errorf("completing task: %w", tasks.ErrTaskNotFound), CodeTaskNotFound},
		{"storage", fmt.Errorf("%w: connection refused", tasks.ErrStorage), CodeDatabaseError},
		{"other", errors.New("boom"), CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(&staticTool{name: "complete_task", execErr: tt.err})
			res := d.Dispatch(context.Background(), "complete_task", map[string]any{"task_id": 1})
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Error.Code != tt.wantCode {
				t.Errorf("expected %s, got %s", tt.wantCode, res.Error.Code)
			}
		})
	}
}

// panickingTool blows up in Execute, like a buggy third-party bridge might.
type panickingTool struct {
	staticTool
}

func (t *panickingTool) Execute(context.Context, map[string]any) (any, error) {
	panic("handler bug")
}

func TestDispatch_ContainsHandlerPanic(t *testing.T) {
	d := newDispatcher(&panickingTool{staticTool{name: "unstable"}})

	res := d.Dispatch(context.Background(), "unstable", nil)
	if res == nil {
		t.Fatal("expected a result, got nil")
	}
	if res.Success {
		t.Fatal("expected failure for panicking tool")
	}
	if res.Error == nil || res.Error.Code != CodeInternalError {
		t.Fatalf("expected %s, got %+v", CodeInternalError, res.Error)
	}
	if !strings.Contains(res.Error.Message, "handler bug") {
		t.Errorf("expected panic value in message, got %q", res.Error.Message)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(res.JSON()), &decoded); err != nil {
		t.Errorf("result JSON did not round-trip: %v", err)
	}
}

func TestDispatch_EncodesTimestamps(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	d := newDispatcher(&staticTool{
		name: "list_tasks",
		execData: map[string]any{
			"tasks": []any{
				map[string]any{"id": int64(1), "created_at": created},
			},
		},
	})

	res := d.Dispatch(context.Background(), "list_tasks", nil)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}

	taskData := res.Data.(map[string]any)["tasks"].([]any)[0].(map[string]any)
	if taskData["created_at"] != "2026-03-14T09:26:53Z" {
		t.Errorf("expected RFC 3339 timestamp, got %v", taskData["created_at"])
	}

	// The whole result must serialize cleanly.
	var decoded map[string]any
	if err := json.Unmarshal([]byte(res.JSON()), &decoded); err != nil {
		t.Errorf("result JSON did not round-trip: %v", err)
	}
}

func TestDispatch_StringifiesUnserializable(t *testing.T) {
	d := newDispatcher(&staticTool{
		name: "weird",
		execData: map[string]any{
			"ch": make(chan int), // not JSON-serializable
		},
	})

	res := d.Dispatch(context.Background(), "weird", nil)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if _, ok := res.Data.(map[string]any)["ch"].(string); !ok {
		t.Errorf("expected stringified fallback, got %T", res.Data.(map[string]any)["ch"])
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(res.JSON()), &decoded); err != nil {
		t.Errorf("result JSON did not round-trip: %v", err)
	}
}
