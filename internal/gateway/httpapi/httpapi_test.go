package httpapi

import (
	"testing"
	"time"

	"github.com/jkaninda/kazi/internal/tasks"
)

func TestConfig_MaxRequestSizeDefault(t *testing.T) {
	cfg := Config{}
	if got := cfg.maxRequestSize(); got != defaultMaxRequestSize {
		t.Errorf("maxRequestSize() = %d, want %d", got, defaultMaxRequestSize)
	}

	cfg.MaxRequestSize = 4096
	if got := cfg.maxRequestSize(); got != 4096 {
		t.Errorf("maxRequestSize() = %d, want 4096", got)
	}
}

func TestToTaskResponse(t *testing.T) {
	now := time.Now().UTC()
	task := &tasks.Task{
		ID:          42,
		UserID:      "alice",
		Title:       "buy milk",
		Description: "two liters",
		Completed:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	resp := toTaskResponse(task)
	if resp.ID != 42 {
		t.Errorf("ID = %d, want 42", resp.ID)
	}
	if resp.Title != "buy milk" {
		t.Errorf("Title = %q", resp.Title)
	}
	if resp.Description != "two liters" {
		t.Errorf("Description = %q", resp.Description)
	}
	if !resp.Completed {
		t.Error("Completed should be true")
	}
	if !resp.CreatedAt.Equal(now) || !resp.UpdatedAt.Equal(now) {
		t.Error("timestamps should be preserved")
	}
}

func TestNewCorrelationID(t *testing.T) {
	a := newCorrelationID()
	b := newCorrelationID()
	if len(a) != 16 {
		t.Errorf("correlation ID length = %d, want 16", len(a))
	}
	if a == b {
		t.Error("correlation IDs should be unique")
	}
}
