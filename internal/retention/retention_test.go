package retention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/kazi/internal/agent"
	"github.com/jkaninda/kazi/internal/config"
	"github.com/jkaninda/kazi/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweep_DeletesOldConversations(t *testing.T) {
	ctx := context.Background()
	store := agent.NewInMemoryConversationStore(discardLogger())

	convID, err := store.GetOrCreateConversation(ctx, "alice", uuid.Nil)
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	if err := store.AppendMessages(ctx, convID, "alice", []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	cfg := &config.RetentionConfig{Enabled: true, MaxAgeDays: 1}
	sweeper := New(store, cfg, discardLogger())

	// Conversation was just touched, so it survives a sweep at real time.
	if deleted := sweeper.Sweep(ctx); deleted != 0 {
		t.Fatalf("Sweep deleted %d conversations, want 0", deleted)
	}

	// Move the clock past the retention window.
	sweeper.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if deleted := sweeper.Sweep(ctx); deleted != 1 {
		t.Fatalf("Sweep deleted %d conversations, want 1", deleted)
	}

	infos, err := store.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no conversations after sweep, got %d", len(infos))
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	store := agent.NewInMemoryConversationStore(discardLogger())
	cfg := &config.RetentionConfig{Enabled: true, Schedule: "not a cron expression"}

	sweeper := New(store, cfg, discardLogger())
	cancel := sweeper.Start(context.Background())
	cancel()
}
