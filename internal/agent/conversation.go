package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/kazi/internal/llm"
)

// ErrConversationNotFound is returned when a conversation does not exist or
// belongs to another user. The two cases are indistinguishable so that
// conversation IDs cannot be probed across users.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationStore is the append-only persistence contract for conversations.
// Every operation is scoped to the owning user.
type ConversationStore interface {
	// GetOrCreateConversation returns an existing conversation owned by
	// userID, or creates a new one under that user.
	GetOrCreateConversation(ctx context.Context, userID string, convID uuid.UUID) (uuid.UUID, error)

	// AppendMessages atomically appends one or more messages to a conversation.
	AppendMessages(ctx context.Context, convID uuid.UUID, userID string, msgs []llm.Message) error

	// LoadHistory returns the most recent messages for a conversation,
	// up to maxMessages, ordered oldest-first.
	LoadHistory(ctx context.Context, convID uuid.UUID, maxMessages int) ([]llm.Message, error)

	// ListConversations returns the user's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, userID string) ([]ConversationInfo, error)

	// DeleteConversation removes all messages and the conversation record.
	DeleteConversation(ctx context.Context, convID uuid.UUID, userID string) error

	// DeleteConversationsBefore removes conversations (and their messages)
	// last updated before the cutoff. Returns the number removed.
	DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConversationInfo is a conversation summary for listing endpoints.
type ConversationInfo struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultMaxHistoryMessages is the default cap on messages loaded per conversation.
const DefaultMaxHistoryMessages = 100

// DefaultMaxMessageBytes is the default per-message content size limit (32 KB).
const DefaultMaxMessageBytes = 32768
