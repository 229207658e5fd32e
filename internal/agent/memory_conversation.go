package agent

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/kazi/internal/llm"
)

// Compile-time interface check.
var _ ConversationStore = (*InMemoryConversationStore)(nil)

// InMemoryConversationStore implements ConversationStore without persistence.
// History is lost on restart. Used in tests and when no database is configured.
// Messages round-trip through the same stored representation the database
// stores use.
type InMemoryConversationStore struct {
	mu     sync.RWMutex
	convs  map[uuid.UUID]*memoryConversation
	logger *slog.Logger
}

type memoryConversation struct {
	owner     string
	records   []StoredMessage
	createdAt time.Time
	updatedAt time.Time
}

// NewInMemoryConversationStore creates an ephemeral conversation store.
func NewInMemoryConversationStore(logger *slog.Logger) *InMemoryConversationStore {
	return &InMemoryConversationStore{
		convs:  make(map[uuid.UUID]*memoryConversation),
		logger: logger,
	}
}

func (s *InMemoryConversationStore) GetOrCreateConversation(
	_ context.Context, userID string, convID uuid.UUID,
) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.convs[convID]; ok {
		if conv.owner != userID {
			return uuid.Nil, ErrConversationNotFound
		}
		return convID, nil
	}

	now := time.Now().UTC()
	s.convs[convID] = &memoryConversation{
		owner:     userID,
		createdAt: now,
		updatedAt: now,
	}
	return convID, nil
}

func (s *InMemoryConversationStore) AppendMessages(
	_ context.Context, convID uuid.UUID, userID string, msgs []llm.Message,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok || conv.owner != userID {
		return ErrConversationNotFound
	}
	conv.records = append(conv.records, ToStoredMessages(msgs, s.logger)...)
	conv.updatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryConversationStore) LoadHistory(
	_ context.Context, convID uuid.UUID, maxMessages int,
) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[convID]
	if !ok {
		return nil, nil
	}
	records := conv.records
	if maxMessages > 0 && len(records) > maxMessages {
		records = records[len(records)-maxMessages:]
	}
	return FromStoredMessages(records, s.logger), nil
}

func (s *InMemoryConversationStore) ListConversations(
	_ context.Context, userID string,
) ([]ConversationInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []ConversationInfo
	for id, conv := range s.convs {
		if conv.owner != userID {
			continue
		}
		infos = append(infos, ConversationInfo{
			ID:        id,
			CreatedAt: conv.createdAt,
			UpdatedAt: conv.updatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

func (s *InMemoryConversationStore) DeleteConversation(
	_ context.Context, convID uuid.UUID, userID string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok || conv.owner != userID {
		return ErrConversationNotFound
	}
	delete(s.convs, convID)
	return nil
}

func (s *InMemoryConversationStore) DeleteConversationsBefore(
	_ context.Context, cutoff time.Time,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, conv := range s.convs {
		if conv.updatedAt.Before(cutoff) {
			delete(s.convs, id)
			removed++
		}
	}
	return removed, nil
}
