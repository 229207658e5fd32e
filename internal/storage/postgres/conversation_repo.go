package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/kazi/internal/agent"
	"github.com/jkaninda/kazi/internal/llm"
)

// Compile-time interface check.
var _ agent.ConversationStore = (*ConversationRepository)(nil)

// ConversationRepository implements agent.ConversationStore with GORM.
type ConversationRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewConversationRepository creates a ConversationRepository.
func NewConversationRepository(db *gorm.DB, logger *slog.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, logger: logger}
}

// GetOrCreateConversation returns an existing conversation owned by userID,
// or creates a new one under that user. A conversation owned by another user
// is reported as not found so conversation IDs cannot be probed.
func (r *ConversationRepository) GetOrCreateConversation(ctx context.Context, userID string, convID uuid.UUID) (uuid.UUID, error) {
	if convID == uuid.Nil {
		convID = uuid.New()
	}

	var existing ConversationModel
	err := r.db.WithContext(ctx).
		Where("id = ?", convID).
		First(&existing).Error

	if err == nil {
		if existing.UserID != userID {
			return uuid.Nil, agent.ErrConversationNotFound
		}
		return existing.ID, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, fmt.Errorf("looking up conversation: %w", err)
	}

	now := time.Now().UTC()
	model := ConversationModel{
		ID:        convID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return uuid.Nil, fmt.Errorf("creating conversation: %w", err)
	}

	return model.ID, nil
}

// AppendMessages atomically appends one or more messages to a conversation.
// Sequence numbers are monotonically assigned starting after the current max.
func (r *ConversationRepository) AppendMessages(ctx context.Context, convID uuid.UUID, userID string, msgs []llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	records := agent.ToStoredMessages(msgs, r.logger)
	if len(records) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv ConversationModel
		err := tx.Scopes(UserScope(userID)).
			Where("id = ?", convID).
			First(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return agent.ErrConversationNotFound
		}
		if err != nil {
			return fmt.Errorf("looking up conversation: %w", err)
		}

		var maxSeq int
		err = tx.Model(&ConversationMessageModel{}).
			Where("conversation_id = ?", convID).
			Select("COALESCE(MAX(seq_num), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return fmt.Errorf("getting max seq_num: %w", err)
		}

		models := make([]ConversationMessageModel, 0, len(records))
		for i, rec := range records {
			models = append(models, toMessageModel(convID, userID, maxSeq+i+1, rec))
		}

		if err := tx.Create(&models).Error; err != nil {
			return fmt.Errorf("inserting messages: %w", err)
		}

		return tx.Model(&ConversationModel{}).
			Where("id = ?", convID).
			Update("updated_at", time.Now().UTC()).Error
	})
}

// LoadHistory returns the most recent messages for a conversation,
// ordered oldest-first (ascending seq_num).
func (r *ConversationRepository) LoadHistory(ctx context.Context, convID uuid.UUID, maxMessages int) ([]llm.Message, error) {
	if maxMessages <= 0 {
		maxMessages = agent.DefaultMaxHistoryMessages
	}

	// Take the N most recent by seq_num DESC, then re-order ASC.
	var models []ConversationMessageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("seq_num DESC").
		Limit(maxMessages).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}

	// Reverse to oldest-first order.
	for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
		models[i], models[j] = models[j], models[i]
	}

	records := make([]agent.StoredMessage, len(models))
	for i := range models {
		records[i] = toStoredMessage(&models[i])
	}

	return agent.FromStoredMessages(records, r.logger), nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (r *ConversationRepository) ListConversations(ctx context.Context, userID string) ([]agent.ConversationInfo, error) {
	var models []ConversationModel
	err := r.db.WithContext(ctx).
		Scopes(UserScope(userID)).
		Order("updated_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	infos := make([]agent.ConversationInfo, len(models))
	for i, m := range models {
		infos[i] = agent.ConversationInfo{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		}
	}
	return infos, nil
}

// DeleteConversation removes all messages and the conversation record.
func (r *ConversationRepository) DeleteConversation(ctx context.Context, convID uuid.UUID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Scopes(UserScope(userID)).
			Where("id = ?", convID).
			Delete(&ConversationModel{})
		if res.Error != nil {
			return fmt.Errorf("deleting conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return agent.ErrConversationNotFound
		}
		if err := tx.Where("conversation_id = ?", convID).Delete(&ConversationMessageModel{}).Error; err != nil {
			return fmt.Errorf("deleting conversation messages: %w", err)
		}
		return nil
	})
}

// DeleteConversationsBefore removes conversations (and their messages)
// last updated before the cutoff. Returns the number removed.
func (r *ConversationRepository) DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Model(&ConversationModel{}).
			Where("updated_at < ?", cutoff).
			Pluck("id", &ids).Error
		if err != nil {
			return fmt.Errorf("finding stale conversations: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("conversation_id IN ?", ids).Delete(&ConversationMessageModel{}).Error; err != nil {
			return fmt.Errorf("deleting stale messages: %w", err)
		}

		res := tx.Where("id IN ?", ids).Delete(&ConversationModel{})
		if res.Error != nil {
			return fmt.Errorf("deleting stale conversations: %w", res.Error)
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}
