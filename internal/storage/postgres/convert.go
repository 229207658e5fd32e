package postgres

import (
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/kazi/internal/agent"
)

// toMessageModel converts a stored record to a GORM model for persistence.
func toMessageModel(convID uuid.UUID, userID string, seqNum int, rec agent.StoredMessage) ConversationMessageModel {
	var toolCalls JSONB
	if len(rec.ToolCalls) > 0 {
		toolCalls = JSONB(rec.ToolCalls)
	}

	return ConversationMessageModel{
		ID:             uuid.New(),
		ConversationID: convID,
		UserID:         userID,
		SeqNum:         seqNum,
		Role:           rec.Role,
		Content:        rec.Content,
		ToolCalls:      toolCalls,
		ToolCallID:     rec.ToolCallID,
		ToolName:       rec.ToolName,
		CreatedAt:      time.Now().UTC(),
	}
}

// toStoredMessage converts a GORM model back to a stored record.
func toStoredMessage(m *ConversationMessageModel) agent.StoredMessage {
	var toolCalls []byte
	if len(m.ToolCalls) > 0 {
		toolCalls = []byte(m.ToolCalls)
	}

	return agent.StoredMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  toolCalls,
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
	}
}
