package postgres

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB is a json.RawMessage stored in a GORM JSONB column.
type JSONB json.RawMessage

// ConversationModel maps to the "conversations" table.
type ConversationModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;index:idx_conv_user"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ConversationModel) TableName() string { return "conversations" }

// ConversationMessageModel maps to the "conversation_messages" table.
// One row per stored record: user turns, assistant turns, and individual
// tool results ("tool" rows).
type ConversationMessageModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_convmsg_seq"`
	UserID         string    `gorm:"not null"`
	SeqNum         int       `gorm:"not null;index:idx_convmsg_seq"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"type:text"`
	ToolCalls      JSONB     `gorm:"type:jsonb"` // NULL when the row carries no tool calls.
	ToolCallID     string
	ToolName       string
	CreatedAt      time.Time
}

func (ConversationMessageModel) TableName() string { return "conversation_messages" }

// TaskModel maps to the "tasks" table.
type TaskModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	UserID      string `gorm:"not null;index:idx_task_user"`
	Title       string `gorm:"not null"`
	Description string `gorm:"type:text"`
	Completed   bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TaskModel) TableName() string { return "tasks" }
