// Package agent defines the conversational agent interface, the turn
// orchestrator, and the conversation persistence contract.
package agent

import (
	"context"

	"github.com/jkaninda/kazi/internal/tools"
)

// Agent processes one user message through the LLM tool-calling loop.
type Agent interface {
	Process(ctx context.Context, input *Input) (*Response, error)
}

// Input represents a user request entering the agent.
type Input struct {
	UserID         string
	Message        string
	CorrelationID  string
	ConversationID string // Empty = start a new conversation.
}

// DefaultMaxToolRounds is the safety guard against runaway tool-use loops.
const DefaultMaxToolRounds = 5

// Response is the agent's output after a completed turn.
type Response struct {
	ConversationID string           `json:"conversation_id"`
	Message        string           `json:"message"`
	ToolCalls      []ToolCallRecord `json:"tool_calls"`
	TokensUsed     int              `json:"-"`
}

// ToolCallRecord reports one tool execution performed during the turn.
type ToolCallRecord struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    *tools.Result  `json:"result"`
}
