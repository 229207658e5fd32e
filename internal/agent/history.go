package agent

import (
	"encoding/json"
	"log/slog"

	"github.com/jkaninda/kazi/internal/llm"
)

// Stored message roles. "tool" rows carry one tool result each.
const (
	StoredRoleUser      = "user"
	StoredRoleAssistant = "assistant"
	StoredRoleTool      = "tool"
)

// StoredMessage is the persisted form of one conversation record.
// Assistant rows may carry a ToolCalls JSON array; tool rows carry the
// result content plus the call they answer.
type StoredMessage struct {
	Role       string
	Content    string
	ToolCalls  []byte // JSON array of tool calls; nil when the row has none
	ToolCallID string
	ToolName   string
}

// storedToolCall is the canonical persisted tool-call shape, matching the
// OpenAI wire format with string-encoded arguments.
type storedToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function storedToolCallFunc `json:"function"`
}

type storedToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// rawToolCall accepts both the canonical shape and the legacy flat shape
// ({"id","name","arguments":{...}}) that older records used.
type rawToolCall struct {
	ID       string              `json:"id"`
	Function *storedToolCallFunc `json:"function"`

	// legacy flat shape
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// EncodeToolCalls serializes the tool_use blocks of an assistant message
// into the canonical persisted shape. Returns nil when the message carries
// no tool calls, so rows without calls store no empty list.
func EncodeToolCalls(blocks []llm.ContentBlock) []byte {
	var calls []storedToolCall
	for _, b := range blocks {
		if b.Type != "tool_use" {
			continue
		}
		args, err := json.Marshal(b.Input)
		if err != nil {
			args = []byte("{}")
		}
		calls = append(calls, storedToolCall{
			ID:   b.ID,
			Type: "function",
			Function: storedToolCallFunc{
				Name:      b.Name,
				Arguments: string(args),
			},
		})
	}
	if len(calls) == 0 {
		return nil
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return nil
	}
	return data
}

// DecodeToolCalls parses a persisted tool-call array into tool_use blocks,
// normalizing the legacy flat shape. Records that cannot be normalized are
// dropped with a warning rather than poisoning the turn.
func DecodeToolCalls(raw []byte, logger *slog.Logger) []llm.ContentBlock {
	if len(raw) == 0 {
		return nil
	}

	var calls []json.RawMessage
	if err := json.Unmarshal(raw, &calls); err != nil {
		logger.Warn("dropping unparsable tool-call list",
			slog.String("error", err.Error()),
		)
		return nil
	}

	var blocks []llm.ContentBlock
	for _, entry := range calls {
		var call rawToolCall
		if err := json.Unmarshal(entry, &call); err != nil {
			logger.Warn("dropping malformed tool-call record",
				slog.String("error", err.Error()),
			)
			continue
		}

		var name string
		var input map[string]any
		switch {
		case call.Function != nil && call.Function.Name != "":
			name = call.Function.Name
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
					logger.Warn("dropping tool-call record with unparsable arguments",
						slog.String("tool", name),
						slog.String("error", err.Error()),
					)
					continue
				}
			}
		case call.Name != "":
			// Legacy flat shape: arguments are an inline object.
			name = call.Name
			if len(call.Arguments) > 0 {
				if err := json.Unmarshal(call.Arguments, &input); err != nil {
					logger.Warn("dropping tool-call record with unparsable arguments",
						slog.String("tool", name),
						slog.String("error", err.Error()),
					)
					continue
				}
			}
		default:
			logger.Warn("dropping tool-call record without a tool name")
			continue
		}

		blocks = append(blocks, llm.ToolUseBlock(call.ID, name, input))
	}
	return blocks
}

// ToStoredMessages flattens conversation messages into persisted records.
// Tool results embedded in user messages become individual "tool" rows.
// Tool names on result rows are resolved from tool calls seen earlier in
// the same batch; unknown calls keep an empty name.
func ToStoredMessages(msgs []llm.Message, logger *slog.Logger) []StoredMessage {
	callNames := make(map[string]string)
	var out []StoredMessage

	for _, m := range msgs {
		if len(m.ContentBlocks) == 0 {
			out = append(out, StoredMessage{
				Role:    string(m.Role),
				Content: m.Content,
			})
			continue
		}

		switch m.Role {
		case llm.RoleAssistant:
			toolCalls := EncodeToolCalls(m.ContentBlocks)
			for _, b := range m.ContentBlocks {
				if b.Type == "tool_use" {
					callNames[b.ID] = b.Name
				}
			}
			out = append(out, StoredMessage{
				Role:      StoredRoleAssistant,
				Content:   m.TextContent(),
				ToolCalls: toolCalls,
			})

		default:
			var text string
			var toolRows []StoredMessage
			for _, b := range m.ContentBlocks {
				switch b.Type {
				case "text":
					text += b.Text
				case "tool_result":
					toolRows = append(toolRows, StoredMessage{
						Role:       StoredRoleTool,
						Content:    b.Text,
						ToolCallID: b.ToolUseID,
						ToolName:   callNames[b.ToolUseID],
					})
				default:
					logger.Warn("skipping unknown content block type",
						slog.String("type", b.Type),
					)
				}
			}
			if text != "" {
				out = append(out, StoredMessage{Role: StoredRoleUser, Content: text})
			}
			out = append(out, toolRows...)
		}
	}
	return out
}

// FromStoredMessages rebuilds conversation messages from persisted records.
// Consecutive "tool" rows are merged into a single user message carrying
// tool_result blocks, which the provider layer translates to its wire
// format. Rows that cannot be interpreted are dropped with a warning.
func FromStoredMessages(records []StoredMessage, logger *slog.Logger) []llm.Message {
	var out []llm.Message
	var pendingResults []llm.ContentBlock

	flushResults := func() {
		if len(pendingResults) == 0 {
			return
		}
		out = append(out, llm.Message{
			Role:          llm.RoleUser,
			ContentBlocks: pendingResults,
		})
		pendingResults = nil
	}

	for _, rec := range records {
		switch rec.Role {
		case StoredRoleUser:
			flushResults()
			out = append(out, llm.Message{Role: llm.RoleUser, Content: rec.Content})

		case StoredRoleAssistant:
			flushResults()
			var blocks []llm.ContentBlock
			if rec.Content != "" {
				blocks = append(blocks, llm.TextBlock(rec.Content))
			}
			blocks = append(blocks, DecodeToolCalls(rec.ToolCalls, logger)...)
			if len(blocks) == 0 {
				logger.Warn("dropping empty assistant record")
				continue
			}
			out = append(out, llm.Message{Role: llm.RoleAssistant, ContentBlocks: blocks})

		case StoredRoleTool:
			if rec.ToolCallID == "" {
				logger.Warn("dropping tool record without a call ID",
					slog.String("tool", rec.ToolName),
				)
				continue
			}
			if len(out) == 0 {
				// The history window cut between a tool-call message and
				// its results; a result whose call is outside the window
				// cannot be replayed.
				logger.Warn("dropping tool record orphaned by the history window",
					slog.String("tool_call_id", rec.ToolCallID),
				)
				continue
			}
			pendingResults = append(pendingResults, llm.ToolResultBlock(rec.ToolCallID, rec.Content, false))

		default:
			logger.Warn("dropping record with unknown role",
				slog.String("role", rec.Role),
			)
		}
	}
	flushResults()
	return out
}
