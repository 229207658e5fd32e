package agent

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/jkaninda/kazi/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeToolCalls_CanonicalShape(t *testing.T) {
	blocks := []llm.ContentBlock{
		llm.TextBlock("Let me add that."),
		llm.ToolUseBlock("call_1", "add_task", map[string]any{"title": "Buy milk"}),
	}

	raw := EncodeToolCalls(blocks)
	if raw == nil {
		t.Fatal("expected encoded tool calls")
	}

	var calls []map[string]any
	if err := json.Unmarshal(raw, &calls); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0]["type"] != "function" {
		t.Errorf("expected type function, got %v", calls[0]["type"])
	}
	fn := calls[0]["function"].(map[string]any)
	if fn["name"] != "add_task" {
		t.Errorf("expected name add_task, got %v", fn["name"])
	}
	// Arguments must be a JSON string, not an inline object.
	argsStr, ok := fn["arguments"].(string)
	if !ok {
		t.Fatalf("expected string arguments, got %T", fn["arguments"])
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
		t.Fatalf("arguments are not valid JSON: %v", err)
	}
	if args["title"] != "Buy milk" {
		t.Errorf("unexpected arguments: %+v", args)
	}
}

func TestEncodeToolCalls_NilWhenNone(t *testing.T) {
	if raw := EncodeToolCalls([]llm.ContentBlock{llm.TextBlock("hi")}); raw != nil {
		t.Errorf("expected nil for messages without tool calls, got %s", raw)
	}
}

func TestDecodeToolCalls_CanonicalShape(t *testing.T) {
	raw := []byte(`[{"id":"call_1","type":"function","function":{"name":"add_task","arguments":"{\"title\":\"Buy milk\"}"}}]`)

	blocks := DecodeToolCalls(raw, discardLogger())
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Name != "add_task" || blocks[0].ID != "call_1" {
		t.Errorf("unexpected block: %+v", blocks[0])
	}
	if blocks[0].Input["title"] != "Buy milk" {
		t.Errorf("unexpected input: %+v", blocks[0].Input)
	}
}

func TestDecodeToolCalls_LegacyFlatShape(t *testing.T) {
	raw := []byte(`[{"id":"call_2","name":"complete_task","arguments":{"task_id":7}}]`)

	blocks := DecodeToolCalls(raw, discardLogger())
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Name != "complete_task" {
		t.Errorf("expected complete_task, got %q", blocks[0].Name)
	}
	if blocks[0].Input["task_id"] != float64(7) {
		t.Errorf("unexpected input: %+v", blocks[0].Input)
	}
}

func TestDecodeToolCalls_DropsMalformed(t *testing.T) {
	raw := []byte(`[
		{"id":"bad_1"},
		{"id":"bad_2","function":{"name":"add_task","arguments":"{not json"}},
		{"id":"ok","type":"function","function":{"name":"list_tasks","arguments":"{}"}}
	]`)

	blocks := DecodeToolCalls(raw, discardLogger())
	if len(blocks) != 1 {
		t.Fatalf("expected only the valid record, got %d blocks", len(blocks))
	}
	if blocks[0].Name != "list_tasks" {
		t.Errorf("expected list_tasks, got %q", blocks[0].Name)
	}
}

func TestDecodeToolCalls_UnparsableList(t *testing.T) {
	if blocks := DecodeToolCalls([]byte(`{"not":"a list"}`), discardLogger()); blocks != nil {
		t.Errorf("expected nil for unparsable list, got %+v", blocks)
	}
}

func TestStoredMessageRoundTrip(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "add buy milk to my list"},
		{
			Role: llm.RoleAssistant,
			ContentBlocks: []llm.ContentBlock{
				llm.ToolUseBlock("call_1", "add_task", map[string]any{"title": "Buy milk"}),
			},
		},
		{
			Role: llm.RoleUser,
			ContentBlocks: []llm.ContentBlock{
				llm.ToolResultBlock("call_1", `{"success":true}`, false),
			},
		},
		{Role: llm.RoleAssistant, ContentBlocks: []llm.ContentBlock{llm.TextBlock("Added!")}},
	}

	records := ToStoredMessages(msgs, discardLogger())
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if records[2].Role != StoredRoleTool {
		t.Errorf("expected tool row, got %q", records[2].Role)
	}
	if records[2].ToolName != "add_task" {
		t.Errorf("expected resolved tool name, got %q", records[2].ToolName)
	}
	if records[3].ToolCalls != nil {
		t.Errorf("expected no tool-call list on plain assistant row, got %s", records[3].ToolCalls)
	}

	rebuilt := FromStoredMessages(records, discardLogger())
	if len(rebuilt) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(rebuilt))
	}
	if rebuilt[1].Role != llm.RoleAssistant || len(rebuilt[1].ContentBlocks) != 1 {
		t.Errorf("unexpected assistant message: %+v", rebuilt[1])
	}
	if rebuilt[2].Role != llm.RoleUser {
		t.Errorf("expected tool results as user message, got %q", rebuilt[2].Role)
	}
	if rebuilt[2].ContentBlocks[0].ToolUseID != "call_1" {
		t.Errorf("unexpected tool result block: %+v", rebuilt[2].ContentBlocks[0])
	}
	if rebuilt[3].TextContent() != "Added!" {
		t.Errorf("unexpected final message: %+v", rebuilt[3])
	}
}

func TestFromStoredMessages_MergesConsecutiveToolRows(t *testing.T) {
	records := []StoredMessage{
		{Role: StoredRoleAssistant, ToolCalls: []byte(`[
			{"id":"call_1","type":"function","function":{"name":"add_task","arguments":"{}"}},
			{"id":"call_2","type":"function","function":{"name":"list_tasks","arguments":"{}"}}
		]`)},
		{Role: StoredRoleTool, Content: `{"success":true}`, ToolCallID: "call_1"},
		{Role: StoredRoleTool, Content: `{"success":true}`, ToolCallID: "call_2"},
	}

	msgs := FromStoredMessages(records, discardLogger())
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if len(msgs[1].ContentBlocks) != 2 {
		t.Errorf("expected both results merged, got %d blocks", len(msgs[1].ContentBlocks))
	}
}

func TestFromStoredMessages_DropsLeadingOrphanedToolRows(t *testing.T) {
	// A row window that cut between an assistant tool-call row and its
	// results: the results reference a call the model cannot see.
	records := []StoredMessage{
		{Role: StoredRoleTool, Content: `{"success":true}`, ToolCallID: "call_1"},
		{Role: StoredRoleAssistant, Content: "Added it."},
		{Role: StoredRoleUser, Content: "thanks"},
	}

	msgs := FromStoredMessages(records, discardLogger())
	if len(msgs) != 2 {
		t.Fatalf("expected orphaned result dropped, got %d messages", len(msgs))
	}
	for _, m := range msgs {
		for _, b := range m.ContentBlocks {
			if b.Type == "tool_result" {
				t.Fatalf("orphaned tool result survived: %+v", m)
			}
		}
	}
	if msgs[0].Role != llm.RoleAssistant || msgs[0].TextContent() != "Added it." {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
}

func TestFromStoredMessages_DropsBadRecords(t *testing.T) {
	records := []StoredMessage{
		{Role: StoredRoleUser, Content: "hello"},
		{Role: StoredRoleAssistant}, // no content, no calls
		{Role: StoredRoleTool, Content: "orphan"},
		{Role: "system", Content: "bogus role"},
		{Role: StoredRoleAssistant, Content: "hi there"},
	}

	msgs := FromStoredMessages(records, discardLogger())
	if len(msgs) != 2 {
		t.Fatalf("expected 2 surviving messages, got %d", len(msgs))
	}
	if msgs[1].TextContent() != "hi there" {
		t.Errorf("unexpected survivor: %+v", msgs[1])
	}
}
