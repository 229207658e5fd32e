package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/kazi/internal/llm"
	"github.com/jkaninda/kazi/internal/observability"
	"github.com/jkaninda/kazi/internal/tools"
)

// exhaustedRoundsMessage is returned when the model keeps requesting tools
// past the round limit.
const exhaustedRoundsMessage = "I'm sorry, I wasn't able to finish that within the allowed number of tool steps. Please try again, or break the request into smaller pieces."

// modelFailureMessage is persisted when the model cannot be reached even
// after retries, so the conversation always ends a turn with an assistant
// message.
const modelFailureMessage = "I'm sorry, I couldn't reach the language model to process your request. Your message has been saved; please try again in a moment."

// DefaultTurnTimeout bounds a single conversational turn, model calls and
// tool dispatch included.
const DefaultTurnTimeout = 2 * time.Minute

var _ Agent = (*Orchestrator)(nil)

// Orchestrator drives the turn loop: persist the user message, call the
// model, dispatch any requested tools in order, feed results back, and
// repeat until the model answers in text or the round limit is reached.
type Orchestrator struct {
	provider     llm.Provider
	systemPrompt string
	logger       *slog.Logger

	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	store      ConversationStore
	obs        *observability.Observability

	maxToolRounds      int
	maxHistoryMessages int
	maxMessageBytes    int
	turnTimeout        time.Duration
}

// NewOrchestrator creates the agent core. Tools and a conversation store
// are wired with the With* builders.
func NewOrchestrator(provider llm.Provider, systemPrompt string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		provider:           provider,
		systemPrompt:       systemPrompt,
		logger:             logger,
		maxToolRounds:      DefaultMaxToolRounds,
		maxHistoryMessages: DefaultMaxHistoryMessages,
		maxMessageBytes:    DefaultMaxMessageBytes,
		turnTimeout:        DefaultTurnTimeout,
	}
}

// WithTools wires the tool catalog and dispatcher.
func (o *Orchestrator) WithTools(registry *tools.Registry, dispatcher *tools.Dispatcher) *Orchestrator {
	o.registry = registry
	o.dispatcher = dispatcher
	return o
}

// WithConversationStore wires conversation persistence.
func (o *Orchestrator) WithConversationStore(store ConversationStore) *Orchestrator {
	o.store = store
	return o
}

// WithObservability wires metrics and tracing.
func (o *Orchestrator) WithObservability(obs *observability.Observability) *Orchestrator {
	o.obs = obs
	return o
}

// WithMaxToolRounds overrides the tool-use round limit.
func (o *Orchestrator) WithMaxToolRounds(n int) *Orchestrator {
	if n > 0 {
		o.maxToolRounds = n
	}
	return o
}

// WithMaxHistoryMessages overrides how much history is loaded per turn.
func (o *Orchestrator) WithMaxHistoryMessages(n int) *Orchestrator {
	if n > 0 {
		o.maxHistoryMessages = n
	}
	return o
}

// WithMaxMessageBytes overrides the per-message content cap.
func (o *Orchestrator) WithMaxMessageBytes(n int) *Orchestrator {
	if n > 0 {
		o.maxMessageBytes = n
	}
	return o
}

// WithTurnTimeout overrides the per-turn deadline.
func (o *Orchestrator) WithTurnTimeout(d time.Duration) *Orchestrator {
	if d > 0 {
		o.turnTimeout = d
	}
	return o
}

// Process runs one conversational turn.
func (o *Orchestrator) Process(ctx context.Context, input *Input) (*Response, error) {
	if o.store == nil {
		return nil, fmt.Errorf("no conversation store configured")
	}

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	var span trace.Span
	if tracer := o.obs.TracerOrNil(); tracer != nil {
		ctx, span = tracer.Start(ctx, "agent.process",
			trace.WithAttributes(
				attribute.String("user_id", input.UserID),
				attribute.String("correlation_id", input.CorrelationID),
			),
		)
		defer span.End()
	}

	o.logger.DebugContext(ctx, "processing turn",
		slog.String("user_id", input.UserID),
		slog.String("correlation_id", input.CorrelationID),
	)

	convID := uuid.New()
	if input.ConversationID != "" {
		parsed, err := uuid.Parse(input.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("invalid conversation ID: %w", err)
		}
		convID = parsed
	}

	convID, err := o.store.GetOrCreateConversation(ctx, input.UserID, convID)
	if err != nil {
		return nil, err
	}

	history, err := o.store.LoadHistory(ctx, convID, o.maxHistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	// The user message is persisted before the model is called so that a
	// model failure never loses user input.
	userMsg := llm.Message{Role: llm.RoleUser, Content: o.truncateContent(input.Message)}
	if err := o.store.AppendMessages(ctx, convID, input.UserID, []llm.Message{userMsg}); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}
	history = append(history, userMsg)
	history = o.truncateHistory(history)

	var toolDefs []llm.ToolDefinition
	if o.registry != nil {
		toolDefs = tools.ToLLMDefinitions(o.registry)
	}

	var records []ToolCallRecord
	tokensUsed := 0

	for round := 0; round < o.maxToolRounds; round++ {
		resp, err := o.sendToModel(ctx, &llm.Request{
			SystemPrompt: o.systemPrompt,
			Messages:     history,
			Tools:        toolDefs,
		})
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "model call failed")
			}
			o.logger.ErrorContext(ctx, "model call failed",
				slog.String("correlation_id", input.CorrelationID),
				slog.String("error", err.Error()),
			)
			// Persist on a detached context: the turn deadline may be the
			// reason the model call failed, but the conversation must still
			// end with an assistant message.
			persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			o.persist(persistCtx, convID, input.UserID, llm.Message{Role: llm.RoleAssistant, Content: modelFailureMessage})
			persistCancel()

			return &Response{
				ConversationID: convID.String(),
				Message:        modelFailureMessage,
				ToolCalls:      records,
				TokensUsed:     tokensUsed,
			}, nil
		}
		tokensUsed += resp.Usage.InputTokens + resp.Usage.OutputTokens

		assistantMsg := llm.Message{Role: llm.RoleAssistant, ContentBlocks: resp.ContentBlocks}

		if !resp.HasToolUse() {
			o.persist(ctx, convID, input.UserID, assistantMsg)
			return &Response{
				ConversationID: convID.String(),
				Message:        resp.Content,
				ToolCalls:      records,
				TokensUsed:     tokensUsed,
			}, nil
		}

		toolUses := resp.ToolUseBlocks()
		o.logger.InfoContext(ctx, "executing tool calls",
			slog.Int("round", round+1),
			slog.Int("tool_calls", len(toolUses)),
			slog.String("correlation_id", input.CorrelationID),
		)

		resultBlocks, roundRecords := o.executeToolCalls(ctx, input.UserID, toolUses)
		records = append(records, roundRecords...)

		toolMsg := llm.Message{Role: llm.RoleUser, ContentBlocks: resultBlocks}
		o.persist(ctx, convID, input.UserID, assistantMsg, toolMsg)

		history = append(history, assistantMsg, toolMsg)
		history = o.truncateHistory(history)
	}

	o.logger.WarnContext(ctx, "max tool-use rounds reached",
		slog.String("correlation_id", input.CorrelationID),
		slog.Int("max_rounds", o.maxToolRounds),
	)
	o.persist(ctx, convID, input.UserID, llm.Message{Role: llm.RoleAssistant, Content: exhaustedRoundsMessage})

	return &Response{
		ConversationID: convID.String(),
		Message:        exhaustedRoundsMessage,
		ToolCalls:      records,
		TokensUsed:     tokensUsed,
	}, nil
}

// sendToModel calls the provider and records instrumentation.
func (o *Orchestrator) sendToModel(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := o.provider.SendMessage(ctx, req)

	if m := o.obs.MetricsOrNil(); m != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.LLMRequestsTotal.WithLabelValues(o.provider.Name(), status).Inc()
		m.LLMRequestDuration.WithLabelValues(o.provider.Name()).Observe(time.Since(start).Seconds())
		if err == nil {
			m.LLMTokensUsed.WithLabelValues(o.provider.Name(), "input").Add(float64(resp.Usage.InputTokens))
			m.LLMTokensUsed.WithLabelValues(o.provider.Name(), "output").Add(float64(resp.Usage.OutputTokens))
		}
	}
	return resp, err
}

// executeToolCalls dispatches the model's tool calls sequentially, in the
// order they were requested, and shapes the results for the next model turn.
func (o *Orchestrator) executeToolCalls(ctx context.Context, userID string, blocks []llm.ContentBlock) ([]llm.ContentBlock, []ToolCallRecord) {
	toolCtx := tools.ContextWithUserID(ctx, userID)

	resultBlocks := make([]llm.ContentBlock, 0, len(blocks))
	records := make([]ToolCallRecord, 0, len(blocks))

	for _, block := range blocks {
		start := time.Now()
		result := o.dispatcher.Dispatch(toolCtx, block.Name, block.Input)

		if m := o.obs.MetricsOrNil(); m != nil {
			status := "ok"
			if !result.Success {
				status = "error"
			}
			m.ToolExecutionsTotal.WithLabelValues(block.Name, status).Inc()
			m.ToolExecutionDuration.WithLabelValues(block.Name).Observe(time.Since(start).Seconds())
		}

		output := tools.TruncateOutput(result.JSON(), tools.MaxOutputBytes)
		resultBlocks = append(resultBlocks, llm.ToolResultBlock(block.ID, output, !result.Success))
		records = append(records, ToolCallRecord{
			Tool:      block.Name,
			Arguments: block.Input,
			Result:    result,
		})
	}
	return resultBlocks, records
}

// persist appends messages to the conversation. Failures are logged rather
// than surfaced: by this point the turn has already produced its answer.
func (o *Orchestrator) persist(ctx context.Context, convID uuid.UUID, userID string, msgs ...llm.Message) {
	if err := o.store.AppendMessages(ctx, convID, userID, msgs); err != nil {
		o.logger.ErrorContext(ctx, "persisting conversation messages",
			slog.String("conversation_id", convID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// truncateHistory keeps the most recent messages within the limit. A window
// must never start on tool results whose tool-call message was cut off: the
// model rejects a result referencing a call it cannot see. The store applies
// its own row window, so orphans are stripped even when no trimming happens
// here.
func (o *Orchestrator) truncateHistory(history []llm.Message) []llm.Message {
	if len(history) > o.maxHistoryMessages {
		history = history[len(history)-o.maxHistoryMessages:]
	}
	for len(history) > 0 && hasToolResult(history[0]) {
		history = history[1:]
	}
	return history
}

func hasToolResult(m llm.Message) bool {
	for _, b := range m.ContentBlocks {
		if b.Type == "tool_result" {
			return true
		}
	}
	return false
}

// truncateContent caps a message body at the configured byte limit.
func (o *Orchestrator) truncateContent(content string) string {
	if len(content) <= o.maxMessageBytes {
		return content
	}
	return content[:o.maxMessageBytes] + "\n[message truncated]"
}
