package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/kazi/internal/tasks"
)

// Result error codes returned to the model.
const (
	CodeUnknownTool     = "UNKNOWN_TOOL"
	CodeValidationError = "VALIDATION_ERROR"
	CodeTaskNotFound    = "TASK_NOT_FOUND"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Result is the structured outcome of one tool call. Dispatch never fails
// with an error: every failure mode is folded into a Result so the model
// always receives well-formed feedback.
type Result struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

// ResultError describes a failed tool call.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON serializes the result for the model. Serialization itself cannot
// fail because Dispatch encodes all data through encodeValue first.
func (r *Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":{"code":%q,"message":"result serialization failed"}}`, CodeInternalError)
	}
	return string(b)
}

// Dispatcher executes tool calls against the catalog.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given catalog.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch looks up and executes one tool call for the user carried in ctx.
// A panicking handler is contained here and reported as an INTERNAL_ERROR
// result; nothing a tool does can crash the turn.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, params map[string]any) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "tool panicked",
				slog.String("tool", name),
				slog.Any("panic", r),
			)
			result = errorResult(CodeInternalError, fmt.Sprintf("tool %s panicked: %v", name, r))
		}
	}()

	tool, ok := d.registry.Get(name)
	if !ok {
		d.logger.WarnContext(ctx, "unknown tool requested", slog.String("tool", name))
		return errorResult(CodeUnknownTool, fmt.Sprintf("unknown tool: %s", name))
	}

	if params == nil {
		params = map[string]any{}
	}

	if err := tool.Validate(params); err != nil {
		return errorResult(CodeValidationError, err.Error())
	}

	start := time.Now()
	data, err := tool.Execute(ctx, params)
	if err != nil {
		code := classifyError(err)
		d.logger.WarnContext(ctx, "tool execution failed",
			slog.String("tool", name),
			slog.String("code", code),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return errorResult(code, err.Error())
	}

	d.logger.DebugContext(ctx, "tool executed",
		slog.String("tool", name),
		slog.Duration("duration", time.Since(start)),
	)

	return &Result{Success: true, Data: encodeValue(data)}
}

func errorResult(code, message string) *Result {
	return &Result{Success: false, Error: &ResultError{Code: code, Message: message}}
}

// classifyError maps domain errors to result codes.
func classifyError(err error) string {
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return CodeTaskNotFound
	case errors.Is(err, tasks.ErrStorage):
		return CodeDatabaseError
	default:
		return CodeInternalError
	}
}

// encodeValue normalizes a value for JSON encoding: timestamps become
// RFC 3339 strings and anything that cannot be marshaled is stringified.
func encodeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = encodeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = encodeValue(inner)
		}
		return out
	default:
		if _, err := json.Marshal(val); err != nil {
			return fmt.Sprintf("%v", val)
		}
		return val
	}
}
