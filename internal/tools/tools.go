// Package tools defines the tool interface the LLM can invoke, the catalog
// that holds registered tools, and the dispatcher that executes tool calls
// and shapes their results.
package tools

import (
	"context"
	"sync"

	"github.com/jkaninda/kazi/internal/llm"
)

// MaxOutputBytes caps the serialized result size fed back to the model.
const MaxOutputBytes = 1 << 20 // 1 MiB

// Tool is the interface all LLM-invocable tools implement.
type Tool interface {
	// Name returns the unique tool name (e.g. "add_task").
	Name() string

	// Description returns a human-readable description sent to the LLM.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's parameters.
	// The catalog sanitizes it before handing it to the model.
	InputSchema() map[string]any

	// Validate checks that params are well-formed before execution.
	Validate(params map[string]any) error

	// Execute runs the tool. The acting user is carried in the context.
	// Returned data must be JSON-serializable; domain failures are errors.
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// contextKey is an unexported type for context values to avoid collisions.
type contextKey int

const userIDKey contextKey = iota

// ContextWithUserID returns a context carrying the acting user's ID.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the acting user's ID from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// Registry is a thread-safe catalog of registered tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool catalog.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on duplicate names: registration happens
// at startup and a duplicate is a programming error.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the names of all registered tools.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// All returns all registered tools.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		all = append(all, t)
	}
	return all
}

// ToLLMDefinitions converts the catalog into LLM tool definitions,
// sanitizing each schema on the way out.
func ToLLMDefinitions(r *Registry) []llm.ToolDefinition {
	all := r.All()
	defs := make([]llm.ToolDefinition, 0, len(all))
	for _, t := range all {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: SanitizeSchema(t.InputSchema()),
		})
	}
	return defs
}

// TruncateOutput caps a string at maxBytes, appending a marker when truncated.
func TruncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n... [output truncated]"
}
