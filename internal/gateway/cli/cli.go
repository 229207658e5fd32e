// Package cli implements the interactive chat REPL for Kazi.
package cli

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jkaninda/kazi/internal/agent"
)

const defaultUserID = "cli-user"

// Gateway is the interactive command-line interface. A single session
// keeps one conversation, so the assistant remembers earlier turns.
type Gateway struct {
	agent  agent.Agent
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	userID string
	done   chan struct{} // closed by Stop to signal shutdown

	conversationID string // persistent for the entire session
	showToolCalls  bool
}

// NewGateway creates a CLI gateway backed by the given agent.
func NewGateway(a agent.Agent, logger *slog.Logger) *Gateway {
	return &Gateway{
		agent:  a,
		logger: logger,
		in:     os.Stdin,
		out:    os.Stdout,
		userID: defaultUserID,
		done:   make(chan struct{}),
	}
}

// WithUser overrides the user identity for the session.
func (g *Gateway) WithUser(userID string) *Gateway {
	if userID != "" {
		g.userID = userID
	}
	return g
}

// WithToolCallDisplay toggles printing of tool invocations after each reply.
func (g *Gateway) WithToolCallDisplay(show bool) *Gateway {
	g.showToolCalls = show
	return g
}

// Start runs the interactive REPL. Blocks until ctx is cancelled,
// Stop is called, or the user types "exit".
func (g *Gateway) Start(ctx context.Context) error {
	scanner := bufio.NewScanner(g.in)

	fmt.Fprintln(g.out, "Kazi conversational task assistant")
	fmt.Fprintln(g.out, "Type your message (or \"exit\" to quit, \"new\" to start a fresh conversation).")
	fmt.Fprintln(g.out)

	for {
		fmt.Fprint(g.out, "kazi> ")

		// Check for context cancellation or Stop signal between prompts.
		select {
		case <-ctx.Done():
			fmt.Fprintln(g.out, "\nShutting down.")
			return nil
		case <-g.done:
			fmt.Fprintln(g.out, "\nShutting down.")
			return nil
		default:
		}

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			fmt.Fprintln(g.out, "Goodbye.")
			return nil
		}
		if line == "new" {
			g.conversationID = ""
			fmt.Fprintln(g.out, "Started a new conversation.")
			continue
		}

		correlationID := newCorrelationID()

		g.logger.DebugContext(ctx, "cli request",
			slog.String("user_id", g.userID),
			slog.String("correlation_id", correlationID),
		)

		resp, err := g.agent.Process(ctx, &agent.Input{
			UserID:         g.userID,
			Message:        line,
			CorrelationID:  correlationID,
			ConversationID: g.conversationID,
		})
		if err != nil {
			g.logger.ErrorContext(ctx, "agent processing failed",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		// Later turns reuse the conversation the first turn created.
		g.conversationID = resp.ConversationID

		fmt.Fprintln(g.out)
		fmt.Fprintln(g.out, resp.Message)

		if g.showToolCalls && len(resp.ToolCalls) > 0 {
			for _, tc := range resp.ToolCalls {
				fmt.Fprintf(g.out, "[tool: %s]\n", tc.Tool)
			}
		}

		fmt.Fprintln(g.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// Stop signals the REPL to exit at the next prompt.
func (g *Gateway) Stop() {
	close(g.done)
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
