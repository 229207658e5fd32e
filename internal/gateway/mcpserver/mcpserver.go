// Package mcpserver exposes the tool catalog over the Model Context
// Protocol, so external MCP clients (editors, other agents) can call the
// same task tools the chat loop uses.
//
// The serving identity is fixed at startup: every tool call runs as the
// configured user. Stdout carries the protocol, so logs must go to stderr.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/kazi/internal/tools"
)

// Server serves the tool catalog over MCP stdio.
type Server struct {
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	userID     string
	logger     *slog.Logger

	mcp *server.MCPServer
}

// New creates an MCP server over the given catalog. All calls execute as userID.
func New(registry *tools.Registry, dispatcher *tools.Dispatcher, userID, version string, logger *slog.Logger) *Server {
	s := &Server{
		registry:   registry,
		dispatcher: dispatcher,
		userID:     userID,
		logger:     logger,
	}

	s.mcp = server.NewMCPServer("kazi", version,
		server.WithToolCapabilities(true),
	)

	for _, t := range registry.All() {
		schema, err := json.Marshal(tools.SanitizeSchema(t.InputSchema()))
		if err != nil {
			logger.Error("skipping tool with unserializable schema",
				slog.String("tool", t.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		tool := mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema)
		s.mcp.AddTool(tool, s.handler(t.Name()))
	}

	return s
}

// handler adapts one catalog tool to an MCP tool handler. All failure modes
// come back as structured results, never as protocol errors.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		s.logger.DebugContext(ctx, "mcp tool call",
			slog.String("tool", name),
			slog.String("user_id", s.userID),
		)

		ctx = tools.ContextWithUserID(ctx, s.userID)
		result := s.dispatcher.Dispatch(ctx, name, args)

		if !result.Success {
			return mcp.NewToolResultError(result.JSON()), nil
		}
		return mcp.NewToolResultText(result.JSON()), nil
	}
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout until the
// client disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server starting on stdio",
		slog.String("user_id", s.userID),
		slog.Any("tools", s.registry.List()),
	)
	return server.ServeStdio(s.mcp)
}
