package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/kazi/internal/config"
	"github.com/jkaninda/kazi/internal/gateway/mcpserver"
	"github.com/jkaninda/kazi/internal/tools"
)

var (
	mcpConfigPath string
	mcpUserID     string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the task tools over MCP stdio",
	Long: `Expose the task tools as a Model Context Protocol server on stdio, so
MCP clients (editors, other agents) can manage the task list directly.
All calls run as a single configured user.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	mcpCmd.Flags().StringVar(&mcpUserID, "user", "mcp-user", "user identity for all tool calls")
}

// runMCP serves the tool catalog over stdio. Stdout carries the protocol,
// so all logging goes to stderr.
func runMCP(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.Load(goutils.Env("KAZI_CONFIG", mcpConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	dispatcher := tools.NewDispatcher(sc.ToolReg, logger)
	srv := mcpserver.New(sc.ToolReg, dispatcher, mcpUserID, version, logger)
	return srv.ServeStdio()
}
