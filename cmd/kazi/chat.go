package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/kazi/internal/config"
	"github.com/jkaninda/kazi/internal/gateway/cli"
)

var (
	chatConfigPath string
	chatUserID     string
	chatShowTools  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session in the terminal. The assistant keeps
one conversation for the whole session, so it remembers earlier turns.
Type "new" to start over, or "exit" to quit.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	chatCmd.Flags().StringVar(&chatUserID, "user", "", "user identity for the session (default: cli-user)")
	chatCmd.Flags().BoolVar(&chatShowTools, "show-tools", false, "print tool invocations after each reply")
}

// runChat starts an interactive REPL backed by the local agent.
func runChat(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn, // Keep the REPL quiet; errors still surface.
	}))

	cfg, err := config.Load(goutils.Env("KAZI_CONFIG", chatConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repl := cli.NewGateway(sc.AgentCore, logger).
		WithUser(chatUserID).
		WithToolCallDisplay(chatShowTools)

	return repl.Start(ctx)
}
