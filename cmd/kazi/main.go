// Kazi is a conversational task assistant with LLM tool calling.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kazi",
	Short: "Kazi is a conversational assistant that manages your tasks through natural language.",
	Long: `Kazi is a conversational task assistant. It drives an LLM function-calling
loop over a personal todo list: you chat in plain language, and the model
creates, lists, updates, completes, and deletes tasks on your behalf.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, chatCmd, queryCmd, mcpCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
