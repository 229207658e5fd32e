package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
)

// Exit codes for the query command.
const (
	ExitSuccess           = 0
	ExitFailure           = 1
	ExitUnauthorized      = 2
	ExitServerUnavailable = 3
)

var (
	queryMessage   string
	queryServerURL string
	queryAPIKey    string
	queryTimeout   int
	queryConvID    string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Send a one-shot message to a running server",
	Long: `Send a single chat message to a running Kazi server over HTTP and print
the assistant's reply. Pass --conversation-id to continue an earlier
conversation across invocations.

Examples:
  kazi query -m "add buy milk to my list"
  kazi query -m "what's left to do?" --conversation-id 5e3c...

Exit codes:
  0  success
  1  request failure
  2  unauthorized or rate limited
  3  server unavailable`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryMessage, "message", "m", "", "message to send (required)")
	queryCmd.Flags().StringVar(&queryServerURL, "server-url", "http://localhost:8080", "Kazi server URL")
	queryCmd.Flags().StringVar(&queryAPIKey, "api-key", "", "API key for authentication (or KAZI_API_KEY env)")
	queryCmd.Flags().IntVar(&queryTimeout, "timeout", 120, "timeout in seconds")
	queryCmd.Flags().StringVar(&queryConvID, "conversation-id", "", "conversation ID for multi-turn context")

	_ = queryCmd.MarkFlagRequired("message")
}

func runQuery(_ *cobra.Command, _ []string) error {
	if queryMessage == "" {
		return fmt.Errorf("message is required: use -m flag")
	}

	// Resolve API key from flag or env.
	apiKey := goutils.Env("KAZI_API_KEY", queryAPIKey)
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required (use --api-key or set KAZI_API_KEY)")
		os.Exit(ExitUnauthorized)
	}

	serverURL := goutils.Env("KAZI_SERVER_URL", queryServerURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(queryTimeout)*time.Second)
	defer cancel()

	reqBody, _ := json.Marshal(map[string]any{
		"message":         queryMessage,
		"conversation_id": queryConvID,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", serverURL+"/v1/chat", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach server at %s: %v\n", serverURL, err)
		os.Exit(ExitServerUnavailable)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var result struct {
			Message        string `json:"message"`
			ConversationID string `json:"conversation_id"`
			CorrelationID  string `json:"correlation_id"`
		}
		_ = json.Unmarshal(respBody, &result)
		fmt.Println(result.Message)
		fmt.Fprintf(os.Stderr, "\n[conversation_id=%s correlation_id=%s]\n",
			result.ConversationID, result.CorrelationID)
		os.Exit(ExitSuccess)

	case http.StatusUnauthorized:
		fmt.Fprintln(os.Stderr, "Error: unauthorized (check API key)")
		os.Exit(ExitUnauthorized)

	case http.StatusTooManyRequests:
		fmt.Fprintln(os.Stderr, "Error: rate limited, try again later")
		os.Exit(ExitUnauthorized)

	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		fmt.Fprintf(os.Stderr, "Error: server unavailable (%d)\n", resp.StatusCode)
		os.Exit(ExitServerUnavailable)

	default:
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s\n", resp.StatusCode, string(respBody))
		os.Exit(ExitFailure)
	}

	return nil
}
