package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	sessionID string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relaychat",
	Short: "Terminal client for the chat relay",
	Long: `relaychat talks to a running chat relay.

Use 'relaychat chat' for an interactive streaming conversation over WebSocket,
'relaychat ask' for a single request/response turn, and 'relaychat sessions'
to inspect stored transcripts.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOrDefault("RELAY_SERVER", "http://localhost:8000"), "relay base URL")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	Execute()
}
