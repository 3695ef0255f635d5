package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message and print the full reply",
	Long: `Send one message to POST /chat and print the aggregated reply.

If no message is given as arguments it is read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		if message == "" {
			input, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading from stdin: %w", err)
			}
			message = strings.TrimSpace(string(input))
		}
		if message == "" {
			return fmt.Errorf("message is required")
		}

		client := newRelayClient(serverURL)
		reply, err := client.Ask(cmd.Context(), chat.ChatRequest{Message: message, SessionID: sessionID})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), reply.Message)
		color.New(color.Faint).Fprintf(os.Stderr, "session: %s\n", reply.SessionID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
