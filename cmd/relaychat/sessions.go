package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect transcripts stored by the relay",
}

// sessionsListCmd represents the sessions list command
var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := newRelayClient(serverURL).Sessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}

		ids := make([]string, 0, len(sessions))
		for id := range sessions {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMESSAGES\tLAST ACTIVITY")
		for _, id := range ids {
			messages := sessions[id]
			last := "-"
			if len(messages) > 0 {
				last = messages[len(messages)-1].Timestamp.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", id, len(messages), last)
		}
		return w.Flush()
	},
}

// sessionsShowCmd represents the sessions show command
var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		messages, err := newRelayClient(serverURL).Session(cmd.Context(), args[0])
		if errors.Is(err, errSessionNotFound) {
			return fmt.Errorf("session %s not found", args[0])
		}
		if err != nil {
			return fmt.Errorf("fetching session: %w", err)
		}

		printTranscript(cmd.OutOrStdout(), messages)
		return nil
	},
}

func printTranscript(out io.Writer, messages []chat.ChatMessage) {
	roleColors := map[chat.Role]*color.Color{
		chat.RoleUser:      color.New(color.FgGreen, color.Bold),
		chat.RoleAssistant: color.New(color.FgCyan, color.Bold),
		chat.RoleSystem:    color.New(color.FgYellow, color.Bold),
	}

	for _, msg := range messages {
		c, ok := roleColors[msg.Role]
		if !ok {
			c = color.New(color.Bold)
		}
		fmt.Fprintf(out, "[%s] %s\n%s\n\n",
			msg.Timestamp.Local().Format(time.DateTime),
			c.Sprint(msg.Role),
			msg.Content,
		)
	}
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
