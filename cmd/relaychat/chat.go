package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// frame is either a generation event or a connection-level error.
type frame struct {
	chat.Event
	Error string `json:"error,omitempty"`
}

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive streaming conversation",
	Long: `Open a WebSocket to the relay and chat interactively.

Replies are printed as the tokens arrive. The session id from the first reply
is reused for every following turn. Type 'exit' or press Ctrl+D to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newRelayClient(serverURL)
		wsURL, err := client.WebSocketURL()
		if err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", wsURL, err)
		}
		defer conn.Close()

		out := cmd.OutOrStdout()
		you := color.New(color.FgGreen, color.Bold).SprintFunc()
		bot := color.New(color.FgCyan, color.Bold).SprintFunc()

		fmt.Fprintf(out, "Connected to %s\n", wsURL)
		current := sessionID
		scanner := bufio.NewScanner(cmd.InOrStdin())

		for {
			fmt.Fprint(out, you("You: "))
			if !scanner.Scan() {
				break
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if text == "exit" || text == "quit" {
				break
			}

			if err := conn.WriteJSON(chat.ChatRequest{Message: text, SessionID: current}); err != nil {
				return fmt.Errorf("send message: %w", err)
			}

			fmt.Fprint(out, bot("AI: "))
			next, err := streamReply(conn, out)
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if current == "" {
				color.New(color.Faint).Fprintf(out, "session: %s\n", next)
			}
			current = next
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
		return nil
	},
}

// streamReply prints frames until the finished frame of the current turn and
// returns the session id it carried.
func streamReply(conn *websocket.Conn, out io.Writer) (string, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("read reply: %w", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			return "", fmt.Errorf("decode reply: %w", err)
		}
		if f.Error != "" {
			return "", fmt.Errorf("relay error: %s", f.Error)
		}

		fmt.Fprint(out, f.Content)
		if f.Finished {
			return f.SessionID, nil
		}
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
