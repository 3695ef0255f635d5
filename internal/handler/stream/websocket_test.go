package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/ai"
	"github.com/zhouzirui/chat-relay/backend/internal/service/ai/aitest"
	chatservice "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
)

func newTestGenerator(upstream *aitest.ChatModel) (*ai.Service, *chatservice.Service) {
	chatSvc := chatservice.NewService()
	return ai.NewServiceWithModel(upstream, chatSvc, config.AIConfig{SystemPrompt: "test"}), chatSvc
}

func dialWebSocket(t *testing.T, generator ai.Generator) *websocket.Conn {
	t.Helper()

	r := chi.NewRouter()
	NewWebSocketHandler(generator, nil).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readTurn(t *testing.T, conn *websocket.Conn) []chat.Event {
	t.Helper()

	var events []chat.Event
	for {
		var event chat.Event
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read event: %v", err)
		}
		events = append(events, event)
		if event.Finished {
			return events
		}
	}
}

func TestWebSocketStreamsFramesInOrder(t *testing.T) {
	generator, _ := newTestGenerator(&aitest.ChatModel{Fragments: []string{"Hel", "lo"}})
	conn := dialWebSocket(t, generator)

	if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := readTurn(t, conn)
	if len(events) != 3 {
		t.Fatalf("expected 3 frames, got %d: %+v", len(events), events)
	}

	want := []chat.Event{
		{SessionID: events[0].SessionID, Content: "Hel"},
		{SessionID: events[0].SessionID, Content: "lo"},
		{SessionID: events[0].SessionID, Content: "", Finished: true},
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("frame %d: got %+v want %+v", i, events[i], want[i])
		}
	}
	if events[0].SessionID == "" {
		t.Fatal("expected session id on frames")
	}
}

func TestWebSocketKeepsConnectionAcrossTurns(t *testing.T) {
	generator, chatSvc := newTestGenerator(&aitest.ChatModel{Fragments: []string{"ok"}})
	conn := dialWebSocket(t, generator)

	if err := conn.WriteJSON(map[string]string{"message": "one"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := readTurn(t, conn)
	sessionID := first[0].SessionID

	if err := conn.WriteJSON(map[string]string{"message": "two", "session_id": sessionID}); err != nil {
		t.Fatalf("write: %v", err)
	}
	second := readTurn(t, conn)
	for _, event := range second {
		if event.SessionID != sessionID {
			t.Fatalf("expected session %s, got %s", sessionID, event.SessionID)
		}
	}

	session, err := chatSvc.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if len(session.Messages) != 4 {
		t.Fatalf("expected 4 transcript entries, got %d", len(session.Messages))
	}
}

func TestWebSocketMalformedPayloadSendsErrorAndCloses(t *testing.T) {
	generator, _ := newTestGenerator(&aitest.ChatModel{Fragments: []string{"ok"}})
	conn := dialWebSocket(t, generator)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var frame map[string]string
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if frame["error"] == "" {
		t.Fatalf("expected error field, got %s", data)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed after error frame")
	}
}

func TestWebSocketUpstreamFailureIsATerminalFrame(t *testing.T) {
	generator, _ := newTestGenerator(&aitest.ChatModel{OpenErr: errString("upstream down")})
	conn := dialWebSocket(t, generator)

	if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	events := readTurn(t, conn)
	if len(events) != 1 || !strings.Contains(events[0].Content, "upstream down") {
		t.Fatalf("unexpected frames: %+v", events)
	}

	// The connection stays usable after a failed turn.
	if err := conn.WriteJSON(map[string]string{"message": "again"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if again := readTurn(t, conn); len(again) != 1 {
		t.Fatalf("unexpected frames on retry: %+v", again)
	}
}

func TestWebSocketClientDisconnectMidTurn(t *testing.T) {
	gate := make(chan struct{})
	generator, chatSvc := newTestGenerator(&aitest.ChatModel{Fragments: []string{"Hel", "lo"}, Gate: gate})
	conn := dialWebSocket(t, generator)

	if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var first chat.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.Content != "Hel" || first.SessionID == "" {
		t.Fatalf("unexpected first frame: %+v", first)
	}

	conn.Close()
	close(gate)

	deadline := time.Now().Add(5 * time.Second)
	for {
		session, err := chatSvc.GetSession(context.Background(), first.SessionID)
		if err != nil {
			t.Fatalf("GetSession err: %v", err)
		}
		if len(session.Messages) == 2 {
			if got := session.Messages[1]; got.Role != chat.RoleAssistant || got.Content != "Hello" {
				t.Fatalf("unexpected assistant entry: %+v", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("assistant reply was not recorded, transcript: %+v", session.Messages)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketLogsAbnormalClose(t *testing.T) {
	logs := &syncBuffer{}
	log.SetOutput(logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	generator, _ := newTestGenerator(&aitest.ChatModel{Fragments: []string{"ok"}})
	conn := dialWebSocket(t, generator)

	// Drop the TCP connection without a close frame.
	conn.UnderlyingConn().Close()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(logs.String(), "[websocket] read error") {
		if time.Now().After(deadline) {
			t.Fatalf("expected abnormal close to be logged, got %q", logs.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type errString string

func (e errString) Error() string { return string(e) }
