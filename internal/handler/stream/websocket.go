package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/ai"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20
)

// WebSocketHandler 基于 WebSocket 的全双工流式聊天处理器
type WebSocketHandler struct {
	generator ai.Generator
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(generator ai.Generator, checkOrigin func(r *http.Request) bool) *WebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &WebSocketHandler{
		generator: generator,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleWebSocket)
}

type errorFrame struct {
	Error string `json:"error"`
}

// handleWebSocket 处理WebSocket连接：每收到一条消息驱动一轮生成并逐帧转发
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[websocket] read error: %v", err)
				}
				return
			}
			h.sendError(conn, err.Error())
			return
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))

		var request chat.ChatRequest
		if err := json.Unmarshal(data, &request); err != nil {
			h.sendError(conn, fmt.Sprintf("invalid message payload: %v", err))
			return
		}

		if err := h.relayTurn(ctx, conn, request); err != nil {
			var inputErr inputError
			if errors.As(err, &inputErr) {
				h.sendError(conn, err.Error())
				return
			}
			log.Printf("[websocket] turn aborted: %v", err)
			return
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// inputError marks a turn rejected before any generation started.
type inputError struct{ err error }

func (e inputError) Error() string { return e.err.Error() }
func (e inputError) Unwrap() error { return e.err }

// relayTurn drives one generation and forwards each event as soon as it is
// produced.
func (h *WebSocketHandler) relayTurn(ctx context.Context, conn *websocket.Conn, request chat.ChatRequest) error {
	if h.generator == nil {
		return inputError{errors.New("ai service unavailable")}
	}

	reader, err := h.generator.Generate(ctx, request.Input().Messages(), request.SessionID)
	if err != nil {
		return inputError{err}
	}
	defer reader.Close()

	for {
		event, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive event: %w", err)
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(errorFrame{Error: message}); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
