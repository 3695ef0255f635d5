package chat

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/ai"
	chatService "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
	"github.com/zhouzirui/chat-relay/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	generator ai.Generator
	chatSvc   *chatService.Service
	appName   string
}

// New 创建聊天处理器。generator 为 nil 时聊天接口返回 503。
func New(generator ai.Generator, chatSvc *chatService.Service, appName string) *Handler {
	return &Handler{
		generator: generator,
		chatSvc:   chatSvc,
		appName:   appName,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleStatus)
	r.Post("/chat", h.handleChat)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/session/{sessionID}", h.handleGetSession)
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": h.appName + " running",
	})
}

// handleChat 非流式聊天：完整消费生成流后一次性返回
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai service unavailable")
		return
	}

	var payload chat.ChatRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, err := h.generator.Generate(r.Context(), payload.Input().Messages(), payload.SessionID)
	if err != nil {
		if errors.Is(err, ai.ErrNoMessages) || errors.Is(err, ai.ErrInvalidRole) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[chat] generate failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "generation failed")
		return
	}

	response, err := Collect(reader)
	if err != nil {
		log.Printf("[chat] collect failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "generation failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, response)
}

// Collect drains reader and joins the fragment contents in order. The terminal
// event's content is used only when no fragment was emitted, so an upstream
// that fails before producing anything yields exactly the error text.
func Collect(reader *schema.StreamReader[chat.Event]) (chat.ChatResponse, error) {
	defer reader.Close()

	var (
		builder   strings.Builder
		sessionID string
	)
	for {
		event, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return chat.ChatResponse{Message: builder.String(), SessionID: sessionID}, nil
		}
		if err != nil {
			return chat.ChatResponse{}, err
		}

		sessionID = event.SessionID
		if !event.Finished || builder.Len() == 0 {
			builder.WriteString(event.Content)
		}
	}
}

// handleListSessions 返回所有会话及其消息
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.chatSvc.ListSessions(r.Context())

	result := make(map[string][]chat.ChatMessage, len(sessions))
	for _, session := range sessions {
		result[session.ID] = session.Messages
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleGetSession 返回指定会话的消息
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"messages":   session.Messages,
	})
}
