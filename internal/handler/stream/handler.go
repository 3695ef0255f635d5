package stream

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/ai"
	"github.com/zhouzirui/chat-relay/backend/pkg/utils"
)

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	generator ai.Generator
}

// New creates a new stream handler
func New(generator ai.Generator) *Handler {
	return &Handler{generator: generator}
}

// RegisterRoutes registers the SSE chat endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.handleStream)
}

// handleStream writes each generation event as one SSE data frame.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
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
		log.Printf("[sse] generate failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "generation failed")
		return
	}
	defer reader.Close()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	for {
		event, recvErr := reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			return
		}
		if recvErr != nil {
			log.Printf("[sse] receive failed: %v", recvErr)
			return
		}

		if err := utils.SendSSEChunk(w, flusher, event); err != nil {
			log.Printf("[sse] client gone for session=%s: %v", event.SessionID, err)
			return
		}
	}
}
