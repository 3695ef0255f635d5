package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/handler/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/chat-relay/backend/internal/middleware"
	aiService "github.com/zhouzirui/chat-relay/backend/internal/service/ai"
	chatService "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
)

// NewRouter wires HTTP routes to core services. generator may be nil when the
// upstream model is not configured; generation endpoints then report 503.
func NewRouter(serverCfg config.ServerConfig, chatSvc *chatService.Service, generator aiService.Generator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(serverCfg.AllowedOrigins))

	chat.New(generator, chatSvc, serverCfg.AppName).RegisterRoutes(r)
	stream.New(generator).RegisterRoutes(r)
	stream.NewWebSocketHandler(generator, middlewarePkg.OriginChecker(serverCfg.AllowedOrigins)).RegisterRoutes(r)

	return r
}
