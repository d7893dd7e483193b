package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/filechat/backend/internal/config"
	"github.com/zhouzirui/filechat/backend/internal/handler/chat"
	"github.com/zhouzirui/filechat/backend/internal/handler/page"
	"github.com/zhouzirui/filechat/backend/internal/handler/ws"
	"github.com/zhouzirui/filechat/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/filechat/backend/internal/middleware"
	chatService "github.com/zhouzirui/filechat/backend/internal/service/chat"
	"github.com/zhouzirui/filechat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, chatSvc *chatService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger())
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.Server.AllowedOrigins))

	maxUpload := cfg.Server.MaxUploadBytes

	// Browser page
	page.New(chatSvc, cfg.Completion.Label, maxUpload).RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"provider":  cfg.Completion.Provider,
			"driver":    cfg.Completion.Driver,
			"model":     cfg.Completion.Model,
			"apiKeySet": cfg.Completion.HasAPIKey(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		chat.New(chatSvc, maxUpload).RegisterRoutes(api)
		ws.New(chatSvc, maxUpload).RegisterRoutes(api)
	})

	return r
}
