package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"safeguardai/internal/handlers"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Dispatcher handlers.Dispatcher
	Pipeline   handlers.Indexer
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)

	webhookHandler := handlers.NewWebhookHandler(deps.Dispatcher)
	indexHandler := handlers.NewIndexHandler(deps.Pipeline)
	statsHandler := handlers.NewStatsHandler(deps.Pipeline)

	r.Route("/webhook", func(r chi.Router) {
		r.Method(http.MethodPost, "/whatsapp", webhookHandler)
	})

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/index", indexHandler)
		r.Method(http.MethodGet, "/stats", statsHandler)
	})

	r.Get("/health", handlers.Health)

	return r
}
