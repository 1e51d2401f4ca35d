package service

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// RouterConfig carries the HTTP-surface settings the router needs.
type RouterConfig struct {
	CORSOrigins  []string
	Authenticate func(http.Handler) http.Handler
}

// NewRouter assembles the chi router: public health endpoint, CORS, and
// the authenticated prediction API.
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Get("/health", h.Health)

	r.Route("/api/v1/predictions", func(r chi.Router) {
		r.Use(cfg.Authenticate)
		r.Post("/generate", h.Generate)
		r.Get("/usage", h.Usage)
		r.Post("/validate", h.Validate)
		r.Delete("/cache", h.InvalidateCache)
	})

	return r
}
