// Package http exposes the queue facade over a chi router. Routing,
// validation, auth and rate limiting all live here; the queue core knows
// nothing about HTTP.
package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vividflow/internal/http/handlers"
	"vividflow/internal/infra"
	"vividflow/internal/middleware"
)

// NewRouter assembles the API surface.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMin))

	r.Get("/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		r.Post("/generate", app.Generate)
		r.Get("/job/{job_id}", app.JobStatus)
		r.Post("/job/{job_id}/cancel", app.CancelJob)
		r.Get("/history", app.History)
		r.Post("/prompt/enhance", app.EnhancePrompt)
		r.Post("/prompt/check", app.CheckPrompt)
		r.Get("/admin/stats", app.AdminStats)
	})

	return r
}
