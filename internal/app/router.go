package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/forecourt-io/forecourt/internal/auth"
	"github.com/forecourt-io/forecourt/internal/calc"
	"github.com/forecourt-io/forecourt/internal/observability"
	"github.com/forecourt-io/forecourt/internal/pumps"
	"github.com/forecourt-io/forecourt/internal/readings"
	"github.com/forecourt-io/forecourt/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Config         *Config
	AuthHandler    *auth.Handler
	AuthMiddleware auth.Middleware
	PumpHandler    *pumps.Handler
	ReadingHandler *readings.Handler
	CalcHandler    *calc.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router for the API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(WriteRateLimiter())
			r.Post("/auth/login", params.AuthHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Require)
			r.Post("/auth/logout", params.AuthHandler.Logout)
			params.PumpHandler.MountRoutes(r)
			params.ReadingHandler.MountRoutes(r)
			params.CalcHandler.MountRoutes(r)
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}
