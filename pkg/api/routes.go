package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Server.RateLimit.Enabled {
			r.Use(s.rateLimitMiddleware(
				s.cfg.Server.RateLimit.RequestsPerMinute,
			))
		}

		// Public endpoints.
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.cfg.Auth.Basic.Enabled {
				r.Use(s.requireBasicAuth)
			}

			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.handleSessionState)
				r.Post("/start", s.handleSessionStart)
				r.Post("/stop", s.handleSessionStop)
			})

			r.Route("/uploads", func(r chi.Router) {
				r.Get("/", s.handleListUploads)
				r.Post("/", s.handleManualUpload)
				r.Delete("/", s.handleResetUploads)
			})

			r.Get("/events", s.handleEvents)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
