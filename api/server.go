/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. CORS:       Cross-origin requests for a local frontend

ROUTE GROUPS:
  /api/runs/*     Trigger reconciliation runs
  /api/records    Flagged record queries
  /api/summary/*  Derived rollups
  /api/prices/*   Reference price administration

SECURITY NOTE:
  No authentication middleware. The service is a single-operator local
  tool.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Run routes
		r.Route("/runs", func(r chi.Router) {
			r.Post("/period", h.RunPeriod)
			r.Post("/all", h.RunAll)
		})

		// Ledger routes
		r.Get("/records", h.ListRecords)
		r.Route("/summary", func(r chi.Router) {
			r.Get("/period", h.PeriodSummary)
			r.Get("/global", h.GlobalSummary)
		})

		// Reference price routes
		r.Route("/prices", func(r chi.Router) {
			r.Get("/", h.ListPrices)
			r.Put("/", h.UpsertPrice)
			r.Delete("/{activity}", h.DeletePrice)
			r.Get("/{activity}/log", h.PriceLog)
		})
	})

	return r
}
