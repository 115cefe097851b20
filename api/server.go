/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the review front end

ROUTE GROUPS:
  /api/applications/{id}/confirmed/*   Confirmed felling and restocking
  /api/applications/{id}/review/*      Woodland officer review state
  /api/applications/{id}/audit         Audit trail
  /healthz                             Liveness

SECURITY NOTE:
  Identity is taken from the X-User-ID header. Authentication belongs to the
  gateway in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/applications/{id}", func(r chi.Router) {
		r.Route("/confirmed", func(r chi.Router) {
			r.Get("/", h.GetConfirmed)
			r.Put("/", h.SaveChanges)
			r.Delete("/", h.ResetConfirmed)
			r.Post("/import", h.ImportProposed)
			r.Post("/compartments/{compartmentID}/felling", h.AddFelling)
			r.Post("/proposed/{proposedID}/revert", h.RevertProposed)

			r.Route("/felling/{detailID}", func(r chi.Router) {
				r.Put("/", h.SaveFelling)
				r.Delete("/", h.DeleteFelling)
				r.Post("/revert", h.RevertFelling)
				r.Put("/restocking", h.SaveRestocking)
			})
		})

		r.Route("/review", func(r chi.Router) {
			r.Get("/", h.GetReviewState)
			r.Put("/felling-and-restocking", h.SetFellingAndRestockingComplete)
			r.Put("/priority-open-habitat", h.SetPriorityOpenHabitat)
			r.Put("/tree-health", h.SetTreeHealth)
			r.Put("/designations", h.SetDesignationsComplete)
			r.Put("/designations/{compartmentID}", h.SetCompartmentDesignations)
			r.Put("/pw14", h.SetPw14Checks)
			r.Put("/conditional", h.SetConditionalStatus)
			r.Post("/complete", h.CompleteReview)
		})

		r.Get("/audit", h.ListAuditEvents)
	})

	return r
}
