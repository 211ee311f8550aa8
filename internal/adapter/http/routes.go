package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, hub http.Handler) {
	r.Get("/health", h.Health)
	if hub != nil {
		r.Method(http.MethodGet, "/ws", hub)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", h.Ask)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/", h.ListSessions)
			r.Get("/{id}", h.GetSession)
			r.Post("/{id}/close", h.CloseSession)
		})

		r.Route("/escalations", func(r chi.Router) {
			r.Get("/", h.ListEscalations)
			r.Get("/{id}", h.GetEscalation)
			r.Post("/{id}/response", h.RespondEscalation)
		})
	})
}
