package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all quantum routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/quantum", func(r chi.Router) {
		r.Get("/actions", h.HandleGetActions)
		r.Get("/stream", h.HandleStream)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.HandleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", h.HandleDeleteSession)
				r.Post("/reset", h.HandleReset)
				r.Post("/step", h.HandleStep)
				r.Get("/observe", h.HandleObserve)
				r.Post("/peek", h.HandlePeek)
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.HandleListRuns)
			r.Post("/equivalence", h.HandleRunEquivalence)
			r.Get("/{id}", h.HandleGetRun)
		})
	})
}
