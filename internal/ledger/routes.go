package ledger

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the ledger endpoints on the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/movements", func(r chi.Router) {
		r.Post("/", h.createMovement)
		r.Get("/", h.listMovements)
		r.Get("/{id}", h.getMovement)
		r.Patch("/{id}", h.updateMovement)
		r.Delete("/{id}", h.reverseMovement)
	})
	r.Route("/positions", func(r chi.Router) {
		r.Get("/", h.listPositions)
		r.Get("/{itemID}/{branchID}", h.getPosition)
	})
}
