package journals

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/post", h.Post)
	r.Post("/{id}/void", h.Void)
}

// MountLedgerRoutes exposes the per-account general ledger.
func (h *Handler) MountLedgerRoutes(r chi.Router) {
	r.Get("/{accountID}", h.Ledger)
}
