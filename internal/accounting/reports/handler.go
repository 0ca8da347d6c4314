package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.DateQuery(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var fromDay, toDay time.Time
	if from != nil {
		fromDay = *from
	}
	if to != nil {
		toDay = *to
	}
	res, err := h.service.TrialBalance(r.Context(), id.TenantID, fromDay, toDay)
	if err != nil {
		if httpx.StatusOf(err) >= http.StatusInternalServerError {
			h.logger.Error("trial balance", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": res})
}
