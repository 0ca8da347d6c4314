package closehttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type closeService interface {
	ListPeriods(ctx context.Context, tenantID int64) ([]periods.Period, error)
	GetPeriod(ctx context.Context, tenantID, id int64) (periods.Period, error)
	CreatePeriod(ctx context.Context, in close.CreatePeriodInput) (periods.Period, error)
	ClosePeriod(ctx context.Context, in close.ClosePeriodInput) (close.CloseResult, error)
}

// Handler wires HTTP endpoints for managing accounting periods.
type Handler struct {
	logger  *slog.Logger
	service closeService
}

// NewHandler builds the period handler.
func NewHandler(logger *slog.Logger, service closeService) *Handler {
	return &Handler{logger: logger, service: service}
}

type createPeriodRequest struct {
	Name      string `json:"period_name" validate:"required,max=100"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type closePeriodRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPeriods)
	r.Post("/", h.createPeriod)
	r.Get("/{id}", h.getPeriod)
	r.Post("/{id}/close", h.closePeriod)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListPeriods(r.Context(), id.TenantID)
	if err != nil {
		h.fail(w, "list periods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	periodID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.GetPeriod(r.Context(), id.TenantID, periodID)
	if err != nil {
		h.fail(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": period})
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, _ := httpx.ParseDate(req.StartDate)
	end, _ := httpx.ParseDate(req.EndDate)
	period, err := h.service.CreatePeriod(r.Context(), close.CreatePeriodInput{
		TenantID:  id.TenantID,
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		h.fail(w, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": period})
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	periodID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req closePeriodRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	res, err := h.service.ClosePeriod(r.Context(), close.ClosePeriodInput{
		TenantID: id.TenantID,
		UserID:   id.UserID,
		PeriodID: periodID,
		Notes:    req.Notes,
	})
	if err != nil {
		h.fail(w, "close period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Debug(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
