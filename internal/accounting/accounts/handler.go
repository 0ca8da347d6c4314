package accounts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type createRequest struct {
	Code          string `json:"code" validate:"required,max=20"`
	Name          string `json:"name" validate:"required,max=200"`
	Type          string `json:"type" validate:"required"`
	NormalBalance string `json:"normal_balance" validate:"omitempty,oneof=DEBIT CREDIT"`
	ParentCode    string `json:"parent_code"`
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/seed", h.Seed)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.List(r.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		TenantID:      id.TenantID,
		Code:          req.Code,
		Name:          req.Name,
		Type:          AccountType(req.Type),
		NormalBalance: NormalBalance(req.NormalBalance),
		ParentCode:    req.ParentCode,
	})
	if errors.Is(err, ErrDuplicateCode) {
		err = shared.Validation("account code %s already exists", req.Code)
	}
	if err != nil {
		if httpx.StatusOf(err) >= http.StatusInternalServerError {
			h.logger.Error("create account", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": account})
}

// Seed applies the built-in chart template to the caller's tenant.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	chart, err := DefaultChart()
	if err != nil {
		h.logger.Error("load default chart", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Seed(r.Context(), id.TenantID, chart)
	if err != nil {
		h.logger.Error("seed accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": res})
}
