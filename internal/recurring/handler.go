package recurring

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type lineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required"`
	Description string          `json:"description" validate:"max=255"`
	Debit       decimal.Decimal `json:"debit_amount"`
	Credit      decimal.Decimal `json:"credit_amount"`
}

type createRequest struct {
	Name        string        `json:"name" validate:"required,max=100"`
	Description string        `json:"description" validate:"max=500"`
	Frequency   string        `json:"frequency" validate:"required,oneof=daily weekly monthly quarterly yearly"`
	DayOfMonth  *int          `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	DayOfWeek   *int          `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	StartDate   string        `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	AutoPost    bool          `json:"auto_post"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type updateRequest struct {
	Name        *string       `json:"name" validate:"omitempty,max=100"`
	Description *string       `json:"description" validate:"omitempty,max=500"`
	Frequency   *string       `json:"frequency" validate:"omitempty,oneof=daily weekly monthly quarterly yearly"`
	DayOfMonth  *int          `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	DayOfWeek   *int          `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	IsActive    *bool         `json:"is_active"`
	AutoPost    *bool         `json:"auto_post"`
	Lines       []lineRequest `json:"lines" validate:"omitempty,min=2,dive"`
}

type executeRequest struct {
	RunDate string `json:"run_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/upcoming", h.Upcoming)
	r.Post("/process", h.ProcessDue)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/execute", h.Execute)
	r.Get("/{id}/runs", h.Runs)
}

func toLines(in []lineRequest) []Line {
	if in == nil {
		return nil
	}
	out := make([]Line, 0, len(in))
	for _, l := range in {
		out = append(out, Line{AccountID: l.AccountID, Description: l.Description, Debit: l.Debit, Credit: l.Credit})
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	templates, err := h.service.List(r.Context(), id.TenantID)
	if err != nil {
		h.fail(w, "list recurring templates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": templates, "count": len(templates)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	templateID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tmpl, err := h.service.Get(r.Context(), id.TenantID, templateID)
	if err != nil {
		h.fail(w, "get recurring template", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": tmpl})
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
	in := CreateInput{
		TenantID:    id.TenantID,
		UserID:      id.UserID,
		Name:        req.Name,
		Description: req.Description,
		Frequency:   Frequency(req.Frequency),
		DayOfMonth:  req.DayOfMonth,
		DayOfWeek:   req.DayOfWeek,
		AutoPost:    req.AutoPost,
		Lines:       toLines(req.Lines),
	}
	if req.StartDate != "" {
		in.StartDate, _ = httpx.ParseDate(req.StartDate)
	}
	tmpl, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create recurring template", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": tmpl})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	templateID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := UpdateInput{
		TenantID:    id.TenantID,
		UserID:      id.UserID,
		TemplateID:  templateID,
		Name:        req.Name,
		Description: req.Description,
		DayOfMonth:  req.DayOfMonth,
		DayOfWeek:   req.DayOfWeek,
		IsActive:    req.IsActive,
		AutoPost:    req.AutoPost,
		Lines:       toLines(req.Lines),
	}
	if req.Frequency != nil {
		f := Frequency(*req.Frequency)
		in.Frequency = &f
	}
	tmpl, err := h.service.Update(r.Context(), in)
	if err != nil {
		h.fail(w, "update recurring template", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": tmpl})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	templateID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id.TenantID, id.UserID, templateID); err != nil {
		h.fail(w, "delete recurring template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	templateID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req executeRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	in := ExecuteInput{TenantID: id.TenantID, UserID: id.UserID, TemplateID: templateID}
	if req.RunDate != "" {
		in.RunDate, _ = httpx.ParseDate(req.RunDate)
	}
	res, err := h.service.Execute(r.Context(), in)
	if err != nil {
		h.fail(w, "execute recurring template", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": res})
}

func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	templateID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	runs, err := h.service.Runs(r.Context(), id.TenantID, templateID)
	if err != nil {
		h.fail(w, "list recurring runs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": runs})
}

func (h *Handler) ProcessDue(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.ProcessDue(r.Context(), id.TenantID, h.service.now())
	if err != nil {
		h.fail(w, "process due recurring templates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Upcoming(r.Context(), id.TenantID, httpx.IntQuery(r, "days", 30))
	if err != nil {
		h.fail(w, "upcoming recurring templates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
