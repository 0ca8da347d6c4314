package settlement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler serves one sub-ledger: payables or receivables.
type Handler struct {
	service *Service
	kind    Kind
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service, kind Kind) *Handler {
	return &Handler{logger: logger, service: service, kind: kind}
}

type documentRequest struct {
	CounterpartyID int64           `json:"counterparty_id" validate:"required"`
	InvoiceNumber  string          `json:"invoice_number" validate:"required,max=50"`
	InvoiceDate    string          `json:"invoice_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate        string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Amount         decimal.Decimal `json:"amount"`
	ReferenceType  string          `json:"reference_type" validate:"max=50"`
	ReferenceID    *int64          `json:"reference_id"`
	Notes          string          `json:"notes" validate:"max=500"`
}

type settleRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method" validate:"max=30"`
	Date            string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	ReferenceNumber string          `json:"reference_number" validate:"max=100"`
	Notes           string          `json:"notes" validate:"max=500"`
}

type writeOffRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/settlements", h.Settlements)
	r.Post("/{id}/settlements", h.Settle)
	r.Post("/{id}/write-off", h.WriteOff)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	docs, page, err := h.service.List(r.Context(), ListFilter{
		TenantID:       id.TenantID,
		Kind:           h.kind,
		Status:         Status(q.Get("status")),
		CounterpartyID: int64(httpx.IntQuery(r, "counterparty_id", 0)),
		Page:           httpx.IntQuery(r, "page", 1),
		PerPage:        httpx.IntQuery(r, "per_page", 20),
	})
	if err != nil {
		h.fail(w, "list documents", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": docs, "pagination": page})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Get(r.Context(), id.TenantID, h.kind, docID)
	if err != nil {
		h.fail(w, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": doc})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req documentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateDocumentInput{
		TenantID:       id.TenantID,
		Kind:           h.kind,
		CounterpartyID: req.CounterpartyID,
		InvoiceNumber:  req.InvoiceNumber,
		Amount:         req.Amount,
		ReferenceType:  req.ReferenceType,
		ReferenceID:    req.ReferenceID,
		Notes:          req.Notes,
	}
	if req.InvoiceDate != "" {
		in.InvoiceDate, _ = httpx.ParseDate(req.InvoiceDate)
	}
	if req.DueDate != "" {
		in.DueDate, _ = httpx.ParseDate(req.DueDate)
	}
	doc, err := h.service.CreateDocument(r.Context(), in)
	if err != nil {
		h.fail(w, "create document", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": doc})
}

// Settle records a payment (payables) or a collection (receivables).
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req settleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := SettleInput{
		TenantID:        id.TenantID,
		UserID:          id.UserID,
		DocumentID:      docID,
		Amount:          req.Amount,
		Method:          req.Method,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
	}
	if req.Date != "" {
		in.Date, _ = httpx.ParseDate(req.Date)
	}
	var res SettleResult
	if h.kind == KindPayable {
		res, err = h.service.PayPayable(r.Context(), in)
	} else {
		res, err = h.service.CollectReceivable(r.Context(), in)
	}
	if err != nil {
		h.fail(w, "settle document", err)
		return
	}
	body := map[string]any{"data": res}
	if res.Warning != nil {
		body["warnings"] = []any{res.Warning}
	}
	httpx.JSON(w, http.StatusCreated, body)
}

func (h *Handler) Settlements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	recs, err := h.service.Settlements(r.Context(), id.TenantID, h.kind, docID)
	if err != nil {
		h.fail(w, "list settlements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": recs})
}

func (h *Handler) WriteOff(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req writeOffRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.WriteOff(r.Context(), id.TenantID, id.UserID, h.kind, docID, req.Reason)
	if err != nil {
		h.fail(w, "write off document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": doc})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("kind", string(h.kind)), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
