package journals

import (
	"log/slog"
	"net/http"

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
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit_amount"`
	Credit      decimal.Decimal `json:"credit_amount"`
}

type createRequest struct {
	JournalType     string        `json:"journal_type"`
	TransactionDate string        `json:"transaction_date" validate:"omitempty,datetime=2006-01-02"`
	Description     string        `json:"description" validate:"max=500"`
	ReferenceType   string        `json:"reference_type" validate:"max=50"`
	ReferenceID     *int64        `json:"reference_id"`
	Lines           []lineRequest `json:"lines" validate:"dive"`
	Post            bool          `json:"post"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	entries, page, err := h.service.List(r.Context(), ListFilter{
		TenantID: id.TenantID,
		Status:   JournalStatus(q.Get("status")),
		Type:     JournalType(q.Get("type")),
		From:     from,
		To:       to,
		Page:     httpx.IntQuery(r, "page", 1),
		PerPage:  httpx.IntQuery(r, "per_page", 20),
	})
	if err != nil {
		h.fail(w, "list journals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries, "pagination": page})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	journalID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id.TenantID, journalID)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entry})
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
		TenantID:      id.TenantID,
		UserID:        id.UserID,
		Type:          JournalType(req.JournalType),
		Description:   req.Description,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Post:          req.Post,
	}
	if req.TransactionDate != "" {
		// format already checked by the validator
		in.TransactionDate, _ = httpx.ParseDate(req.TransactionDate)
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput{AccountID: l.AccountID, Description: l.Description, Debit: l.Debit, Credit: l.Credit})
	}
	entry, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": entry})
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	journalID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Post(r.Context(), journalID, id.TenantID, id.UserID)
	if err != nil {
		h.fail(w, "post journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entry})
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	journalID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Void(r.Context(), VoidInput{TenantID: id.TenantID, UserID: id.UserID, JournalID: journalID, Reason: req.Reason})
	if err != nil {
		h.fail(w, "void journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := httpx.IDParam(r, "accountID")
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
	entries, err := h.service.Ledger(r.Context(), LedgerFilter{
		TenantID:  id.TenantID,
		AccountID: accountID,
		From:      from,
		To:        to,
		Limit:     httpx.IntQuery(r, "limit", 500),
	})
	if err != nil {
		h.fail(w, "account ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
