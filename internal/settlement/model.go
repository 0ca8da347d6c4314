package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Kind selects the sub-ledger a document belongs to.
type Kind string

const (
	KindPayable    Kind = "payable"
	KindReceivable Kind = "receivable"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPayable || k == KindReceivable
}

// Status enumerates document lifecycle values.
type Status string

const (
	StatusUnpaid    Status = "unpaid"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusBadDebt   Status = "bad_debt"
)

// Document is a payable owed to a supplier or a receivable owed by a customer.
type Document struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	Kind           Kind            `json:"kind"`
	CounterpartyID int64           `json:"counterparty_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	InvoiceDate    time.Time       `json:"invoice_date"`
	DueDate        time.Time       `json:"due_date"`
	Amount         decimal.Decimal `json:"amount"`
	Settled        decimal.Decimal `json:"settled_amount"`
	Balance        decimal.Decimal `json:"balance"`
	Status         Status          `json:"status"`
	ReferenceType  string          `json:"reference_type,omitempty"`
	ReferenceID    *int64          `json:"reference_id,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Settlement is one payment against a payable or collection against a receivable.
type Settlement struct {
	ID              int64           `json:"id"`
	TenantID        int64           `json:"tenant_id"`
	DocumentID      int64           `json:"document_id"`
	Date            time.Time       `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	JournalID       *int64          `json:"journal_entry_id,omitempty"`
	CreatedBy       int64           `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SettleInput carries a payment or collection request.
type SettleInput struct {
	TenantID        int64
	UserID          int64
	DocumentID      int64
	Amount          decimal.Decimal
	Method          string
	Date            time.Time
	ReferenceNumber string
	Notes           string
}

// SettleResult reports the updated document and its ledger effect. Warning is set instead of
// Journal when the settlement was recorded without a journal.
type SettleResult struct {
	Document   Document               `json:"document"`
	Settlement Settlement             `json:"settlement"`
	Journal    *journals.JournalEntry `json:"journal,omitempty"`
	Warning    *shared.Warning        `json:"warning,omitempty"`
}

// CreateDocumentInput registers a new unpaid document.
type CreateDocumentInput struct {
	TenantID       int64
	Kind           Kind
	CounterpartyID int64
	InvoiceNumber  string
	InvoiceDate    time.Time
	DueDate        time.Time
	Amount         decimal.Decimal
	ReferenceType  string
	ReferenceID    *int64
	Notes          string
}

// ListFilter narrows document listings.
type ListFilter struct {
	TenantID       int64
	Kind           Kind
	Status         Status
	CounterpartyID int64
	Page           int
	PerPage        int
}
