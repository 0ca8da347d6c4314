package journals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "draft"
	JournalStatusPosted JournalStatus = "posted"
	JournalStatusVoided JournalStatus = "voided"
)

// JournalType classifies the business event behind a journal.
type JournalType string

const (
	JournalTypeGeneral      JournalType = "general"
	JournalTypeSales        JournalType = "sales"
	JournalTypePurchase     JournalType = "purchase"
	JournalTypeExpense      JournalType = "expense"
	JournalTypeAdjustment   JournalType = "adjustment"
	JournalTypePayment      JournalType = "payment"
	JournalTypeReceipt      JournalType = "receipt"
	JournalTypeDepreciation JournalType = "depreciation"
	JournalTypeRecurring    JournalType = "recurring"
	JournalTypeReversal     JournalType = "reversal"
	JournalTypeClosing      JournalType = "closing"
)

// Valid reports whether t is a known journal type.
func (t JournalType) Valid() bool {
	switch t {
	case JournalTypeGeneral, JournalTypeSales, JournalTypePurchase, JournalTypeExpense, JournalTypeAdjustment,
		JournalTypePayment, JournalTypeReceipt, JournalTypeDepreciation, JournalTypeRecurring,
		JournalTypeReversal, JournalTypeClosing:
		return true
	}
	return false
}

// Reference types attached by the ledger itself.
const (
	ReferenceJournal           = "journal"
	ReferenceAPPayment         = "ap_payment"
	ReferenceARCollection      = "ar_collection"
	ReferenceRecurringTemplate = "recurring_template"
	ReferenceAccountingPeriod  = "accounting_period"
)

// JournalEntry is a journal header with its lines.
type JournalEntry struct {
	ID              int64           `json:"id"`
	TenantID        int64           `json:"tenant_id"`
	Number          string          `json:"journal_number"`
	Type            JournalType     `json:"journal_type"`
	TransactionDate time.Time       `json:"transaction_date"`
	Description     string          `json:"description"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	ReferenceID     *int64          `json:"reference_id,omitempty"`
	TotalDebit      decimal.Decimal `json:"total_debit"`
	TotalCredit     decimal.Decimal `json:"total_credit"`
	Status          JournalStatus   `json:"status"`
	CreatedBy       int64           `json:"created_by"`
	PostedBy        *int64          `json:"posted_by,omitempty"`
	PostedAt        *time.Time      `json:"posted_at,omitempty"`
	VoidedBy        *int64          `json:"voided_by,omitempty"`
	VoidedAt        *time.Time      `json:"voided_at,omitempty"`
	VoidReason      string          `json:"void_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Lines           []JournalLine   `json:"lines,omitempty"`
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID          int64           `json:"id"`
	JournalID   int64           `json:"journal_id"`
	AccountID   int64           `json:"account_id"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit_amount"`
	Credit      decimal.Decimal `json:"credit_amount"`
}

// PostingLine is a journal line joined with the account data posting needs.
type PostingLine struct {
	JournalLine
	AccountTenantID int64
	NormalBalance   accounts.NormalBalance
}

// LedgerEntry is one immutable general-ledger row.
type LedgerEntry struct {
	ID              int64                  `json:"id"`
	TenantID        int64                  `json:"tenant_id"`
	AccountID       int64                  `json:"account_id"`
	JournalID       int64                  `json:"journal_entry_id"`
	JournalLineID   int64                  `json:"journal_line_id"`
	TransactionDate time.Time              `json:"transaction_date"`
	Description     string                 `json:"description"`
	Debit           decimal.Decimal        `json:"debit_amount"`
	Credit          decimal.Decimal        `json:"credit_amount"`
	Balance         decimal.Decimal        `json:"balance"`
	BalanceSide     accounts.NormalBalance `json:"balance_type"`
	CreatedAt       time.Time              `json:"created_at"`
}

// AccountTotal aggregates ledger movement for one account over a date range.
type AccountTotal struct {
	AccountID   int64
	AccountType accounts.AccountType
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// BalanceCheck compares the chained running balance of an account with its re-derived value.
type BalanceCheck struct {
	TenantID      int64
	AccountID     int64
	NormalBalance accounts.NormalBalance
	TotalDebit    decimal.Decimal
	TotalCredit   decimal.Decimal
	LastBalance   decimal.Decimal
	LastSide      accounts.NormalBalance
}
