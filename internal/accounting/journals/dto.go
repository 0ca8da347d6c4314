package journals

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// LineInput describes one journal line.
type LineInput struct {
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// CreateInput groups the fields required to create a journal entry.
type CreateInput struct {
	TenantID        int64
	UserID          int64
	Type            JournalType
	TransactionDate time.Time
	Description     string
	ReferenceType   string
	ReferenceID     *int64
	Lines           []LineInput
	// Post requests posting in the same transaction as creation.
	Post bool
}

// normalize applies defaults: general type, today's date, header description on blank lines.
func (in *CreateInput) normalize(now time.Time) {
	if in.Type == "" {
		in.Type = JournalTypeGeneral
	}
	if in.TransactionDate.IsZero() {
		in.TransactionDate = now
	}
	in.TransactionDate = shared.Day(in.TransactionDate)
	in.Description = strings.TrimSpace(in.Description)
	in.Lines = append([]LineInput(nil), in.Lines...)
	for i := range in.Lines {
		if strings.TrimSpace(in.Lines[i].Description) == "" {
			in.Lines[i].Description = in.Description
		}
	}
}

// Validate ensures the input meets the structural and balance invariants.
func (in CreateInput) Validate() (shared.Totals, error) {
	var totals shared.Totals
	if in.TenantID == 0 {
		return totals, shared.Validation("tenant required")
	}
	if in.UserID == 0 {
		return totals, shared.Validation("user required")
	}
	if in.Type != "" && !in.Type.Valid() {
		return totals, shared.Validation("unknown journal type %q", in.Type)
	}
	if len(in.Lines) < 2 {
		return totals, shared.Validation("journal requires at least two lines")
	}
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return totals, shared.Validation("line %d missing account", idx+1)
		}
		if err := shared.CheckLineAmounts(idx+1, line.Debit, line.Credit); err != nil {
			return totals, err
		}
		totals.Add(line.Debit, line.Credit)
	}
	return totals, totals.Err()
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	TenantID  int64
	UserID    int64
	JournalID int64
	Reason    string
}

// VoidResult carries the voided original and the posted reversal.
type VoidResult struct {
	ReversalJournalID int64        `json:"reversal_journal_id"`
	Original          JournalEntry `json:"original"`
	Reversal          JournalEntry `json:"reversal"`
}

// ListFilter narrows journal listings.
type ListFilter struct {
	TenantID int64
	Status   JournalStatus
	Type     JournalType
	From     *time.Time
	To       *time.Time
	Page     int
	PerPage  int
}

// LedgerFilter narrows account ledger listings.
type LedgerFilter struct {
	TenantID  int64
	AccountID int64
	From      *time.Time
	To        *time.Time
	Limit     int
}
