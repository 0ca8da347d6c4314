package close

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// CreatePeriodInput captures validation rules for new periods.
type CreatePeriodInput struct {
	TenantID  int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// Validate ensures the create period input is coherent.
func (in CreatePeriodInput) Validate() error {
	if in.TenantID == 0 {
		return shared.Validation("tenant required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Validation("period name required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return shared.Validation("start and end date required")
	}
	if shared.Day(in.EndDate).Before(shared.Day(in.StartDate)) {
		return shared.Validation("end date cannot be before start date")
	}
	return nil
}

// ClosePeriodInput identifies the period to close and who closes it.
type ClosePeriodInput struct {
	TenantID int64
	UserID   int64
	PeriodID int64
	Notes    string
}

// CloseResult is the closed period and the closing journal, if one was needed.
type CloseResult struct {
	Period         periods.Period         `json:"period"`
	ClosingJournal *journals.JournalEntry `json:"closing_journal,omitempty"`
	NetIncome      decimal.Decimal        `json:"net_income"`
}

const (
	closingLineDescription = "Closing Entry"
	netIncomeDescription   = "Closing Entry - Net Income"
	netLossDescription     = "Closing Entry - Net Loss"
)

// BuildClosingLines zeroes every profit-and-loss account against the retained earnings account.
// It returns no lines when every account already nets to zero. Net income is positive for a
// profit and negative for a loss.
func BuildClosingLines(totals []journals.AccountTotal, retainedEarningsID int64) ([]journals.LineInput, decimal.Decimal) {
	var lines []journals.LineInput
	netIncome := decimal.Zero
	for _, t := range totals {
		balance := t.Debit.Sub(t.Credit)
		switch {
		case balance.IsZero():
			continue
		case balance.IsPositive():
			lines = append(lines, journals.LineInput{AccountID: t.AccountID, Description: closingLineDescription, Credit: balance})
			netIncome = netIncome.Sub(balance)
		default:
			lines = append(lines, journals.LineInput{AccountID: t.AccountID, Description: closingLineDescription, Debit: balance.Abs()})
			netIncome = netIncome.Add(balance.Abs())
		}
	}
	switch {
	case netIncome.IsPositive():
		lines = append(lines, journals.LineInput{AccountID: retainedEarningsID, Description: netIncomeDescription, Credit: netIncome})
	case netIncome.IsNegative():
		lines = append(lines, journals.LineInput{AccountID: retainedEarningsID, Description: netLossDescription, Debit: netIncome.Abs()})
	}
	return lines, netIncome
}
