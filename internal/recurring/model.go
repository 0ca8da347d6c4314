package recurring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Frequency is the cadence of a recurring template.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// Line is one templated journal line.
type Line struct {
	AccountID   int64           `json:"account_id"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit_amount"`
	Credit      decimal.Decimal `json:"credit_amount"`
}

// Template is a persisted recurring journal definition. NextRunDate is derived on read.
type Template struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Frequency   Frequency  `json:"frequency"`
	DayOfMonth  *int       `json:"day_of_month,omitempty"`
	DayOfWeek   *int       `json:"day_of_week,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	LastRunDate *time.Time `json:"last_run_date,omitempty"`
	IsActive    bool       `json:"is_active"`
	AutoPost    bool       `json:"auto_post"`
	Lines       []Line     `json:"lines"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	NextRunDate time.Time  `json:"next_run_date"`
}

// Schedule returns the schedule part of the template.
func (t Template) Schedule() Schedule {
	return Schedule{Frequency: t.Frequency, DayOfMonth: t.DayOfMonth, DayOfWeek: t.DayOfWeek, StartDate: t.StartDate, LastRunDate: t.LastRunDate}
}

// TotalAmount is the templated debit total.
func (t Template) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

func (t Template) journalLines() []journals.LineInput {
	out := make([]journals.LineInput, 0, len(t.Lines))
	for _, l := range t.Lines {
		out = append(out, journals.LineInput{AccountID: l.AccountID, Description: l.Description, Debit: l.Debit, Credit: l.Credit})
	}
	return out
}

// Run records one execution of a template for one scheduled date.
type Run struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	TemplateID int64     `json:"template_id"`
	RunDate    time.Time `json:"run_date"`
	JournalID  int64     `json:"journal_entry_id"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateInput defines a new template.
type CreateInput struct {
	TenantID    int64
	UserID      int64
	Name        string
	Description string
	Frequency   Frequency
	DayOfMonth  *int
	DayOfWeek   *int
	StartDate   time.Time
	AutoPost    bool
	Lines       []Line
}

// UpdateInput changes the fields that are set.
type UpdateInput struct {
	TenantID    int64
	UserID      int64
	TemplateID  int64
	Name        *string
	Description *string
	Frequency   *Frequency
	DayOfMonth  *int
	DayOfWeek   *int
	IsActive    *bool
	AutoPost    *bool
	Lines       []Line
}

// ExecuteInput runs a template once. A zero RunDate runs it for its next scheduled date.
type ExecuteInput struct {
	TenantID   int64
	UserID     int64
	TemplateID int64
	RunDate    time.Time
}

// ExecuteResult is the journal produced by a run and the template after it.
type ExecuteResult struct {
	Run      Run                   `json:"run"`
	Journal  journals.JournalEntry `json:"journal"`
	Template Template              `json:"template"`
}

// RunFailure describes a template that could not be executed by ProcessDue.
type RunFailure struct {
	TemplateID   int64  `json:"template_id"`
	TemplateName string `json:"template_name"`
	Error        string `json:"error"`
}

// ProcessResult summarizes one ProcessDue pass.
type ProcessResult struct {
	Processed int             `json:"processed"`
	Failed    int             `json:"failed"`
	Results   []ExecuteResult `json:"results"`
	Errors    []RunFailure    `json:"errors"`
}

// Upcoming is a template due within a look-ahead window.
type Upcoming struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Frequency   Frequency       `json:"frequency"`
	NextRunDate time.Time       `json:"next_run_date"`
	AutoPost    bool            `json:"auto_post"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func validateLines(lines []Line) error {
	if len(lines) < 2 {
		return shared.Validation("at least two lines required")
	}
	var totals shared.Totals
	for i, l := range lines {
		if l.AccountID == 0 {
			return shared.Validation("line %d: account required", i+1)
		}
		if err := shared.CheckLineAmounts(i+1, l.Debit, l.Credit); err != nil {
			return err
		}
		totals.Add(l.Debit, l.Credit)
	}
	return totals.Err()
}

func validateSchedule(f Frequency, dayOfMonth, dayOfWeek *int) error {
	if !f.Valid() {
		return shared.Validation("unknown frequency %q", f)
	}
	if dayOfMonth != nil && (*dayOfMonth < 1 || *dayOfMonth > 31) {
		return shared.Validation("day of month must be between 1 and 31")
	}
	if dayOfWeek != nil && (*dayOfWeek < 0 || *dayOfWeek > 6) {
		return shared.Validation("day of week must be between 0 and 6")
	}
	return nil
}
