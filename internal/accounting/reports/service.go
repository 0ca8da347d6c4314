package reports

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service builds ledger reports.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TrialBalanceResult is the trial balance over a date window.
type TrialBalanceResult struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	TrialBalance
}

// TrialBalance reports balances up to and including to. A zero from starts the window at the first
// of to's month; a zero to means today.
func (s *Service) TrialBalance(ctx context.Context, tenantID int64, from, to time.Time) (TrialBalanceResult, error) {
	if tenantID <= 0 {
		return TrialBalanceResult{}, shared.Validation("tenant is required")
	}
	if to.IsZero() {
		to = s.now()
	}
	to = shared.Day(to)
	if from.IsZero() {
		from = time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	from = shared.Day(from)
	if from.After(to) {
		return TrialBalanceResult{}, shared.Validation("from must not be after to")
	}
	balances, err := s.repo.AccountBalances(ctx, tenantID, from, to)
	if err != nil {
		return TrialBalanceResult{}, err
	}
	return TrialBalanceResult{From: from, To: to, TrialBalance: BuildTrialBalance(balances)}, nil
}
