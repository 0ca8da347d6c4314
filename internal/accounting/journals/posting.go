package journals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// PostingObserver receives a notification for every journal posted.
type PostingObserver interface {
	JournalPosted(journalType string, lines int)
}

// Poster turns draft journals into ledger entries. It is the only writer of ledger rows.
type Poster struct {
	now      func() time.Time
	observer PostingObserver
}

func NewPoster(observer PostingObserver) *Poster {
	return &Poster{now: time.Now, observer: observer}
}

// WithNow overrides the clock for deterministic tests.
func (p *Poster) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Post writes one ledger entry per line of a draft journal and flips it to posted, all inside tx.
func (p *Poster) Post(ctx context.Context, tx TxRepository, journalID, tenantID, userID int64) (JournalEntry, error) {
	entry, err := tx.GetJournalForUpdate(ctx, journalID)
	if err != nil {
		return JournalEntry{}, err
	}
	if entry.TenantID != tenantID {
		return JournalEntry{}, shared.NotFound("journal")
	}
	if entry.Status != JournalStatusDraft {
		return JournalEntry{}, shared.InvalidStatus("journal %s is %s, only draft journals can be posted", entry.Number, entry.Status)
	}
	lines, err := tx.ListPostingLines(ctx, journalID)
	if err != nil {
		return JournalEntry{}, err
	}
	if len(lines) < 2 {
		return JournalEntry{}, shared.Validation("journal %s has fewer than two lines", entry.Number)
	}
	var totals shared.Totals
	for _, line := range lines {
		if line.AccountTenantID != tenantID {
			return JournalEntry{}, shared.Validation("account %d is not part of the tenant chart", line.AccountID)
		}
		totals.Add(line.Debit, line.Credit)
	}
	if err := totals.Err(); err != nil {
		return JournalEntry{}, err
	}
	if err := ensurePeriodOpen(ctx, tx, tenantID, entry.TransactionDate); err != nil {
		return JournalEntry{}, err
	}

	for _, accountID := range touchedAccounts(lines) {
		if err := tx.LockLedgerAccount(ctx, tenantID, accountID); err != nil {
			return JournalEntry{}, err
		}
	}

	postedAt := p.now()
	posted := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		prevBalance, prevSide := decimal.Zero, line.NormalBalance
		last, found, err := tx.LatestLedgerEntry(ctx, tenantID, line.AccountID)
		if err != nil {
			return JournalEntry{}, err
		}
		if found {
			prevBalance, prevSide = last.Balance, last.BalanceSide
		}
		balance, side := ApplyMovement(prevBalance, prevSide, line.NormalBalance, line.Debit, line.Credit)
		description := line.Description
		if description == "" {
			description = entry.Description
		}
		if _, err := tx.InsertLedgerEntry(ctx, LedgerEntry{
			TenantID:        tenantID,
			AccountID:       line.AccountID,
			JournalID:       entry.ID,
			JournalLineID:   line.ID,
			TransactionDate: entry.TransactionDate,
			Description:     description,
			Debit:           line.Debit,
			Credit:          line.Credit,
			Balance:         balance,
			BalanceSide:     side,
		}); err != nil {
			return JournalEntry{}, err
		}
		posted = append(posted, line.JournalLine)
	}

	if err := tx.MarkJournalPosted(ctx, entry.ID, userID, postedAt); err != nil {
		return JournalEntry{}, err
	}
	entry.Status = JournalStatusPosted
	entry.PostedBy = &userID
	entry.PostedAt = &postedAt
	entry.Lines = posted
	if p.observer != nil {
		p.observer.JournalPosted(string(entry.Type), len(posted))
	}
	return entry, nil
}

// ApplyMovement adds a line to a magnitude+side balance. The result is stored on the account's
// normal side unless the signed total went negative, in which case the side flips.
func ApplyMovement(prev decimal.Decimal, prevSide, normal accounts.NormalBalance, debit, credit decimal.Decimal) (decimal.Decimal, accounts.NormalBalance) {
	signed := SignedBalance(prev, prevSide, normal)
	if normal == accounts.NormalBalanceDebit {
		signed = signed.Add(debit).Sub(credit)
	} else {
		signed = signed.Add(credit).Sub(debit)
	}
	if signed.IsNegative() {
		return signed.Abs(), normal.Opposite()
	}
	return signed, normal
}

// SignedBalance expresses a stored balance relative to the normal side: positive on the normal
// side, negative on the opposite one.
func SignedBalance(balance decimal.Decimal, side, normal accounts.NormalBalance) decimal.Decimal {
	if side != "" && side != normal {
		return balance.Neg()
	}
	return balance
}

func ensurePeriodOpen(ctx context.Context, tx TxRepository, tenantID int64, date time.Time) error {
	covering, err := tx.LockPeriodsCovering(ctx, tenantID, date)
	if err != nil {
		return err
	}
	for _, p := range covering {
		if p.Status != periods.PeriodStatusOpen {
			return &shared.Error{
				Code:    shared.CodePeriodClosed,
				Message: "transaction date " + date.Format("2006-01-02") + " falls in closed period " + p.Name,
				Details: map[string]any{"period_id": p.ID},
			}
		}
	}
	return nil
}

// ensureTenantAccounts rejects lines whose account is not in the tenant chart.
func ensureTenantAccounts(ctx context.Context, tx TxRepository, tenantID int64, lines []LineInput) error {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.AccountID)
	}
	unknown, err := tx.UnknownAccounts(ctx, tenantID, ids)
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		return &shared.Error{
			Code:    shared.CodeValidation,
			Message: fmt.Sprintf("account %d is not part of the tenant chart", unknown[0]),
			Details: map[string]any{"account_ids": unknown},
		}
	}
	return nil
}

// touchedAccounts returns the distinct account ids in ascending order, the lock acquisition order.
func touchedAccounts(lines []PostingLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
