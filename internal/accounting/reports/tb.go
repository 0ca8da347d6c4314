// Package reports derives read-only views over the general ledger.
package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// AccountBalance aggregates ledger movement for one account: everything before the report window
// (opening) and inside it.
type AccountBalance struct {
	AccountID     int64
	Code          string
	Name          string
	Type          accounts.AccountType
	NormalBalance accounts.NormalBalance
	OpeningDebit  decimal.Decimal
	OpeningCredit decimal.Decimal
	Debit         decimal.Decimal
	Credit        decimal.Decimal
}

// Opening is the signed opening balance relative to the account's normal side.
func (a AccountBalance) Opening() decimal.Decimal {
	return signed(a.NormalBalance, a.OpeningDebit, a.OpeningCredit)
}

// Closing is the signed closing balance relative to the account's normal side.
func (a AccountBalance) Closing() decimal.Decimal {
	return a.Opening().Add(signed(a.NormalBalance, a.Debit, a.Credit))
}

func signed(normal accounts.NormalBalance, debit, credit decimal.Decimal) decimal.Decimal {
	if normal == accounts.NormalBalanceCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// TrialBalanceAccount is one row of the trial balance. The closing balance is reported on the side
// it actually sits on.
type TrialBalanceAccount struct {
	AccountID     int64           `json:"account_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Opening       decimal.Decimal `json:"opening"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	ClosingDebit  decimal.Decimal `json:"closing_debit"`
	ClosingCredit decimal.Decimal `json:"closing_credit"`
}

// TrialBalanceGroup aggregates the accounts of one account type.
type TrialBalanceGroup struct {
	Type          accounts.AccountType  `json:"type"`
	Accounts      []TrialBalanceAccount `json:"accounts"`
	Debit         decimal.Decimal       `json:"debit"`
	Credit        decimal.Decimal       `json:"credit"`
	ClosingDebit  decimal.Decimal       `json:"closing_debit"`
	ClosingCredit decimal.Decimal       `json:"closing_credit"`
}

// TrialBalance lists closing balances by account type. Balanced holds when closing debits equal
// closing credits.
type TrialBalance struct {
	Groups             []TrialBalanceGroup `json:"groups"`
	TotalDebit         decimal.Decimal     `json:"total_debit"`
	TotalCredit        decimal.Decimal     `json:"total_credit"`
	TotalClosingDebit  decimal.Decimal     `json:"total_closing_debit"`
	TotalClosingCredit decimal.Decimal     `json:"total_closing_credit"`
	Balanced           bool                `json:"balanced"`
}

var typeOrder = []accounts.AccountType{
	accounts.AccountTypeAsset,
	accounts.AccountTypeLiability,
	accounts.AccountTypeEquity,
	accounts.AccountTypeRetainedEarnings,
	accounts.AccountTypeRevenue,
	accounts.AccountTypeCOGS,
	accounts.AccountTypeExpense,
}

// BuildTrialBalance converts account balances into grouped trial balance data. Accounts without
// any movement are omitted.
func BuildTrialBalance(balances []AccountBalance) TrialBalance {
	groups := make(map[accounts.AccountType]*TrialBalanceGroup)
	for _, acc := range balances {
		if acc.OpeningDebit.IsZero() && acc.OpeningCredit.IsZero() && acc.Debit.IsZero() && acc.Credit.IsZero() {
			continue
		}
		grp, ok := groups[acc.Type]
		if !ok {
			grp = &TrialBalanceGroup{Type: acc.Type}
			groups[acc.Type] = grp
		}
		row := TrialBalanceAccount{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Opening:   acc.Opening(),
			Debit:     acc.Debit,
			Credit:    acc.Credit,
		}
		closing := acc.Closing()
		side := acc.NormalBalance
		if closing.IsNegative() {
			side = side.Opposite()
			closing = closing.Abs()
		}
		if side == accounts.NormalBalanceCredit {
			row.ClosingCredit = closing
		} else {
			row.ClosingDebit = closing
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
		grp.ClosingDebit = grp.ClosingDebit.Add(row.ClosingDebit)
		grp.ClosingCredit = grp.ClosingCredit.Add(row.ClosingCredit)
	}

	result := TrialBalance{}
	for _, t := range typeOrder {
		grp, ok := groups[t]
		if !ok {
			continue
		}
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
		result.TotalClosingDebit = result.TotalClosingDebit.Add(grp.ClosingDebit)
		result.TotalClosingCredit = result.TotalClosingCredit.Add(grp.ClosingCredit)
	}
	result.Balanced = result.TotalClosingDebit.Equal(result.TotalClosingCredit)
	return result
}
