package shared

import (
	"github.com/shopspring/decimal"
)

// BalanceTolerance is the largest debit/credit gap accepted as balanced.
var BalanceTolerance = decimal.New(1, -2)

// Totals sums debit and credit amounts.
type Totals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Add accumulates a single line.
func (t *Totals) Add(debit, credit decimal.Decimal) {
	t.Debit = t.Debit.Add(debit)
	t.Credit = t.Credit.Add(credit)
}

// Difference is the absolute gap between debit and credit.
func (t Totals) Difference() decimal.Decimal {
	return t.Debit.Sub(t.Credit).Abs()
}

// Balanced reports whether the totals agree within BalanceTolerance.
func (t Totals) Balanced() bool {
	return t.Difference().LessThanOrEqual(BalanceTolerance)
}

// Err returns a NOT_BALANCED error carrying the totals, or nil when balanced.
func (t Totals) Err() error {
	if t.Balanced() {
		return nil
	}
	return &Error{
		Code:    CodeNotBalanced,
		Message: "journal lines must balance (debit " + t.Debit.StringFixed(2) + ", credit " + t.Credit.StringFixed(2) + ")",
		Details: map[string]any{
			"total_debit":  t.Debit,
			"total_credit": t.Credit,
			"difference":   t.Difference(),
		},
	}
}

// AmountScale is the number of decimal places stored for ledger amounts.
const AmountScale = 2

// CheckLineAmounts enforces the stored line shape: non-negative amounts with at most
// AmountScale decimals, and exactly one of debit or credit positive. line is 1-based.
func CheckLineAmounts(line int, debit, credit decimal.Decimal) error {
	if debit.IsNegative() || credit.IsNegative() {
		return Validation("line %d has a negative amount", line)
	}
	if !debit.Equal(debit.Round(AmountScale)) || !credit.Equal(credit.Round(AmountScale)) {
		return Validation("line %d amount has more than %d decimal places", line, AmountScale)
	}
	if debit.IsPositive() == credit.IsPositive() {
		return Validation("line %d must carry either a debit or a credit amount", line)
	}
	return nil
}
