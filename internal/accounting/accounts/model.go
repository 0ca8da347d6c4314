package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset            AccountType = "ASSET"
	AccountTypeLiability        AccountType = "LIABILITY"
	AccountTypeEquity           AccountType = "EQUITY"
	AccountTypeRetainedEarnings AccountType = "RETAINED_EARNINGS"
	AccountTypeRevenue          AccountType = "REVENUE"
	AccountTypeExpense          AccountType = "EXPENSE"
	AccountTypeCOGS             AccountType = "COGS"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRetainedEarnings,
		AccountTypeRevenue, AccountTypeExpense, AccountTypeCOGS:
		return true
	}
	return false
}

// ProfitAndLoss reports whether balances of this type are zeroed at period close.
func (t AccountType) ProfitAndLoss() bool {
	return t == AccountTypeRevenue || t == AccountTypeExpense || t == AccountTypeCOGS
}

// DefaultNormalBalance returns the side on which the type naturally increases.
func (t AccountType) DefaultNormalBalance() NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense, AccountTypeCOGS:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// NormalBalance is the side an account's balance grows on.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// Opposite returns the other side.
func (n NormalBalance) Opposite() NormalBalance {
	if n == NormalBalanceDebit {
		return NormalBalanceCredit
	}
	return NormalBalanceDebit
}

// Account models a chart of accounts node.
type Account struct {
	ID            int64         `json:"id"`
	TenantID      int64         `json:"tenant_id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Type          AccountType   `json:"type"`
	NormalBalance NormalBalance `json:"normal_balance"`
	ParentID      *int64        `json:"parent_id,omitempty"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// CreateInput describes a new account.
type CreateInput struct {
	TenantID      int64
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	ParentCode    string
}
