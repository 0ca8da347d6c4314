package reports

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sample() []AccountBalance {
	return []AccountBalance{
		{AccountID: 1, Code: "1101", Name: "Cash", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit,
			OpeningDebit: d("1000"), Debit: d("200"), Credit: d("1500")},
		{AccountID: 2, Code: "1102", Name: "Bank", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit,
			Debit: d("800")},
		{AccountID: 3, Code: "2101", Name: "Accounts Payable", Type: accounts.AccountTypeLiability, NormalBalance: accounts.NormalBalanceCredit,
			Debit: d("500"), Credit: d("800")},
		{AccountID: 4, Code: "3101", Name: "Capital", Type: accounts.AccountTypeEquity, NormalBalance: accounts.NormalBalanceCredit,
			OpeningCredit: d("1000")},
		{AccountID: 5, Code: "6201", Name: "Rent", Type: accounts.AccountTypeExpense, NormalBalance: accounts.NormalBalanceDebit,
			Debit: d("1000"), Credit: d("0")},
		{AccountID: 6, Code: "4101", Name: "Sales", Type: accounts.AccountTypeRevenue, NormalBalance: accounts.NormalBalanceCredit},
	}
}

func TestBuildTrialBalance(t *testing.T) {
	tb := BuildTrialBalance(sample())

	require.Len(t, tb.Groups, 4)
	require.Equal(t, accounts.AccountTypeAsset, tb.Groups[0].Type)
	require.Equal(t, accounts.AccountTypeExpense, tb.Groups[3].Type)

	cash := tb.Groups[0].Accounts[0]
	require.Equal(t, "1101", cash.Code)
	require.True(t, cash.Opening.Equal(d("1000")))
	require.True(t, cash.ClosingDebit.IsZero())
	require.True(t, cash.ClosingCredit.Equal(d("300")), "overdrawn cash closes on the credit side")

	require.True(t, tb.TotalDebit.Equal(d("2500")))
	require.True(t, tb.TotalCredit.Equal(d("2300")))
	require.True(t, tb.TotalClosingDebit.Equal(d("1800")))
	require.True(t, tb.TotalClosingCredit.Equal(d("1600")))
	require.False(t, tb.Balanced)
}

func TestBuildTrialBalanceBalanced(t *testing.T) {
	tb := BuildTrialBalance([]AccountBalance{
		{Code: "1101", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit, Debit: d("250.50")},
		{Code: "2101", Type: accounts.AccountTypeLiability, NormalBalance: accounts.NormalBalanceCredit, Credit: d("250.50")},
	})
	require.True(t, tb.Balanced)
	require.Len(t, tb.Groups, 2)
}

type stubRepo struct {
	tenantID int64
	from, to time.Time
	rows     []AccountBalance
}

func (s *stubRepo) AccountBalances(_ context.Context, tenantID int64, from, to time.Time) ([]AccountBalance, error) {
	s.tenantID, s.from, s.to = tenantID, from, to
	return s.rows, nil
}

func TestServiceDefaultsWindow(t *testing.T) {
	repo := &stubRepo{rows: sample()}
	svc := NewService(repo)
	svc.WithNow(func() time.Time { return time.Date(2025, 7, 18, 16, 30, 0, 0, time.UTC) })

	res, err := svc.TrialBalance(context.Background(), 3, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(3), repo.tenantID)
	require.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), repo.from)
	require.Equal(t, time.Date(2025, 7, 18, 0, 0, 0, 0, time.UTC), repo.to)
	require.Len(t, res.Groups, 4)
}

func TestServiceRejectsInvertedWindow(t *testing.T) {
	svc := NewService(&stubRepo{})
	_, err := svc.TrialBalance(context.Background(), 3,
		time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC), time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, shared.CodeValidation, shared.CodeOf(err))
}

func TestTrialBalanceHandler(t *testing.T) {
	repo := &stubRepo{rows: sample()}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo))
	r := chi.NewRouter()
	r.Route("/reports", h.MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/reports/trial-balance?from=2025-01-01&to=2025-03-31", nil)
	req = req.WithContext(internalShared.ContextWithIdentity(req.Context(), internalShared.Identity{TenantID: 8, UserID: 1}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data struct {
			Balanced bool `json:"balanced"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.False(t, body.Data.Balanced)
	require.Equal(t, int64(8), repo.tenantID)
	require.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), repo.to)

	req = httptest.NewRequest(http.MethodGet, "/reports/trial-balance?to=yesterday", nil)
	req = req.WithContext(internalShared.ContextWithIdentity(req.Context(), internalShared.Identity{TenantID: 8, UserID: 1}))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
