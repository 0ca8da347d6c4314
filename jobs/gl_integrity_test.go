package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

type stubBalances struct {
	tenants []int64
	checks  map[int64][]journals.BalanceCheck
	err     error
}

func (s stubBalances) ListTenants(context.Context) ([]int64, error) {
	return s.tenants, nil
}

func (s stubBalances) ListBalanceChecks(_ context.Context, tenantID int64) ([]journals.BalanceCheck, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.checks[tenantID], nil
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompareBalances(t *testing.T) {
	checks := []journals.BalanceCheck{
		// cash: 500 in, 200 out
		{TenantID: 1, AccountID: 10, NormalBalance: accounts.NormalBalanceDebit,
			TotalDebit: dec("500"), TotalCredit: dec("200"), LastBalance: dec("300"), LastSide: accounts.NormalBalanceDebit},
		// overdrawn cash carried on the credit side
		{TenantID: 1, AccountID: 11, NormalBalance: accounts.NormalBalanceDebit,
			TotalDebit: dec("100"), TotalCredit: dec("150"), LastBalance: dec("50"), LastSide: accounts.NormalBalanceCredit},
		// payable chain drifted
		{TenantID: 1, AccountID: 20, NormalBalance: accounts.NormalBalanceCredit,
			TotalDebit: dec("40"), TotalCredit: dec("100"), LastBalance: dec("70"), LastSide: accounts.NormalBalanceCredit},
		// side flipped without the magnitude matching
		{TenantID: 1, AccountID: 21, NormalBalance: accounts.NormalBalanceCredit,
			TotalDebit: dec("0"), TotalCredit: dec("25"), LastBalance: dec("25"), LastSide: accounts.NormalBalanceDebit},
	}

	got := CompareBalances(checks)
	require.Len(t, got, 2)
	require.Equal(t, int64(20), got[0].AccountID)
	require.True(t, got[0].Running.Equal(dec("70")))
	require.True(t, got[0].Derived.Equal(dec("60")))
	require.Equal(t, int64(21), got[1].AccountID)
	require.True(t, got[1].Running.Equal(dec("-25")))
	require.True(t, got[1].Derived.Equal(dec("25")))
}

func TestGLIntegrityRunAcrossTenants(t *testing.T) {
	source := stubBalances{
		tenants: []int64{1, 2},
		checks: map[int64][]journals.BalanceCheck{
			1: {{TenantID: 1, AccountID: 10, NormalBalance: accounts.NormalBalanceDebit,
				TotalDebit: dec("10"), TotalCredit: dec("0"), LastBalance: dec("10"), LastSide: accounts.NormalBalanceDebit}},
			2: {
				{TenantID: 2, AccountID: 30, NormalBalance: accounts.NormalBalanceDebit,
					TotalDebit: dec("10"), TotalCredit: dec("0"), LastBalance: dec("9"), LastSide: accounts.NormalBalanceDebit},
				{TenantID: 2, AccountID: 31, NormalBalance: accounts.NormalBalanceCredit,
					TotalDebit: dec("0"), TotalCredit: dec("5"), LastBalance: dec("5"), LastSide: accounts.NormalBalanceCredit},
			},
		},
	}
	job := NewGLIntegrityJob(source, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.Concurrency = 2

	report, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, report.Tenants)
	require.Equal(t, 3, report.Accounts)
	require.Len(t, report.Mismatches, 1)
	require.Equal(t, int64(2), report.Mismatches[0].TenantID)
	require.Equal(t, int64(30), report.Mismatches[0].AccountID)
}

func TestGLIntegrityRunScopedTenants(t *testing.T) {
	source := stubBalances{
		tenants: []int64{1, 2},
		checks: map[int64][]journals.BalanceCheck{
			2: {{TenantID: 2, AccountID: 30, NormalBalance: accounts.NormalBalanceDebit,
				TotalDebit: dec("10"), TotalCredit: dec("0"), LastBalance: dec("10"), LastSide: accounts.NormalBalanceDebit}},
		},
	}
	job := NewGLIntegrityJob(source, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	report, err := job.Run(context.Background(), []int64{2})
	require.NoError(t, err)
	require.Equal(t, 1, report.Tenants)
	require.Equal(t, 1, report.Accounts)
	require.Empty(t, report.Mismatches)
}

func TestGLIntegrityRunSurfacesStorageErrors(t *testing.T) {
	boom := errors.New("connection reset")
	job := NewGLIntegrityJob(stubBalances{tenants: []int64{1}, err: boom}, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	_, err := job.Run(context.Background(), nil)
	require.ErrorIs(t, err, boom)
}

func TestGLIntegrityHandleRejectsBadPayload(t *testing.T) {
	job := NewGLIntegrityJob(stubBalances{}, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynqTask(TaskGLIntegrity, []byte("{")))
	require.Error(t, err)
}
