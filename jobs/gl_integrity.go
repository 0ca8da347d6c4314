package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

const defaultIntegrityConcurrency = 4

// BalanceSource lists the per-account aggregates the integrity check compares.
type BalanceSource interface {
	ListTenants(ctx context.Context) ([]int64, error)
	ListBalanceChecks(ctx context.Context, tenantID int64) ([]journals.BalanceCheck, error)
}

// BalanceMismatch is an account whose newest running balance disagrees with its ledger totals.
type BalanceMismatch struct {
	TenantID  int64           `json:"tenant_id"`
	AccountID int64           `json:"account_id"`
	Running   decimal.Decimal `json:"running_balance"`
	Derived   decimal.Decimal `json:"derived_balance"`
}

// IntegrityReport summarizes one check.
type IntegrityReport struct {
	Tenants    int               `json:"tenants"`
	Accounts   int               `json:"accounts"`
	Mismatches []BalanceMismatch `json:"mismatches"`
}

// GLIntegrityJob verifies that the running balance chain of every account matches the balance
// derived from its summed debits and credits.
type GLIntegrityJob struct {
	Source      BalanceSource
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(source BalanceSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Source: source, Logger: logger, Metrics: metrics, Concurrency: defaultIntegrityConcurrency}
}

// Handle executes the integrity check task.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload GLIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.Tenants)
	return err
}

// Run checks the given tenants, or every tenant when none are given. Mismatches are logged and
// counted; only storage failures are returned as errors.
func (j *GLIntegrityJob) Run(ctx context.Context, tenants []int64) (IntegrityReport, error) {
	if j == nil || j.Source == nil {
		return IntegrityReport{}, errors.New("gl integrity: source not configured")
	}
	start := time.Now()
	tracker := j.metrics().Track(TaskGLIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if len(tenants) == 0 {
		var err error
		tenants, err = j.Source.ListTenants(ctx)
		if err != nil {
			resultErr = err
			return IntegrityReport{}, resultErr
		}
	}

	var (
		mu     sync.Mutex
		report = IntegrityReport{Tenants: len(tenants), Mismatches: []BalanceMismatch{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency())
	for _, tenantID := range tenants {
		tenantID := tenantID
		g.Go(func() error {
			checks, err := j.Source.ListBalanceChecks(gctx, tenantID)
			if err != nil {
				return err
			}
			mismatches := CompareBalances(checks)
			mu.Lock()
			report.Accounts += len(checks)
			report.Mismatches = append(report.Mismatches, mismatches...)
			mu.Unlock()
			j.metrics().AddAnomalies("gl_balance_mismatch", tenantID, len(mismatches))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		resultErr = err
		j.log().Error("gl integrity check failed", slog.Any("error", err))
		return IntegrityReport{}, resultErr
	}

	for _, m := range report.Mismatches {
		j.log().Warn("running balance mismatch",
			slog.Int64("tenant_id", m.TenantID),
			slog.Int64("account_id", m.AccountID),
			slog.String("running", m.Running.StringFixed(2)),
			slog.String("derived", m.Derived.StringFixed(2)),
		)
	}
	j.log().Info("gl integrity check completed",
		slog.Int("tenants", report.Tenants),
		slog.Int("accounts", report.Accounts),
		slog.Int("mismatches", len(report.Mismatches)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, resultErr
}

// CompareBalances returns the accounts whose newest running balance differs from the balance
// re-derived from their debit and credit totals. Balances are compared signed relative to the
// account's normal side.
func CompareBalances(checks []journals.BalanceCheck) []BalanceMismatch {
	var out []BalanceMismatch
	for _, c := range checks {
		derived, side := journals.ApplyMovement(decimal.Zero, c.NormalBalance, c.NormalBalance, c.TotalDebit, c.TotalCredit)
		want := journals.SignedBalance(derived, side, c.NormalBalance)
		got := journals.SignedBalance(c.LastBalance, c.LastSide, c.NormalBalance)
		if want.Equal(got) {
			continue
		}
		out = append(out, BalanceMismatch{TenantID: c.TenantID, AccountID: c.AccountID, Running: got, Derived: want})
	}
	return out
}

func (j *GLIntegrityJob) concurrency() int {
	if j.Concurrency > 0 {
		return j.Concurrency
	}
	return defaultIntegrityConcurrency
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
