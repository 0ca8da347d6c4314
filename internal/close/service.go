package close

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DefaultLockTTL bounds how long a crashed close can keep a period locked.
const DefaultLockTTL = 2 * time.Minute

// Locker hands out the per-period close lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*internalShared.Lock, error)
}

// Service orchestrates accounting period lifecycle.
type Service struct {
	repo      Repository
	journals  *journals.Service
	locker    Locker
	lockTTL   time.Duration
	audit     journals.AuditPort
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Config bundles the collaborators of a Service. Locker, Audit and Publisher are optional.
type Config struct {
	Journals  *journals.Service
	Locker    Locker
	LockTTL   time.Duration
	Audit     journals.AuditPort
	Publisher events.Publisher
	Logger    *slog.Logger
}

// NewService constructs a Service instance.
func NewService(repo Repository, cfg Config) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		journals:  cfg.Journals,
		locker:    cfg.Locker,
		lockTTL:   cfg.LockTTL,
		audit:     cfg.Audit,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListPeriods returns the tenant's periods, newest first.
func (s *Service) ListPeriods(ctx context.Context, tenantID int64) ([]periods.Period, error) {
	return s.repo.ListPeriods(ctx, tenantID)
}

// GetPeriod returns a single accounting period of the tenant.
func (s *Service) GetPeriod(ctx context.Context, tenantID, id int64) (periods.Period, error) {
	return s.repo.GetPeriod(ctx, tenantID, id)
}

// CreatePeriod inserts a new open period after validating overlap.
func (s *Service) CreatePeriod(ctx context.Context, in CreatePeriodInput) (periods.Period, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return periods.Period{}, err
	}
	var period periods.Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.OverlappingPeriods(ctx, in.TenantID, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &shared.Error{
				Code:    shared.CodePeriodOverlap,
				Message: fmt.Sprintf("period overlaps %s", existing[0].Name),
				Details: map[string]any{"period_id": existing[0].ID},
			}
		}
		period, err = tx.InsertPeriod(ctx, in.TenantID, in.Name, in.StartDate, in.EndDate)
		return err
	})
	if err != nil {
		return periods.Period{}, err
	}
	s.logger.Info("period created", slog.Int64("tenant_id", in.TenantID), slog.Int64("period_id", period.ID), slog.String("name", period.Name))
	return period, nil
}

// ClosePeriod closes an open period. Profit-and-loss accounts are zeroed into retained earnings by
// a posted closing journal dated the period end, in the same transaction as the status change.
func (s *Service) ClosePeriod(ctx context.Context, in ClosePeriodInput) (CloseResult, error) {
	if in.TenantID == 0 || in.UserID == 0 || in.PeriodID == 0 {
		return CloseResult{}, shared.Validation("tenant, user and period are required")
	}
	if s.journals == nil {
		return CloseResult{}, errors.New("close: journal service not configured")
	}
	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, internalShared.FinanceLockKey(in.TenantID, in.PeriodID), s.lockTTL)
		if errors.Is(err, internalShared.ErrLockHeld) {
			return CloseResult{}, shared.ErrCloseInProgress
		}
		if err != nil {
			return CloseResult{}, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release close lock", slog.Int64("period_id", in.PeriodID), slog.Any("error", err))
			}
		}()
	}

	var res CloseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res = CloseResult{}
		period, err := tx.GetPeriodForUpdate(ctx, in.TenantID, in.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != periods.PeriodStatusOpen {
			return &shared.Error{Code: shared.CodeAlreadyClosed, Message: "period " + period.Name + " is already closed"}
		}
		unposted, err := tx.CountUnpostedJournals(ctx, in.TenantID, period.StartDate, period.EndDate)
		if err != nil {
			return err
		}
		if unposted > 0 {
			return shared.UnpostedJournals(unposted)
		}
		retained, err := tx.FindAccountsByType(ctx, in.TenantID, accounts.AccountTypeRetainedEarnings)
		if err != nil {
			return err
		}
		if len(retained) == 0 {
			return shared.ErrNoREAccount
		}
		totals, err := tx.SumAccountTotals(ctx, in.TenantID, period.StartDate, period.EndDate, profitAndLossTypes)
		if err != nil {
			return err
		}
		lines, netIncome := BuildClosingLines(totals, retained[0].ID)
		res.NetIncome = netIncome
		if len(lines) > 0 {
			periodID := period.ID
			entry, err := s.journals.CreateTx(ctx, tx, journals.CreateInput{
				TenantID:        in.TenantID,
				UserID:          in.UserID,
				Type:            journals.JournalTypeClosing,
				TransactionDate: period.EndDate,
				Description:     "Closing Entries for " + period.Name,
				ReferenceType:   journals.ReferenceAccountingPeriod,
				ReferenceID:     &periodID,
				Lines:           lines,
				Post:            true,
			})
			if err != nil {
				return err
			}
			res.ClosingJournal = &entry
		}
		closedAt := s.now()
		if err := tx.MarkPeriodClosed(ctx, period.ID, in.UserID, closedAt, in.Notes); err != nil {
			return err
		}
		period.Status = periods.PeriodStatusClosed
		period.ClosedAt = &closedAt
		period.ClosedBy = &in.UserID
		period.Notes = in.Notes
		res.Period = period
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}

	s.logger.Info("period closed",
		slog.Int64("tenant_id", in.TenantID),
		slog.Int64("period_id", res.Period.ID),
		slog.String("net_income", res.NetIncome.StringFixed(2)),
		slog.Bool("closing_journal", res.ClosingJournal != nil),
	)
	s.record(ctx, in, res)
	if res.ClosingJournal != nil {
		s.publish(ctx, events.New(events.TypeJournalPosted, in.TenantID, *res.ClosingJournal))
	}
	s.publish(ctx, events.New(events.TypePeriodClosed, in.TenantID, res))
	return res, nil
}

func (s *Service) record(ctx context.Context, in ClosePeriodInput, res CloseResult) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{"name": res.Period.Name, "net_income": res.NetIncome.StringFixed(2)}
	if res.ClosingJournal != nil {
		meta["closing_journal"] = res.ClosingJournal.Number
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		TenantID: in.TenantID,
		ActorID:  in.UserID,
		Action:   "period.close",
		Entity:   "accounting_period",
		EntityID: fmt.Sprintf("%d", res.Period.ID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", "period.close"), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("publish period event", slog.String("type", e.Type), slog.Any("error", err))
	}
}
