package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context, tenantID int64) ([]Account, error) {
	return s.repo.List(ctx, tenantID)
}

func (s *Service) FindByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	return s.repo.FindByCode(ctx, tenantID, code)
}

func (s *Service) FindByType(ctx context.Context, tenantID int64, accountType AccountType) ([]Account, error) {
	return s.repo.FindByType(ctx, tenantID, accountType)
}

// Create validates and inserts a single account.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.TenantID == 0 {
		return Account{}, shared.Validation("tenant required")
	}
	if in.Code == "" || in.Name == "" {
		return Account{}, shared.Validation("account code and name required")
	}
	if !in.Type.Valid() {
		return Account{}, shared.Validation("unknown account type %q", in.Type)
	}
	switch in.NormalBalance {
	case "":
		in.NormalBalance = in.Type.DefaultNormalBalance()
	case NormalBalanceDebit, NormalBalanceCredit:
	default:
		return Account{}, shared.Validation("unknown normal balance %q", in.NormalBalance)
	}
	return s.repo.Insert(ctx, in)
}

// SeedResult reports how a chart template was applied.
type SeedResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Seed applies a chart template to a tenant. Existing codes are left untouched.
func (s *Service) Seed(ctx context.Context, tenantID int64, chart Chart) (SeedResult, error) {
	var res SeedResult
	for _, row := range chart.Accounts {
		_, err := s.Create(ctx, CreateInput{
			TenantID:      tenantID,
			Code:          row.Code,
			Name:          row.Name,
			Type:          row.Type,
			NormalBalance: row.NormalBalance,
			ParentCode:    row.Parent,
		})
		if errors.Is(err, ErrDuplicateCode) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Created++
	}
	s.logger.Info("chart seeded", slog.Int64("tenant_id", tenantID), slog.Int("created", res.Created), slog.Int("skipped", res.Skipped))
	return res, nil
}
