package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ServiceDeps are the infrastructure handles the ledger services are built from.
type ServiceDeps struct {
	Config    *Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Redis     redis.UniversalClient
	Publisher events.Publisher
	Observer  journals.PostingObserver
}

// Services is the wired set of ledger components shared by the binaries.
type Services struct {
	Ledger      journals.Repository
	Accounts    *accounts.Service
	Journals    *journals.Service
	Periods     *close.Service
	Settlements *settlement.Service
	Recurring   *recurring.Service
	Reports     *reports.Service
	AccountMap  *mappings.Resolver
	AuditLogger *shared.AuditLogger
}

// NewServices wires repositories and services over a single pool.
func NewServices(deps ServiceDeps) (*Services, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	accountMap, err := loadAccountMap(deps.Config)
	if err != nil {
		return nil, err
	}

	audit := shared.NewAuditLogger(deps.Pool)
	journalRepo := journals.NewRepository(deps.Pool)
	entries := journals.NewService(journalRepo, journals.NewPoster(deps.Observer), audit, publisher, logger)

	var locker close.Locker
	if deps.Redis != nil {
		locker = shared.NewRedisLocker(deps.Redis)
	}
	closeCfg := close.Config{
		Journals:  entries,
		Locker:    locker,
		Audit:     audit,
		Publisher: publisher,
		Logger:    logger,
	}
	if deps.Config != nil {
		closeCfg.LockTTL = deps.Config.CloseLockTTL
	}

	resolver := mappings.NewResolver(accountMap, mappings.NewRepository(deps.Pool))

	return &Services{
		Ledger:   journalRepo,
		Accounts: accounts.NewService(accounts.NewRepository(deps.Pool), logger),
		Journals: entries,
		Periods:  close.NewService(close.NewRepository(deps.Pool), closeCfg),
		Settlements: settlement.NewService(settlement.NewRepository(deps.Pool), settlement.Config{
			Journals:  entries,
			Accounts:  resolver,
			Audit:     audit,
			Publisher: publisher,
			Logger:    logger,
		}),
		Recurring: recurring.NewService(recurring.NewRepository(deps.Pool), recurring.Config{
			Journals:  entries,
			Audit:     audit,
			Publisher: publisher,
			Logger:    logger,
		}),
		Reports:     reports.NewService(reports.NewRepository(deps.Pool)),
		AccountMap:  resolver,
		AuditLogger: audit,
	}, nil
}

func loadAccountMap(cfg *Config) (mappings.Map, error) {
	if cfg == nil || cfg.AccountMapFile == "" {
		return mappings.Default()
	}
	f, err := os.Open(cfg.AccountMapFile)
	if err != nil {
		return mappings.Map{}, fmt.Errorf("app: open account map: %w", err)
	}
	defer f.Close()
	m, err := mappings.Load(f)
	if err != nil {
		return mappings.Map{}, fmt.Errorf("app: load account map %s: %w", cfg.AccountMapFile, err)
	}
	return m, nil
}
