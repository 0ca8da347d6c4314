package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/auth"
	closehttp "github.com/odyssey-erp/odyssey-ledger/internal/close/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/settlement"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Auth              *auth.Middleware
	AccountsHandler   *accounts.Handler
	JournalsHandler   *journals.Handler
	PeriodsHandler    *closehttp.Handler
	PayablesHandler   *settlement.Handler
	ReceivableHandler *settlement.Handler
	RecurringHandler  *recurring.Handler
	ReportsHandler    *reports.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.Auth != nil {
			r.Use(params.Auth.Wrap)
		}
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.JournalsHandler != nil {
			r.Route("/journals", params.JournalsHandler.MountRoutes)
			r.Route("/ledger", params.JournalsHandler.MountLedgerRoutes)
		}
		if params.PeriodsHandler != nil {
			r.Route("/periods", params.PeriodsHandler.MountRoutes)
		}
		if params.PayablesHandler != nil {
			r.Route("/payables", params.PayablesHandler.MountRoutes)
		}
		if params.ReceivableHandler != nil {
			r.Route("/receivables", params.ReceivableHandler.MountRoutes)
		}
		if params.RecurringHandler != nil {
			r.Route("/recurring", params.RecurringHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

// Handlers builds the HTTP handlers for a wired service set.
func Handlers(logger *slog.Logger, svc *Services) RouterParams {
	return RouterParams{
		Logger:            logger,
		AccountsHandler:   accounts.NewHandler(logger, svc.Accounts),
		JournalsHandler:   journals.NewHandler(logger, svc.Journals),
		PeriodsHandler:    closehttp.NewHandler(logger, svc.Periods),
		PayablesHandler:   settlement.NewHandler(logger, svc.Settlements, settlement.KindPayable),
		ReceivableHandler: settlement.NewHandler(logger, svc.Settlements, settlement.KindReceivable),
		RecurringHandler:  recurring.NewHandler(logger, svc.Recurring),
		ReportsHandler:    reports.NewHandler(logger, svc.Reports),
	}
}
