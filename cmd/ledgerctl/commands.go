package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/auth"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type SeedAccountsCmd struct {
	Tenant int64  `help:"Tenant to seed." required:""`
	Chart  string `help:"YAML chart template; the built-in chart when empty." type:"existingfile"`
}

func (cmd *SeedAccountsCmd) Run(ctx *kong.Context, globals *Globals) error {
	chart, err := cmd.loadChart()
	if err != nil {
		return err
	}
	return withServices(globals, func(runCtx context.Context, svc *app.Services) error {
		res, err := svc.Accounts.Seed(runCtx, cmd.Tenant, chart)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(ctx.Stdout, "tenant %d: %d accounts created, %d already present\n", cmd.Tenant, res.Created, res.Skipped)
		return nil
	})
}

func (cmd *SeedAccountsCmd) loadChart() (accounts.Chart, error) {
	if cmd.Chart == "" {
		return accounts.DefaultChart()
	}
	f, err := os.Open(cmd.Chart)
	if err != nil {
		return accounts.Chart{}, err
	}
	defer f.Close()
	return accounts.LoadChart(f)
}

type TokenCmd struct {
	Tenant int64         `help:"Tenant claim." required:""`
	User   int64         `help:"User claim." required:""`
	TTL    time.Duration `help:"Token lifetime." default:"1h"`
	Secret string        `help:"HS256 signing secret." env:"JWT_SECRET" required:""`
}

func (cmd *TokenCmd) Run(ctx *kong.Context) error {
	token, err := auth.IssueToken(shared.Identity{TenantID: cmd.Tenant, UserID: cmd.User}, []byte(cmd.Secret), cmd.TTL, time.Now())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(ctx.Stdout, token)
	return nil
}

type CheckIntegrityCmd struct {
	Tenant []int64 `help:"Tenants to check; every tenant when omitted."`
}

func (cmd *CheckIntegrityCmd) Run(ctx *kong.Context, globals *Globals) error {
	return withServices(globals, func(runCtx context.Context, svc *app.Services) error {
		job := jobs.NewGLIntegrityJob(svc.Ledger, logger(globals), nil)
		report, err := job.Run(runCtx, cmd.Tenant)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(ctx.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if len(report.Mismatches) > 0 {
			return fmt.Errorf("%d accounts out of balance", len(report.Mismatches))
		}
		return nil
	})
}

type JobsCmd struct {
	RecurringDue RecurringDueCmd `cmd:"" name:"recurring-due" help:"Process due recurring templates."`
	GLIntegrity  GLIntegrityCmd  `cmd:"" name:"gl-integrity" help:"Run the general ledger integrity check."`
}

type RecurringDueCmd struct {
	Tenant int64  `help:"Limit processing to one tenant."`
	AsOf   string `name:"as-of" help:"Process as of this date (YYYY-MM-DD)."`
}

func (cmd *RecurringDueCmd) Run(ctx *kong.Context, globals *Globals) error {
	payload := jobs.RecurringDuePayload{TenantID: cmd.Tenant}
	if cmd.AsOf != "" {
		asOf, err := time.ParseInLocation(time.DateOnly, cmd.AsOf, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
		payload.AsOf = asOf
	}
	return enqueue(ctx, globals.RedisAddr, func(runCtx context.Context, c *jobs.Client) (*asynq.TaskInfo, error) {
		return c.EnqueueRecurringDue(runCtx, payload)
	})
}

type GLIntegrityCmd struct {
	Tenant []int64 `help:"Tenants to check; every tenant when omitted."`
}

func (cmd *GLIntegrityCmd) Run(ctx *kong.Context, globals *Globals) error {
	return enqueue(ctx, globals.RedisAddr, func(runCtx context.Context, c *jobs.Client) (*asynq.TaskInfo, error) {
		return c.EnqueueGLIntegrity(runCtx, jobs.GLIntegrityPayload{Tenants: cmd.Tenant})
	})
}

func enqueue(ctx *kong.Context, redisAddr string, fn func(context.Context, *jobs.Client) (*asynq.TaskInfo, error)) error {
	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	if err != nil {
		return err
	}
	defer client.Close()
	runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := fn(runCtx, client)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(ctx.Stdout, "enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
	return nil
}

func withServices(globals *Globals, fn func(context.Context, *app.Services) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	pool, err := db.New(runCtx, cfg.PGDSN, db.Options{MaxConns: 4})
	if err != nil {
		return err
	}
	defer pool.Close()
	svc, err := app.NewServices(app.ServiceDeps{Config: cfg, Logger: logger(globals), Pool: pool})
	if err != nil {
		return err
	}
	return fn(runCtx, svc)
}

func logger(globals *Globals) *slog.Logger {
	return app.NewLogger(&app.Config{LogFormat: globals.LogFormat})
}
