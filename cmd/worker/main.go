package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(ctx, cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			logger.Error("connect nats", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := natsPublisher.Close(); err != nil {
				logger.Warn("nats close", slog.Any("error", err))
			}
		}()
		publisher = natsPublisher
	}

	services, err := app.NewServices(app.ServiceDeps{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Publisher: publisher,
	})
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	recurringJob := jobs.NewRecurringDueJob(services.Recurring, logger, metrics)
	integrityJob := jobs.NewGLIntegrityJob(services.Ledger, logger, metrics)
	integrityJob.Concurrency = cfg.IntegrityConcurrency

	recurringTask, err := jobs.NewRecurringDueTask(jobs.RecurringDuePayload{})
	if err != nil {
		logger.Error("build recurring task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewGLIntegrityTask(jobs.GLIntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurringProcessDue, Handler: recurringJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecurringCron, Task: recurringTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
