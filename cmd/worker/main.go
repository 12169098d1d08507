package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/campus-ops/campus-ops/internal/app"
	"github.com/campus-ops/campus-ops/internal/foodstuff"
	jobmetrics "github.com/campus-ops/campus-ops/internal/jobs"
	"github.com/campus-ops/campus-ops/internal/platform/db"
	"github.com/campus-ops/campus-ops/internal/requisition"
	"github.com/campus-ops/campus-ops/internal/shared"
	"github.com/campus-ops/campus-ops/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	foodstuffRepo := foodstuff.NewRepository(pool)
	foodstuffService := foodstuff.NewService(foodstuffRepo, nil, nil, foodstuff.ServiceConfig{
		LowStockThreshold: cfg.StockLowThreshold,
	})
	requisitionRepo := requisition.NewRepository(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	alertScanner := jobs.NewStockAlertScanner(foodstuffService, client, logger)
	dueReminder := jobs.NewRequisitionReminder(requisitionRepo, client, logger)
	cleaner := jobs.NewIdempotencyCleaner(idempotencyStore, cfg.IdempotencyRetention, logger)

	jm := jobmetrics.NewMetrics(nil)
	instrument := func(job string, fn asynq.HandlerFunc) asynq.HandlerFunc {
		return func(ctx context.Context, t *asynq.Task) error {
			return jm.Track(job).End(fn(ctx, t))
		}
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockAlertScan, Handler: instrument(jobs.TaskStockAlertScan, alertScanner.Handle)},
			{Type: jobs.TaskRequisitionDueReminder, Handler: instrument(jobs.TaskRequisitionDueReminder, dueReminder.Handle)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: instrument(jobs.TaskIdempotencyCleanup, cleaner.Handle)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 6 * * *", Task: jobs.NewStockAlertScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 6 * * *", Task: jobs.NewRequisitionDueReminderTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
