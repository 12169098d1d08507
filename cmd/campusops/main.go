package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campus-ops/campus-ops/internal/app"
	"github.com/campus-ops/campus-ops/internal/cookedfood"
	"github.com/campus-ops/campus-ops/internal/foodstuff"
	"github.com/campus-ops/campus-ops/internal/observability"
	"github.com/campus-ops/campus-ops/internal/platform/cache"
	"github.com/campus-ops/campus-ops/internal/platform/db"
	"github.com/campus-ops/campus-ops/internal/reporting"
	"github.com/campus-ops/campus-ops/internal/requisition"
	"github.com/campus-ops/campus-ops/internal/shared"
	"github.com/campus-ops/campus-ops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Reports degrade to uncached reads without Redis.
		logger.Warn("connect redis", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool, logger)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	sequenceAllocator := shared.NewSequenceAllocator(dbpool)
	metrics := observability.NewMetrics()

	cookedFoodRepo := cookedfood.NewRepository(dbpool)
	cookedFoodService := cookedfood.NewService(cookedFoodRepo, auditLogger)

	foodstuffRepo := foodstuff.NewRepository(dbpool)
	foodstuffService := foodstuff.NewService(foodstuffRepo, cookedFoodService, auditLogger, foodstuff.ServiceConfig{
		LowStockThreshold: cfg.StockLowThreshold,
	})

	requisitionRepo := requisition.NewRepository(dbpool)
	requisitionService := requisition.NewService(
		requisitionRepo,
		cookedFoodService,
		foodstuffService,
		foodstuffService,
		sequenceAllocator,
		idempotencyStore,
		approvalRecorder,
		auditLogger,
	)

	reportingRepo := reporting.NewRepository(dbpool)
	reportingCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	reportingService := reporting.NewService(reportingRepo, foodstuffService, reportingCache)
	if err := reportingCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("reporting cache subscription", slog.Any("error", err))
	}

	foodstuffHandler := foodstuff.NewHandler(logger, foodstuffService, metrics)
	requisitionHandler := requisition.NewHandler(logger, requisitionService, metrics)
	cookedFoodHandler := cookedfood.NewHandler(logger, cookedFoodService)
	reportingHandler := reporting.NewHandler(logger, reportingService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		FoodstuffHandler:   foodstuffHandler,
		RequisitionHandler: requisitionHandler,
		CookedFoodHandler:  cookedFoodHandler,
		ReportingHandler:   reportingHandler,
		JobHandler:         jobHandler,
		Invalidator:        reportingService,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
