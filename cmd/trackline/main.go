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

	"github.com/trackline-erp/trackline/internal/app"
	"github.com/trackline-erp/trackline/internal/observability"
	"github.com/trackline-erp/trackline/internal/platform/cache"
	"github.com/trackline-erp/trackline/internal/platform/db"
	"github.com/trackline-erp/trackline/internal/rbac"
	"github.com/trackline-erp/trackline/internal/registry"
	"github.com/trackline-erp/trackline/internal/scan"
	"github.com/trackline-erp/trackline/internal/sequence"
	"github.com/trackline-erp/trackline/internal/serial"
	"github.com/trackline-erp/trackline/internal/shared"
	"github.com/trackline-erp/trackline/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	registryRepo := registry.NewRepository(dbpool)
	registryService := registry.NewService(registryRepo, auditLogger)
	registryHandler := registry.NewHandler(logger, registryService, jobsClient)

	sequenceRepo := sequence.NewRepository(dbpool)
	sequenceService := sequence.NewService(sequenceRepo, auditLogger, nil)
	sequenceHandler := sequence.NewHandler(logger, sequenceService)

	serialRepo := serial.NewRepository(dbpool)
	serialService := serial.NewService(serialRepo, registryService, sequenceService, idempotencyStore, auditLogger, metrics, redisClient, nil)
	serialHandler := serial.NewHandler(logger, serialService)

	scanService := scan.NewService(serialService, auditLogger, metrics, nil)
	scanHandler := scan.NewHandler(logger, scanService)

	rbacMiddleware := rbac.Middleware{AdminTokenHash: cfg.AdminTokenHash, Logger: logger}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		RegistryHandler: registryHandler,
		SequenceHandler: sequenceHandler,
		SerialHandler:   serialHandler,
		ScanHandler:     scanHandler,
		JobHandler:      jobHandler,
		RBACMiddleware:  rbacMiddleware,
		Metrics:         metrics,
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
