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

	"github.com/gestia-erp/gestia/internal/app"
	"github.com/gestia-erp/gestia/internal/auth"
	"github.com/gestia-erp/gestia/internal/observability"
	"github.com/gestia-erp/gestia/internal/platform/cache"
	"github.com/gestia-erp/gestia/internal/platform/db"
	"github.com/gestia-erp/gestia/internal/shared"
	syncengine "github.com/gestia-erp/gestia/internal/sync"
	"github.com/gestia-erp/gestia/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	sessions := shared.NewSessionStore(redisClient, cfg.SessionTTL)
	tenantLock := shared.NewTenantLock(redisClient, cfg.SyncLockLease, cfg.SyncLockWait)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, sessions)
	authHandler := auth.NewHandler(logger, authService)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	syncMetrics := observability.NewSyncMetrics(metrics.Registerer())

	syncRepo := syncengine.NewRepository(pool)
	syncService := syncengine.NewService(logger, syncRepo, tenantLock, jobs.NewEnqueuer(asynqClient), syncMetrics, syncengine.ServiceConfig{
		ClockSkew: cfg.SyncClockSkew,
		MaxBatch:  cfg.SyncMaxBatch,
	})
	syncHandler := syncengine.NewHandler(logger, syncService)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		AuthHandler: authHandler,
		SyncHandler: syncHandler,
		Metrics:     metrics,
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
