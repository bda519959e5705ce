package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/voyagedesk/voyagedesk/internal/app"
	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/observability"
	"github.com/voyagedesk/voyagedesk/internal/permissions"
	"github.com/voyagedesk/voyagedesk/internal/platform/cache"
	"github.com/voyagedesk/voyagedesk/internal/platform/db"
	"github.com/voyagedesk/voyagedesk/jobs"
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

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(pool)
	permRepo := permissions.NewPGRepository(pool)
	profileCache := permissions.NewProfileCache(redisClient, permRepo, cfg.PermCacheTTL)
	permService := permissions.NewService(permissions.ServiceConfig{
		Repo:                permRepo,
		Audit:               auditRepo,
		Templates:           permissions.NewSQLTemplateStore(pool),
		Cache:               profileCache,
		AuditExpiredCleanup: cfg.PermAuditExpiredCleanup,
	})

	mailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	sweepJob := jobs.NewSweepExpiredJob(permService, permRepo, logger, metrics)
	notifyJob := jobs.NewNotifyExpiringJob(permService, permRepo, mailClient, cfg.PermExpiryNotifyWindow, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSweepExpired, Handler: sweepJob.Handle},
			{Type: jobs.TaskTypeNotifyExpiring, Handler: notifyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: jobs.NewSweepExpiredTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 8 * * *", Task: jobs.NewNotifyExpiringTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
