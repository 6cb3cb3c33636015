package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/aegis-platform/aegis/internal/accesscache"
	"github.com/aegis-platform/aegis/internal/app"
	"github.com/aegis-platform/aegis/internal/audit"
	"github.com/aegis-platform/aegis/internal/authz"
	"github.com/aegis-platform/aegis/internal/observability"
	"github.com/aegis-platform/aegis/internal/platform/db"
	"github.com/aegis-platform/aegis/internal/registry"
	"github.com/aegis-platform/aegis/internal/roles"
	"github.com/aegis-platform/aegis/jobs"
)

// registerAdminScope pre-registers the resource and operations guarding the
// management API so root users and explicitly granted operators can reach it.
func registerAdminScope(ctx context.Context, svc *registry.Service, logger *slog.Logger) {
	if _, err := svc.RegisterResource(ctx, registry.ResourceKey{Type: app.AdminResource}); err != nil {
		logger.Warn("register admin resource", slog.Any("error", err))
	}
	for _, opKey := range []string{app.OpAdminRead, app.OpAdminWrite} {
		if _, err := svc.RegisterOperation(ctx, registry.OperationKey{Key: opKey}); err != nil {
			logger.Warn("register admin operation", slog.String("op", opKey), slog.Any("error", err))
		}
	}
}

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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	validate := validator.New()

	cache := accesscache.New(redisClient, cfg.AccessCacheTTL, logger, metrics)

	registryRepo := registry.NewRepository(dbpool)
	registryService := registry.NewService(registryRepo, cache)
	registryHandler := registry.NewHandler(logger, registryService, validate)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(dbpool, rolesRepo, registryRepo, cache, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, validate)

	auditRepo := audit.NewRepository(dbpool)
	auditSink := audit.NewSink(auditRepo, cfg.AuditQueueCapacity, logger, metrics)
	auditSink.Start()
	defer auditSink.Close()
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	resolver := authz.NewResolver(registryService, rolesRepo, cache, auditSink, metrics, logger, authz.Config{
		RootUsers:  cfg.RootUsers,
		SelfBypass: cfg.SelfBypass,
	})
	authzHandler := authz.NewHandler(logger, resolver, validate)
	guard := authz.Middleware{Resolver: resolver, Logger: logger}

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(logger, jobsClient)

	registerAdminScope(ctx, registryService, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthzHandler:    authzHandler,
		RegistryHandler: registryHandler,
		RolesHandler:    rolesHandler,
		AuditHandler:    auditHandler,
		JobsHandler:     jobsHandler,
		Guard:           guard,
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
