package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/aegis-platform/aegis/internal/accesscache"
	"github.com/aegis-platform/aegis/internal/app"
	"github.com/aegis-platform/aegis/internal/audit"
	jobmetrics "github.com/aegis-platform/aegis/internal/jobs"
	"github.com/aegis-platform/aegis/internal/platform/db"
	"github.com/aegis-platform/aegis/internal/registry"
	"github.com/aegis-platform/aegis/internal/roles"
	"github.com/aegis-platform/aegis/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	cache := accesscache.New(redisClient, cfg.AccessCacheTTL, logger, nil)
	registryRepo := registry.NewRepository(pool)
	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(pool, rolesRepo, registryRepo, cache, logger)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)

	metrics := jobmetrics.NewMetrics(nil)

	sweepTask, err := jobs.NewGrantSweepTask(jobs.GrantSweepPayload{BatchSize: 500})
	if err != nil {
		logger.Error("build grant sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	retentionTask, err := jobs.NewAuditRetentionTask(jobs.AuditRetentionPayload{BatchSize: 500})
	if err != nil {
		logger.Error("build audit retention task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGrantSweep, Handler: jobs.GrantSweepHandler(rolesService, logger, metrics)},
			{Type: jobs.TaskAuditRetention, Handler: jobs.AuditRetentionHandler(auditService, cfg.AuditRetention, logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
