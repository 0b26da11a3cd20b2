package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gokselkaptan/takas-app-sub004/internal/catalog"
	"github.com/gokselkaptan/takas-app-sub004/internal/cron"
	"github.com/gokselkaptan/takas-app-sub004/internal/fees"
	"github.com/gokselkaptan/takas-app-sub004/internal/notifications"
	"github.com/gokselkaptan/takas-app-sub004/internal/stats"
	"github.com/gokselkaptan/takas-app-sub004/internal/swaps"
	"github.com/gokselkaptan/takas-app-sub004/internal/trust"
	"github.com/gokselkaptan/takas-app-sub004/internal/valor"
	"github.com/gokselkaptan/takas-app-sub004/pkg/config"
	"github.com/gokselkaptan/takas-app-sub004/pkg/db"
	"github.com/gokselkaptan/takas-app-sub004/pkg/logger"
	"github.com/gokselkaptan/takas-app-sub004/pkg/metrics"
	"github.com/gokselkaptan/takas-app-sub004/pkg/migrate"
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox"
	"github.com/gokselkaptan/takas-app-sub004/pkg/redis"
)

const lockKeyFormat = "takas:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxService := outbox.NewService(outboxRepo, logg)
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)

	feeEngine, err := fees.NewEngine(cfg.Fees.Brackets)
	if err != nil {
		logg.Error(context.Background(), "failed to build fee engine", err)
		os.Exit(1)
	}

	valorService, err := valor.NewService(valor.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create valor service", err)
		os.Exit(1)
	}

	swapService, err := swaps.NewService(
		swaps.NewRepository(gormDB),
		catalog.NewRepository(gormDB),
		valorService,
		stats.NewRepository(gormDB),
		feeEngine,
		trust.NewUpdater(cfg.Trust),
		dbClient,
		outboxService,
		settlementMetrics,
		logg,
		cfg.Swaps,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create swap service", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 2*cfg.Swaps.SweepInterval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()

	sweepJobs, err := cron.NewSweepJobs(cron.SweepJobsParams{
		Logger: logg,
		Swaps:  swapService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep jobs", err)
		os.Exit(1)
	}
	for _, job := range sweepJobs {
		registry.Register(job)
	}

	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRepository(gormDB),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}
	registry.Register(notificationCleanup)

	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	registry.Register(outboxRetention)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Swaps.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
