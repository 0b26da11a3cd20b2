package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gokselkaptan/takas-app-sub004/api/routes"
	"github.com/gokselkaptan/takas-app-sub004/internal/catalog"
	"github.com/gokselkaptan/takas-app-sub004/internal/disputes"
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

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)

	feeEngine, err := fees.NewEngine(cfg.Fees.Brackets)
	if err != nil {
		logg.Error(context.Background(), "failed to build fee engine", err)
		os.Exit(1)
	}
	trustUpdater := trust.NewUpdater(cfg.Trust)

	valorService, err := valor.NewService(valor.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create valor service", err)
		os.Exit(1)
	}

	swapRepo := swaps.NewRepository(gormDB)
	swapService, err := swaps.NewService(
		swapRepo,
		catalog.NewRepository(gormDB),
		valorService,
		stats.NewRepository(gormDB),
		feeEngine,
		trustUpdater,
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

	disputeService, err := disputes.NewService(
		disputes.NewRepository(gormDB),
		swapRepo,
		swapService,
		valorService,
		trustUpdater,
		dbClient,
		outboxService,
		settlementMetrics,
		cfg.Swaps,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispute service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			swapService,
			disputeService,
			valorService,
			notificationService,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}
