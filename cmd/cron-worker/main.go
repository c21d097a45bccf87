package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/reservation"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const sweepLockName = "cron-worker"

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
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	requireResource(bootCtx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient)
	requireResource(bootCtx, logg, "dev migrations", err)

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	requireResource(bootCtx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, logg)
	requireResource(bootCtx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing pubsub", err)
		}
	}()

	registry := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(registry)
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(registry)

	notificationRepo := notifications.NewRepository(dbClient.DB())
	channels := []notifications.Channel{
		notifications.NewStoreChannel(notificationRepo),
		notifications.NewPubSubChannel(pubsubClient),
	}
	if chat := notifications.NewChatChannel(cfg.Notifications); chat != nil {
		channels = append(channels, chat)
	}
	dispatcher, err := notifications.NewDispatcher(logg, channels...)
	requireResource(bootCtx, logg, "notification dispatcher", err)

	coordinator, err := reservation.NewCoordinator(reservation.CoordinatorParams{
		Repo:    reservation.NewRepository(dbClient.DB()),
		Ledger:  inventory.NewLedger(dbClient.DB()),
		Tx:      dbClient,
		Logger:  logg,
		Metrics: fulfillmentMetrics,
	})
	requireResource(bootCtx, logg, "reservation coordinator", err)

	orderManager, err := orders.NewManager(orders.ManagerParams{
		Repo:         orders.NewRepository(dbClient.DB()),
		Tx:           dbClient,
		Reservations: coordinator,
		Notifier:     dispatcher,
		Logger:       logg,
		Metrics:      fulfillmentMetrics,
	})
	requireResource(bootCtx, logg, "order manager", err)

	staleJob, err := cron.NewStaleCheckoutJob(cron.StaleCheckoutJobParams{
		Logger:                 logg,
		Metrics:                fulfillmentMetrics,
		Reservations:           coordinator,
		Orders:                 orderManager,
		OrphanReservationAfter: cfg.Sweep.OrphanReservationAfter,
		PendingPaymentAfter:    cfg.Sweep.PendingPaymentAfter,
		BatchSize:              cfg.Sweep.BatchSize,
	})
	requireResource(bootCtx, logg, "stale checkout job", err)

	retentionJob, err := cron.NewNotificationRetentionJob(cron.NotificationRetentionJobParams{
		Logger:     logg,
		Repository: notificationRepo,
		Retention:  cfg.Sweep.NotificationRetention,
	})
	requireResource(bootCtx, logg, "notification retention job", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(sweepLockName), 0)
	requireResource(bootCtx, logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     []cron.Job{staleJob, retentionJob},
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Sweep.Interval,
	})
	requireResource(bootCtx, logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"interval":    cfg.Sweep.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if port := os.Getenv("PORT"); port != "" {
		metricsServer := &http.Server{
			Addr:              ":" + port,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
		defer func() {
			_ = metricsServer.Shutdown(context.Background())
		}()
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err != nil {
		logg.Error(ctx, "failed to bootstrap "+name, err)
		os.Exit(1)
	}
}
