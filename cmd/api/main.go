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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/reservation"
	squarewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/square"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/square"
	"github.com/angelmondragon/storefront-backend/pkg/storage/gcs"
)

const squareWebhookScope = "square-webhook"

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

	gcsClient, err := gcs.NewClient(bootCtx, cfg.GCS, cfg.GCP, logg)
	requireResource(bootCtx, logg, "gcs", err)
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing gcs", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, logg)
	requireResource(bootCtx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing pubsub", err)
		}
	}()

	squareClient, err := square.NewClient(bootCtx, cfg.Square, logg)
	requireResource(bootCtx, logg, "square client", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(registry)

	channels := []notifications.Channel{
		notifications.NewStoreChannel(notifications.NewRepository(dbClient.DB())),
		notifications.NewPubSubChannel(pubsubClient),
	}
	if chat := notifications.NewChatChannel(cfg.Notifications); chat != nil {
		channels = append(channels, chat)
	}
	dispatcher, err := notifications.NewDispatcher(logg, channels...)
	requireResource(bootCtx, logg, "notification dispatcher", err)

	ledger := inventory.NewLedger(dbClient.DB())
	coordinator, err := reservation.NewCoordinator(reservation.CoordinatorParams{
		Repo:    reservation.NewRepository(dbClient.DB()),
		Ledger:  ledger,
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

	offline, err := payments.NewOfflineTransfer(payments.OfflineTransferParams{
		Store:        gcsClient,
		Orders:       orderManager,
		Logger:       logg,
		MaxBytes:     cfg.Checkout.ProofMaxBytes,
		AllowedTypes: cfg.Checkout.ProofAllowedTypes,
		Prefix:       cfg.GCS.ProofPrefix,
	})
	requireResource(bootCtx, logg, "offline transfer path", err)

	hosted, err := payments.NewHostedPayment(payments.HostedPaymentParams{
		Gateway:     squareClient,
		Orders:      orderManager,
		Logger:      logg,
		Metrics:     fulfillmentMetrics,
		Breaker:     cfg.Gateway,
		RedirectURL: cfg.Checkout.RedirectURL,
		Currency:    cfg.Checkout.Currency,
	})
	requireResource(bootCtx, logg, "hosted payment path", err)

	paths, err := payments.NewRegistry(offline, hosted)
	requireResource(bootCtx, logg, "payment path registry", err)

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Catalog:      ledger,
		Reservations: coordinator,
		Orders:       orderManager,
		Paths:        paths,
		Logger:       logg,
		Currency:     cfg.Checkout.Currency,
	})
	requireResource(bootCtx, logg, "checkout service", err)

	productService, err := product.NewService(ledger, logg)
	requireResource(bootCtx, logg, "product service", err)

	webhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{Payments: hosted, Logger: logg})
	requireResource(bootCtx, logg, "square webhook service", err)

	webhookGuard, err := squarewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, squareWebhookScope)
	requireResource(bootCtx, logg, "square webhook guard", err)

	pingers := map[string]controllers.Pinger{
		"db":     dbClient,
		"redis":  redisClient,
		"gcs":    gcsClient,
		"pubsub": pubsubClient,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(bootCtx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(
			cfg,
			logg,
			registry,
			pingers,
			redisClient,
			checkoutService,
			orderManager,
			paths,
			productService,
			webhookService,
			webhookGuard,
		),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down")
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err != nil {
		logg.Error(ctx, "failed to bootstrap "+name, err)
		os.Exit(1)
	}
}
