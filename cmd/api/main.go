package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forkline-app/forkline-backend/api/routes"
	"github.com/forkline-app/forkline-backend/internal/delivery"
	"github.com/forkline-app/forkline-backend/internal/orders"
	"github.com/forkline-app/forkline-backend/internal/payments"
	"github.com/forkline-app/forkline-backend/internal/wallet"
	internalwebhooks "github.com/forkline-app/forkline-backend/internal/webhooks"
	paystackwebhook "github.com/forkline-app/forkline-backend/internal/webhooks/paystack"
	stripewebhook "github.com/forkline-app/forkline-backend/internal/webhooks/stripe"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/metrics"
	"github.com/forkline-app/forkline-backend/pkg/migrate"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
	"github.com/forkline-app/forkline-backend/pkg/paystack"
	"github.com/forkline-app/forkline-backend/pkg/redis"
	"github.com/forkline-app/forkline-backend/pkg/shipbubble"
	"github.com/forkline-app/forkline-backend/pkg/stripe"
	"github.com/forkline-app/forkline-backend/pkg/uberdirect"
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

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxSvc, cfg.Payments, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	walletSvc, err := wallet.NewService(wallet.NewRepository(dbClient.DB()), dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	selector, err := buildDeliverySelector(cfg.Delivery, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to configure delivery providers", err)
		os.Exit(1)
	}
	deliverySvc, err := delivery.NewService(delivery.NewRepository(dbClient.DB()), dbClient, outboxSvc, selector, ordersSvc, cfg.Delivery, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Payments, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}
	paystackClient, err := paystack.NewClient(cfg.Payments, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack client", err)
		os.Exit(1)
	}

	strategies, err := buildPaymentStrategies(walletSvc, stripeClient, paystackClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build payment strategies", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(
		payments.NewRepository(dbClient.DB()),
		dbClient,
		outboxSvc,
		ordersSvc,
		walletSvc,
		deliverySvc,
		strategies,
		cfg.Payments,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	stripeWebhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Payments: paymentsSvc, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	paystackWebhookSvc, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{Payments: paymentsSvc, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack webhook service", err)
		os.Exit(1)
	}

	stripeGuard, err := internalwebhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}
	paystackGuard, err := internalwebhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "paystack-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack webhook guard", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"instance":  id,
		"providers": len(selector.Available()),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			ordersSvc,
			paymentsSvc,
			walletSvc,
			deliverySvc,
			stripeClient,
			paystackClient,
			stripeWebhookSvc,
			paystackWebhookSvc,
			stripeGuard,
			paystackGuard,
			webhookMetrics,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildDeliverySelector registers every courier whose credentials are set.
// Startup fails only when no courier is configured at all.
func buildDeliverySelector(cfg config.DeliveryConfig, logg *logger.Logger) (*delivery.Selector, error) {
	providers := make([]delivery.Provider, 0, 2)

	if cfg.ShipbubbleAPIKey != "" {
		client, err := shipbubble.NewClient(cfg, logg)
		if err != nil {
			return nil, err
		}
		adapter, err := delivery.NewShipbubbleAdapter(client, cfg.QuoteTTL)
		if err != nil {
			return nil, err
		}
		providers = append(providers, adapter)
	}

	if cfg.UberDirectClientID != "" {
		client, err := uberdirect.NewClient(cfg, logg)
		if err != nil {
			return nil, err
		}
		adapter, err := delivery.NewUberDirectAdapter(client)
		if err != nil {
			return nil, err
		}
		providers = append(providers, adapter)
	}

	return delivery.NewSelector(cfg, providers...)
}

func buildPaymentStrategies(walletSvc wallet.Service, stripeClient *stripe.Client, paystackClient *paystack.Client) (payments.Strategies, error) {
	walletStrategy, err := payments.NewWalletStrategy(walletSvc)
	if err != nil {
		return nil, err
	}
	cardStrategy, err := payments.NewSavedCardStrategy(stripeClient)
	if err != nil {
		return nil, err
	}
	redirectStrategy, err := payments.NewRedirectStrategy(paystackClient)
	if err != nil {
		return nil, err
	}
	return payments.Strategies{
		enums.PaymentMethodWallet:          walletStrategy,
		enums.PaymentMethodSavedCard:       cardStrategy,
		enums.PaymentMethodGatewayRedirect: redirectStrategy,
	}, nil
}
