package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forkline-app/forkline-backend/internal/cron"
	"github.com/forkline-app/forkline-backend/internal/delivery"
	"github.com/forkline-app/forkline-backend/internal/orders"
	"github.com/forkline-app/forkline-backend/internal/payments"
	"github.com/forkline-app/forkline-backend/internal/wallet"
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

const lockKeyFormat = "fl:cron-worker:lock:%s"

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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
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

// buildRegistry wires the domain services the sweeps run against and
// registers every job.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)

	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxSvc, cfg.Payments, logg)
	if err != nil {
		return nil, err
	}
	walletSvc, err := wallet.NewService(wallet.NewRepository(dbClient.DB()), dbClient, outboxSvc, logg)
	if err != nil {
		return nil, err
	}

	selector, err := buildDeliverySelector(cfg.Delivery, logg)
	if err != nil {
		return nil, err
	}
	deliverySvc, err := delivery.NewService(delivery.NewRepository(dbClient.DB()), dbClient, outboxSvc, selector, ordersSvc, cfg.Delivery, logg)
	if err != nil {
		return nil, err
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Payments, logg)
	if err != nil {
		return nil, err
	}
	paystackClient, err := paystack.NewClient(cfg.Payments, logg)
	if err != nil {
		return nil, err
	}
	strategies, err := buildPaymentStrategies(walletSvc, stripeClient, paystackClient)
	if err != nil {
		return nil, err
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
		return nil, err
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		return nil, err
	}
	paymentTTLJob, err := cron.NewPaymentTTLJob(cron.PaymentTTLJobParams{
		Logger:   logg,
		Payments: paymentsSvc,
	})
	if err != nil {
		return nil, err
	}
	quoteExpiryJob, err := cron.NewQuoteExpiryJob(cron.QuoteExpiryJobParams{
		Logger:   logg,
		Delivery: deliverySvc,
	})
	if err != nil {
		return nil, err
	}
	walletAuditJob, err := cron.NewWalletAuditJob(cron.WalletAuditJobParams{
		Logger:  logg,
		DB:      dbClient,
		Outbox:  outboxSvc,
		Wallets: walletSvc,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(paymentTTLJob, quoteExpiryJob, walletAuditJob, retentionJob), nil
}

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

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
