package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forkline-app/forkline-backend/api/controllers"
	webhookcontrollers "github.com/forkline-app/forkline-backend/api/controllers/webhooks"
	"github.com/forkline-app/forkline-backend/api/middleware"
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
	"github.com/forkline-app/forkline-backend/pkg/paystack"
	"github.com/forkline-app/forkline-backend/pkg/redis"
	"github.com/forkline-app/forkline-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ordersSvc orders.Service,
	paymentsSvc payments.Service,
	walletSvc wallet.Service,
	deliverySvc delivery.Service,
	stripeClient *stripe.Client,
	paystackClient *paystack.Client,
	stripeWebhookService *stripewebhook.Service,
	paystackWebhookService *paystackwebhook.Service,
	stripeWebhookGuard *internalwebhooks.IdempotencyGuard,
	paystackWebhookGuard *internalwebhooks.IdempotencyGuard,
	webhookMetrics *metrics.WebhookMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	webhookPolicy := middleware.NewWebhookRateLimitPolicy(
		"webhooks",
		cfg.Eventing.WebhookRateLimitWindow,
		cfg.Eventing.WebhookRateLimitPerIP,
	)

	// Assign through a local so a nil client stays a nil interface and the
	// store-backed middleware can tell it is absent.
	var idempotencyStore redis.IdempotencyStore
	var rateLimitStore middleware.RateLimiterStore
	var redisPinger controllers.Pinger
	if redisClient != nil {
		idempotencyStore = redisClient
		rateLimitStore = redisClient
		redisPinger = redisClient
	}

	staffOnly := middleware.RolesOnly(enums.ActorRoleVendor, enums.ActorRoleAdmin, enums.ActorRoleOps)
	backOffice := middleware.RolesOnly(enums.ActorRoleAdmin, enums.ActorRoleOps)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookRateLimit(webhookPolicy, rateLimitStore, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, webhookMetrics, logg))
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(paystackWebhookService, paystackClient, paystackWebhookGuard, webhookMetrics, logg))
		r.Post("/delivery/{provider}", webhookcontrollers.DeliveryWebhook(deliverySvc, webhookMetrics, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAccess(middleware.AnyAuthenticated(), logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1", func(r chi.Router) {
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.CreateOrder(ordersSvc, deliverySvc, logg))
				r.Get("/", controllers.ListOrders(ordersSvc, logg))
				r.Get("/{orderId}", controllers.GetOrder(ordersSvc, logg))
				r.Post("/{orderId}/quotes", controllers.RequestQuotes(deliverySvc, logg))
				r.Get("/{orderId}/quotes", controllers.ListQuotes(deliverySvc, logg))
				r.Get("/{orderId}/payments", controllers.ListOrderPayments(paymentsSvc, logg))
				r.With(middleware.RequireAccess(staffOnly, logg)).
					Post("/{orderId}/status", controllers.UpdateOrderStatus(ordersSvc, logg))
				r.Post("/{orderId}/cancel", controllers.CancelOrder(paymentsSvc, logg))
			})

			r.Post("/quotes/{quoteId}/select", controllers.SelectQuote(deliverySvc, logg))
			r.Get("/deliveries/{deliveryId}", controllers.GetDelivery(deliverySvc, logg))

			r.Route("/payments", func(r chi.Router) {
				r.Post("/", controllers.InitiatePayment(paymentsSvc, logg))
				r.Get("/{paymentId}", controllers.GetPayment(paymentsSvc, logg))
				r.With(middleware.RequireAccess(backOffice, logg)).
					Post("/{paymentId}/refund", controllers.RefundPayment(paymentsSvc, logg))
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", controllers.GetWallet(walletSvc, logg))
				r.Get("/transactions", controllers.WalletTransactions(walletSvc, logg))
				r.Post("/fund", controllers.FundWallet(paymentsSvc, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAccess(backOffice, logg))
				r.Get("/ping", controllers.AdminPing())
				r.Route("/wallets", func(r chi.Router) {
					r.Post("/repair", controllers.RepairWallet(walletSvc, logg))
					r.Get("/{walletId}/audit", controllers.AuditWallet(walletSvc, logg))
				})
			})
		})
	})

	return r
}
