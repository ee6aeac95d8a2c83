package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "forkline"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "FORKLINE_DB_DSN"
	EnvDBHost = "FORKLINE_DB_HOST"
	EnvDBUser = "FORKLINE_DB_USER"
	EnvDBName = "FORKLINE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Payments PaymentsConfig
	Delivery DeliveryConfig
	PubSub   PubSubConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FORKLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"FORKLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FORKLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FORKLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FORKLINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FORKLINE_DB_DSN"`
	Driver string `envconfig:"FORKLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FORKLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"FORKLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FORKLINE_DB_USER"`
	LegacyPassword string `envconfig:"FORKLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"FORKLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"FORKLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FORKLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FORKLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FORKLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FORKLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FORKLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FORKLINE_REDIS_ADDR"`
	Password     string        `envconfig:"FORKLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FORKLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FORKLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FORKLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FORKLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FORKLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FORKLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FORKLINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FORKLINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FORKLINE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PaymentsConfig carries gateway credentials plus the marketplace fee
// percentages applied when order totals are computed.
type PaymentsConfig struct {
	StripeAPIKey        string `envconfig:"FORKLINE_STRIPE_API_KEY"`
	StripeWebhookSecret string `envconfig:"FORKLINE_STRIPE_WEBHOOK_SECRET"`
	StripeEnv           string `envconfig:"FORKLINE_STRIPE_ENV" default:"test"`

	PaystackSecretKey string `envconfig:"FORKLINE_PAYSTACK_SECRET_KEY"`
	PaystackBaseURL   string `envconfig:"FORKLINE_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	PaystackCallback  string `envconfig:"FORKLINE_PAYSTACK_CALLBACK_URL"`

	ServiceFeePercent    string        `envconfig:"FORKLINE_SERVICE_FEE_PERCENT" default:"5"`
	CommissionPercent    string        `envconfig:"FORKLINE_COMMISSION_PERCENT" default:"10"`
	WalletFundingMin     string        `envconfig:"FORKLINE_WALLET_FUNDING_MIN" default:"100"`
	WalletFundingMax     string        `envconfig:"FORKLINE_WALLET_FUNDING_MAX" default:"1000000"`
	PendingPaymentMaxAge time.Duration `envconfig:"FORKLINE_PENDING_PAYMENT_MAX_AGE" default:"24h"`
}

// StripeEnvironment returns the normalized Stripe environment (test/live).
func (p PaymentsConfig) StripeEnvironment() string {
	env := strings.TrimSpace(strings.ToLower(p.StripeEnv))
	if env == "" {
		return "test"
	}
	return env
}

// DeliveryConfig carries courier provider credentials and webhook signing
// keys. SignatureRequired controls whether delivery webhooks without a
// configured signing key are rejected (the default) or accepted with a
// logged warning.
type DeliveryConfig struct {
	DomesticCountry string `envconfig:"FORKLINE_DELIVERY_DOMESTIC_COUNTRY" default:"NG"`

	ShipbubbleAPIKey     string `envconfig:"FORKLINE_SHIPBUBBLE_API_KEY"`
	ShipbubbleBaseURL    string `envconfig:"FORKLINE_SHIPBUBBLE_BASE_URL" default:"https://api.shipbubble.com/v1"`
	ShipbubbleSigningKey string `envconfig:"FORKLINE_SHIPBUBBLE_SIGNING_KEY"`

	UberDirectClientID     string `envconfig:"FORKLINE_UBER_DIRECT_CLIENT_ID"`
	UberDirectClientSecret string `envconfig:"FORKLINE_UBER_DIRECT_CLIENT_SECRET"`
	UberDirectCustomerID   string `envconfig:"FORKLINE_UBER_DIRECT_CUSTOMER_ID"`
	UberDirectBaseURL      string `envconfig:"FORKLINE_UBER_DIRECT_BASE_URL" default:"https://api.uber.com"`
	UberDirectSigningKey   string `envconfig:"FORKLINE_UBER_DIRECT_SIGNING_KEY"`

	SignatureRequired bool          `envconfig:"FORKLINE_DELIVERY_SIGNATURE_REQUIRED" default:"true"`
	QuoteTTL          time.Duration `envconfig:"FORKLINE_DELIVERY_QUOTE_TTL" default:"15m"`
}

type PubSubConfig struct {
	ProjectID           string `envconfig:"FORKLINE_PUBSUB_PROJECT_ID"`
	OrderEventsTopic    string `envconfig:"FORKLINE_PUBSUB_ORDER_EVENTS_TOPIC" default:"fl-order-events"`
	PaymentEventsTopic  string `envconfig:"FORKLINE_PUBSUB_PAYMENT_EVENTS_TOPIC" default:"fl-payment-events"`
	DeliveryEventsTopic string `envconfig:"FORKLINE_PUBSUB_DELIVERY_EVENTS_TOPIC" default:"fl-delivery-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FORKLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FORKLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FORKLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"FORKLINE_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`

	WebhookRateLimitWindow time.Duration `envconfig:"FORKLINE_WEBHOOK_RATE_LIMIT_WINDOW" default:"1m"`
	WebhookRateLimitPerIP  int           `envconfig:"FORKLINE_WEBHOOK_RATE_LIMIT_PER_IP" default:"120"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FORKLINE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
