package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	Square        SquareConfig
	Checkout      CheckoutConfig
	Gateway       GatewayConfig
	Sweep         SweepConfig
	Notifications NotificationsConfig
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
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies staff bearer tokens. Tokens are minted by the admin console.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName  string `envconfig:"STOREFRONT_GCS_BUCKET_NAME" required:"true"`
	ProofPrefix string `envconfig:"STOREFRONT_GCS_PROOF_PREFIX" default:"proofs"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_TOPIC" default:"storefront-customer-notifications"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"STOREFRONT_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string `envconfig:"STOREFRONT_SQUARE_WEBHOOK_URL"`
	LocationID    string `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type CheckoutConfig struct {
	ProofMaxBytes     int64    `envconfig:"STOREFRONT_CHECKOUT_PROOF_MAX_BYTES" default:"5242880"`
	ProofAllowedTypes []string `envconfig:"STOREFRONT_CHECKOUT_PROOF_TYPES" default:"image/png,image/jpeg,image/webp,application/pdf"`
	Currency          string   `envconfig:"STOREFRONT_CHECKOUT_CURRENCY" default:"USD"`
	RedirectURL       string   `envconfig:"STOREFRONT_CHECKOUT_REDIRECT_URL"`

	RateLimitWindow time.Duration `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP  int           `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_PER_IP" default:"20"`
}

// GatewayConfig tunes the circuit breaker around hosted payment calls.
type GatewayConfig struct {
	BreakerMaxRequests  uint32        `envconfig:"STOREFRONT_GATEWAY_BREAKER_MAX_REQUESTS" default:"3"`
	BreakerInterval     time.Duration `envconfig:"STOREFRONT_GATEWAY_BREAKER_INTERVAL" default:"15s"`
	BreakerTimeout      time.Duration `envconfig:"STOREFRONT_GATEWAY_BREAKER_TIMEOUT" default:"30s"`
	BreakerFailureRatio float64       `envconfig:"STOREFRONT_GATEWAY_BREAKER_FAILURE_RATIO" default:"0.6"`
	RequestTimeout      time.Duration `envconfig:"STOREFRONT_GATEWAY_REQUEST_TIMEOUT" default:"10s"`
}

type SweepConfig struct {
	Interval               time.Duration `envconfig:"STOREFRONT_SWEEP_INTERVAL" default:"5m"`
	OrphanReservationAfter time.Duration `envconfig:"STOREFRONT_SWEEP_ORPHAN_RESERVATION_AFTER" default:"30m"`
	PendingPaymentAfter    time.Duration `envconfig:"STOREFRONT_SWEEP_PENDING_PAYMENT_AFTER" default:"24h"`
	BatchSize              int           `envconfig:"STOREFRONT_SWEEP_BATCH_SIZE" default:"100"`
	NotificationRetention  time.Duration `envconfig:"STOREFRONT_SWEEP_NOTIFICATION_RETENTION" default:"720h"`
}

type NotificationsConfig struct {
	ChatWebhookURL string        `envconfig:"STOREFRONT_NOTIFY_CHAT_WEBHOOK_URL"`
	ChatTimeout    time.Duration `envconfig:"STOREFRONT_NOTIFY_CHAT_TIMEOUT" default:"5s"`
	ChatRetries    int           `envconfig:"STOREFRONT_NOTIFY_CHAT_RETRIES" default:"2"`
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
