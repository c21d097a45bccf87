package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "STOREFRONT_APP_ENV"
	EnvPort         = "STOREFRONT_APP_PORT"
	EnvDBDSN        = "STOREFRONT_DB_DSN"
	EnvDBHost       = "STOREFRONT_DB_HOST"
	EnvDBUser       = "STOREFRONT_DB_USER"
	EnvDBName       = "STOREFRONT_DB_NAME"
	EnvDBPassword   = "STOREFRONT_DB_PASSWORD"
	EnvRedisURL     = "STOREFRONT_REDIS_URL"
	EnvJWTSecret    = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer    = "STOREFRONT_JWT_ISSUER"
	EnvGCPProjectID = "STOREFRONT_GCP_PROJECT_ID"
	EnvGCSBucket    = "STOREFRONT_GCS_BUCKET_NAME"

	EnvProofMaxBytes        = "STOREFRONT_CHECKOUT_PROOF_MAX_BYTES"
	EnvProofTypes           = "STOREFRONT_CHECKOUT_PROOF_TYPES"
	EnvSweepPendingPayment  = "STOREFRONT_SWEEP_PENDING_PAYMENT_AFTER"
	EnvSweepOrphanAfter     = "STOREFRONT_SWEEP_ORPHAN_RESERVATION_AFTER"
	EnvSquareEnv            = "STOREFRONT_SQUARE_ENV"
	EnvNotifyChatWebhookURL = "STOREFRONT_NOTIFY_CHAT_WEBHOOK_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
