package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv             = "STOREFRONT_APP_ENV"
	EnvPort               = "STOREFRONT_APP_PORT"
	EnvLogLevel           = "STOREFRONT_LOG_LEVEL"
	EnvBackendBaseURL     = "STOREFRONT_BACKEND_BASE_URL"
	EnvBackendTimeout     = "STOREFRONT_BACKEND_TIMEOUT"
	EnvJWTSecret          = "STOREFRONT_JWT_SECRET"
	EnvRedisURL           = "STOREFRONT_REDIS_URL"
	EnvDBDSN              = "STOREFRONT_DB_DSN"
	EnvSQLitePath         = "STOREFRONT_SQLITE_PATH"
	EnvUseSQLite          = "STOREFRONT_USE_SQLITE"
	EnvResolveConcurrency = "STOREFRONT_CHECKOUT_RESOLVE_CONCURRENCY"
	EnvAddedNoticeTTL     = "STOREFRONT_CHECKOUT_ADDED_NOTICE_TTL"
)
