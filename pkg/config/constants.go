package config

// EnvPrefix is empty because every tag carries the full INKWELL_ name.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv     = "INKWELL_APP_ENV"
	EnvPort       = "INKWELL_APP_PORT"
	EnvDBDSN      = "INKWELL_DB_DSN"
	EnvDBHost     = "INKWELL_DB_HOST"
	EnvDBUser     = "INKWELL_DB_USER"
	EnvDBName     = "INKWELL_DB_NAME"
	EnvRedisURL   = "INKWELL_REDIS_URL"
	EnvJWTSecret  = "INKWELL_JWT_SECRET"
	EnvJWTIssuer  = "INKWELL_JWT_ISSUER"
	EnvJWTExpMins = "INKWELL_JWT_EXPIRATION_MINUTES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
