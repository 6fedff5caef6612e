package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	FeatureFlags FeatureFlagsConfig
	Providers    ProvidersConfig
	Generation   GenerationConfig
	JobState     JobStateConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Square       SquareConfig
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
	Env          string   `envconfig:"INKWELL_APP_ENV" required:"true"`
	Port         string   `envconfig:"INKWELL_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"INKWELL_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"INKWELL_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"INKWELL_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"INKWELL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"INKWELL_DB_DSN"`
	Driver string `envconfig:"INKWELL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"INKWELL_DB_HOST"`
	LegacyPort     int    `envconfig:"INKWELL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"INKWELL_DB_USER"`
	LegacyPassword string `envconfig:"INKWELL_DB_PASSWORD"`
	LegacyName     string `envconfig:"INKWELL_DB_NAME"`
	LegacySSLMode  string `envconfig:"INKWELL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"INKWELL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INKWELL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INKWELL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INKWELL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"INKWELL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"INKWELL_REDIS_ADDR"`
	Password     string        `envconfig:"INKWELL_REDIS_PASSWORD"`
	DB           int           `envconfig:"INKWELL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INKWELL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INKWELL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INKWELL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INKWELL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INKWELL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"INKWELL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"INKWELL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"INKWELL_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"INKWELL_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"INKWELL_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"INKWELL_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"INKWELL_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"INKWELL_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"INKWELL_AUTO_MIGRATE" default:"false"`
}

type ProvidersConfig struct {
	OpenAIAPIKey    string `envconfig:"INKWELL_OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"INKWELL_ANTHROPIC_API_KEY"`
	OpenAIBaseURL   string `envconfig:"INKWELL_OPENAI_BASE_URL" default:"https://api.openai.com"`
	AnthropicBaseURL string `envconfig:"INKWELL_ANTHROPIC_BASE_URL" default:"https://api.anthropic.com"`
}

type GenerationConfig struct {
	StreamTimeout     time.Duration `envconfig:"INKWELL_GENERATION_STREAM_TIMEOUT" default:"600s"`
	FlushInterval     time.Duration `envconfig:"INKWELL_GENERATION_FLUSH_INTERVAL" default:"50ms"`
	ForceFlushChars   int           `envconfig:"INKWELL_GENERATION_FORCE_FLUSH_CHARS" default:"15"`
	MaxTokens         int           `envconfig:"INKWELL_GENERATION_MAX_TOKENS" default:"32000"`
	StaleJobThreshold time.Duration `envconfig:"INKWELL_GENERATION_STALE_JOB_THRESHOLD" default:"15m"`
	EnqueueRateLimit  int64         `envconfig:"INKWELL_GENERATION_ENQUEUE_RATE_LIMIT" default:"10"`
	EnqueueRateWindow time.Duration `envconfig:"INKWELL_GENERATION_ENQUEUE_RATE_WINDOW" default:"1m"`
}

type JobStateConfig struct {
	TTL time.Duration `envconfig:"INKWELL_JOBSTATE_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"INKWELL_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"INKWELL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"INKWELL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	GenerationTopic        string `envconfig:"INKWELL_PUBSUB_GENERATION_TOPIC" default:"iw-generation-jobs"`
	GenerationSubscription string `envconfig:"INKWELL_PUBSUB_GENERATION_SUBSCRIPTION"`
	AnalyticsTopic         string `envconfig:"INKWELL_PUBSUB_ANALYTICS_TOPIC" default:"iw-usage-events"`
	AnalyticsSubscription  string `envconfig:"INKWELL_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"INKWELL_BIGQUERY_DATASET" default:"inkwell"`
	UsageEventsTable string `envconfig:"INKWELL_BIGQUERY_USAGE_TABLE" default:"usage_events"`
}

type SquareConfig struct {
	AccessToken  string `envconfig:"INKWELL_SQUARE_ACCESS_TOKEN"`
	WebhookKey   string `envconfig:"INKWELL_SQUARE_WEBHOOK_KEY"`
	Env          string `envconfig:"INKWELL_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
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
