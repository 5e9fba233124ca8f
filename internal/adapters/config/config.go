package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"pitchbook/pkg/errors"
)

type Config struct {
	App           AppConfig
	Server        ServerConfig
	OpenAI        OpenAIConfig
	RateLimit     RateLimitConfig
	Retry         RetryConfig
	Orchestration OrchestrationConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	News          NewsConfig
	Stocks        StocksConfig
	Documents     DocumentsConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"pitchbook"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"APP_VERSION" default:"1.0.0"`
}

type ServerConfig struct {
	Port            int           `envconfig:"HTTP_PORT" default:"8000"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
}

type OpenAIConfig struct {
	APIKey      string        `envconfig:"OPENAI_API_KEY" required:"true"`
	BaseURL     string        `envconfig:"OPENAI_BASE_URL"`
	Model       string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	Temperature float64       `envconfig:"OPENAI_TEMPERATURE" default:"0.2"`
	MaxTokens   int           `envconfig:"OPENAI_MAX_TOKENS" default:"4096"`
	Timeout     time.Duration `envconfig:"OPENAI_TIMEOUT" default:"120s"`
}

// RateLimitConfig controls the process-wide pacing gate in front of all
// outbound model calls. MinDelay is the spacing between any two granted calls;
// the cooldowns are added per caller class on top of the generic spacing.
type RateLimitConfig struct {
	MinDelay          time.Duration `envconfig:"RATE_LIMIT_MIN_DELAY" default:"20s"`
	DocSearchCooldown time.Duration `envconfig:"RATE_LIMIT_DOC_SEARCH_COOLDOWN" default:"60s"`
	DataToolCooldown  time.Duration `envconfig:"RATE_LIMIT_DATA_TOOL_COOLDOWN" default:"45s"`
	ScrapeCooldown    time.Duration `envconfig:"RATE_LIMIT_SCRAPE_COOLDOWN" default:"30s"`
}

type RetryConfig struct {
	MaxAttempts      int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"7"`
	ConflictAttempts int           `envconfig:"RETRY_CONFLICT_ATTEMPTS" default:"7"`
	BaseDelay        time.Duration `envconfig:"RETRY_BASE_DELAY" default:"20s"`
	MaxDelay         time.Duration `envconfig:"RETRY_MAX_DELAY" default:"300s"`
	HintMargin       time.Duration `envconfig:"RETRY_HINT_MARGIN" default:"10s"`
	ConflictDelay    time.Duration `envconfig:"RETRY_CONFLICT_DELAY" default:"10s"`
}

type OrchestrationConfig struct {
	MaxRounds        int           `envconfig:"ORCHESTRATION_MAX_ROUNDS" default:"64"`
	OuterAttempts    int           `envconfig:"ORCHESTRATION_OUTER_ATTEMPTS" default:"4"`
	OuterWaitStep    time.Duration `envconfig:"ORCHESTRATION_OUTER_WAIT_STEP" default:"60s"`
	SessionTTL       time.Duration `envconfig:"ORCHESTRATION_SESSION_TTL" default:"24h"`
	TotalSections    int           `envconfig:"ORCHESTRATION_TOTAL_SECTIONS" default:"8"`
	PrimaryCompanies []string      `envconfig:"ORCHESTRATION_COMPANIES" default:"Vodafone Idea,Apollo Micro Systems"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"pitchbook"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"pitchbook"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig is optional: with no brokers configured, stream events are only
// served to HTTP subscribers.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type NewsConfig struct {
	BaseURL      string        `envconfig:"NEWS_BASE_URL" default:"https://money.rediff.com"`
	MaxArticles  int           `envconfig:"NEWS_MAX_ARTICLES" default:"15"`
	ReqPerMinute int           `envconfig:"NEWS_REQ_PER_MINUTE" default:"30"`
	Timeout      time.Duration `envconfig:"NEWS_TIMEOUT" default:"15s"`
}

type StocksConfig struct {
	BaseURL      string        `envconfig:"STOCKS_BASE_URL" default:"https://stock.indianapi.in"`
	APIKey       string        `envconfig:"STOCKS_API_KEY"`
	ReqPerMinute int           `envconfig:"STOCKS_REQ_PER_MINUTE" default:"30"`
	Timeout      time.Duration `envconfig:"STOCKS_TIMEOUT" default:"10s"`
}

type DocumentsConfig struct {
	Paths           []string      `envconfig:"DOCUMENT_PATHS"`
	VectorStoreName string        `envconfig:"DOCUMENT_VECTOR_STORE_NAME" default:"pitchbook_pdfs"`
	PollInterval    time.Duration `envconfig:"DOCUMENT_POLL_INTERVAL" default:"2s"`
	PollTimeout     time.Duration `envconfig:"DOCUMENT_POLL_TIMEOUT" default:"5m"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
