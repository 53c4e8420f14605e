package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/platinummonkey/chartpay/pkg/billing"
	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Client configuration (CLI and embedding apps)
	Client ClientConfig

	// Server configuration (reference backend)
	Server ServerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ClientConfig holds backend client settings
type ClientConfig struct {
	BaseURL string
	Token   string
	Email   string
	Timeout time.Duration

	// Storage for the cached active payment request
	Storage storage.Config
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// PostgresURL selects the Postgres billing service; empty runs in memory.
	PostgresURL         string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresMaxLifetime time.Duration

	RequestTTL         time.Duration
	SubscriptionPeriod time.Duration
	SweepSchedule      string

	Bank        payments.BankDetails
	PlansFile   string
	AdminEmails []string
	TokenTTL    time.Duration

	// AuditDir enables the JSON-lines audit trail of payment request changes.
	AuditDir string

	// Webhook endpoints receive signed payment request events.
	WebhookURLs     []string
	WebhookSecret   string
	SlackWebhookURL string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// OTel returns the tracing settings in the form InitOTel takes.
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
}

// Addr is the server listen address.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// Postgres returns the connection pool settings for the billing database.
func (c ServerConfig) Postgres() billing.PoolConfig {
	pool := billing.DefaultPoolConfig(c.PostgresURL)
	pool.MaxConns = c.PostgresMaxConns
	pool.MinConns = c.PostgresMinConns
	pool.MaxLifetime = c.PostgresMaxLifetime
	return pool
}

// LoadConfig loads configuration from environment variables. Files named in
// envFiles (default ".env") are read first; variables already set win.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := &Config{
		Client:        loadClientConfig(),
		Server:        loadServerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	explicit := len(files) > 0
	if !explicit {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// loadClientConfig loads client configuration from environment
func loadClientConfig() ClientConfig {
	cfg := ClientConfig{
		BaseURL: getEnv("CHARTPAY_BASE_URL", "http://localhost:8080"),
		Token:   getEnv("CHARTPAY_TOKEN", ""),
		Email:   getEnv("CHARTPAY_EMAIL", ""),
		Timeout: getEnvDuration("CHARTPAY_TIMEOUT", 10*time.Second),
		Storage: storage.DefaultConfig(),
	}

	if storageType := getEnv("CHARTPAY_STORAGE_TYPE", ""); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if redisURL := getEnv("CHARTPAY_REDIS_URL", ""); redisURL != "" {
		cfg.Storage.RedisURL = redisURL
	}
	if redisPassword := getEnv("CHARTPAY_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.Storage.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("CHARTPAY_REDIS_DB", -1); redisDB >= 0 {
		cfg.Storage.RedisDB = redisDB
	}
	if redisPoolSize := getEnvInt("CHARTPAY_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.Storage.RedisPoolSize = redisPoolSize
	}
	if sqlitePath := getEnv("CHARTPAY_SQLITE_PATH", ""); sqlitePath != "" {
		cfg.Storage.SQLitePath = sqlitePath
	}
	if ttl := getEnvDuration("CHARTPAY_CACHE_TTL", 0); ttl > 0 {
		cfg.Storage.TTL = ttl
	}

	return cfg
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:               getEnv("CHARTPAY_HOST", "0.0.0.0"),
		Port:               getEnv("CHARTPAY_PORT", "8080"),
		ReadTimeout:        getEnvDuration("CHARTPAY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("CHARTPAY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("CHARTPAY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    getEnvDuration("CHARTPAY_SHUTDOWN_TIMEOUT", 30*time.Second),
		PostgresURL:         getEnv("CHARTPAY_POSTGRES_URL", ""),
		PostgresMaxConns:    getEnvInt("CHARTPAY_POSTGRES_MAX_CONNS", 20),
		PostgresMinConns:    getEnvInt("CHARTPAY_POSTGRES_MIN_CONNS", 5),
		PostgresMaxLifetime: getEnvDuration("CHARTPAY_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		RequestTTL:         getEnvDuration("CHARTPAY_REQUEST_TTL", 30*time.Minute),
		SubscriptionPeriod: getEnvDuration("CHARTPAY_SUBSCRIPTION_PERIOD", 30*24*time.Hour),
		SweepSchedule:      getEnv("CHARTPAY_SWEEP_SCHEDULE", "@every 1m"),
		Bank: payments.BankDetails{
			BankName:      getEnv("CHARTPAY_BANK_NAME", ""),
			AccountName:   getEnv("CHARTPAY_BANK_ACCOUNT_NAME", ""),
			AccountNumber: getEnv("CHARTPAY_BANK_ACCOUNT_NUMBER", ""),
		},
		PlansFile:   getEnv("CHARTPAY_PLANS_FILE", ""),
		AdminEmails: getEnvList("CHARTPAY_ADMIN_EMAILS"),
		TokenTTL:    getEnvDuration("CHARTPAY_TOKEN_TTL", 24*time.Hour),

		AuditDir:        getEnv("CHARTPAY_AUDIT_DIR", ""),
		WebhookURLs:     getEnvList("CHARTPAY_WEBHOOK_URLS"),
		WebhookSecret:   getEnv("CHARTPAY_WEBHOOK_SECRET", ""),
		SlackWebhookURL: getEnv("CHARTPAY_SLACK_WEBHOOK_URL", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("CHARTPAY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CHARTPAY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CHARTPAY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CHARTPAY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CHARTPAY_OTEL_SERVICE_NAME", "chartpay"),
		OTelServiceVersion: getEnv("CHARTPAY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CHARTPAY_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("CHARTPAY_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Client
	u, err := url.Parse(c.Client.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL: %q", c.Client.BaseURL)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client timeout must be positive")
	}
	switch c.Client.Storage.Type {
	case "memory":
	case "redis":
		if c.Client.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis storage")
		}
	case "sqlite":
		if c.Client.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, redis, or sqlite)", c.Client.Storage.Type)
	}

	// Server
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.RequestTTL <= 0 {
		return fmt.Errorf("payment request TTL must be positive")
	}
	if c.Server.SubscriptionPeriod <= 0 {
		return fmt.Errorf("subscription period must be positive")
	}
	if c.Server.SweepSchedule == "" {
		return fmt.Errorf("sweep schedule is required")
	}

	// OpenTelemetry
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ValidateServer checks the settings only the reference server needs.
func (c *Config) ValidateServer() error {
	b := c.Server.Bank
	if b.BankName == "" || b.AccountName == "" || b.AccountNumber == "" {
		return fmt.Errorf("bank details are required: set CHARTPAY_BANK_NAME, CHARTPAY_BANK_ACCOUNT_NAME and CHARTPAY_BANK_ACCOUNT_NUMBER")
	}
	if len(c.Server.WebhookURLs) > 0 && c.Server.WebhookSecret == "" {
		return fmt.Errorf("CHARTPAY_WEBHOOK_SECRET is required when webhook URLs are set")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
