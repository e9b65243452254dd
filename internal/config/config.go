package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Gateway       GatewayConfig
	Consolidation ConsolidationConfig
	Secrets       SecretsConfig
	Logger        LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
	// BatchSecret authenticates the scheduler's batch trigger requests
	BatchSecret string
	// RateLimitPerSecond / RateLimitBurst apply per client IP
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds the hosted invoice gateway configuration
type GatewayConfig struct {
	BaseURL string // Base URL for the invoice provider API
	APIKey  string // Bearer token for API authentication
	// WebhookSecret signs inbound notifications (HMAC-SHA256). Either set
	// directly or resolved from the secret manager at startup.
	WebhookSecret string
	// APIKeySecretPath / WebhookSecretPath override the inline values when a
	// secret manager backend is configured
	APIKeySecretPath  string
	WebhookSecretPath string
	Timeout           int // Request timeout in seconds (default: 30)
	// RequireWebhookSignature rejects unsigned webhook notifications. Only
	// disable it for providers that do not sign at all; a present header is
	// always validated regardless.
	RequireWebhookSignature bool
}

// ConsolidationConfig holds the split percentages and invoice defaults
type ConsolidationConfig struct {
	// Basis points out of 10000: 8700 means the courier takes 87%
	CourierBasisPoints int64
	ManagerBasisPoints int64
	// InvoiceExpirationHours is how long a generated invoice stays payable
	InvoiceExpirationHours int
	// MaxConcurrentBatchRuns caps simultaneous batch consolidations
	MaxConcurrentBatchRuns int
	Currency               string
}

// SecretsConfig selects and configures the secret manager backend
type SecretsConfig struct {
	// Backend: "aws", "local" or "" (no secret manager, inline config only)
	Backend   string
	AWSRegion string
	// LocalPath is the base directory for the local backend
	LocalPath string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort:        getEnvAsInt("METRICS_PORT", 9090),
			BatchSecret:        getEnv("BATCH_SECRET", ""),
			RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Database: LoadDatabaseFromEnv(),
		Gateway: GatewayConfig{
			BaseURL:                 getEnv("GATEWAY_BASE_URL", "https://sandbox.gateway.example"),
			APIKey:                  getEnv("GATEWAY_API_KEY", ""),
			WebhookSecret:           getEnv("GATEWAY_WEBHOOK_SECRET", ""),
			APIKeySecretPath:        getEnv("GATEWAY_API_KEY_SECRET_PATH", ""),
			WebhookSecretPath:       getEnv("GATEWAY_WEBHOOK_SECRET_PATH", ""),
			Timeout:                 getEnvAsInt("GATEWAY_TIMEOUT", 30),
			RequireWebhookSignature: getEnvAsBool("WEBHOOK_REQUIRE_SIGNATURE", true),
		},
		Consolidation: ConsolidationConfig{
			CourierBasisPoints:     int64(getEnvAsInt("COURIER_BASIS_POINTS", 8700)),
			ManagerBasisPoints:     int64(getEnvAsInt("MANAGER_BASIS_POINTS", 500)),
			InvoiceExpirationHours: getEnvAsInt("INVOICE_EXPIRATION_HOURS", 24),
			MaxConcurrentBatchRuns: getEnvAsInt("MAX_CONCURRENT_BATCH_RUNS", 1),
			Currency:               getEnv("CURRENCY", "BRL"),
		},
		Secrets: SecretsConfig{
			Backend:   getEnv("SECRETS_BACKEND", ""),
			AWSRegion: getEnv("AWS_REGION", "sa-east-1"),
			LocalPath: getEnv("SECRETS_LOCAL_PATH", "./secrets"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	// BatchAuth fails closed on an empty secret, which would ship a
	// permanently unauthorized batch endpoint; refuse to start instead.
	if cfg.Server.BatchSecret == "" {
		return nil, fmt.Errorf("BATCH_SECRET is required")
	}
	if cfg.Gateway.APIKey == "" && cfg.Gateway.APIKeySecretPath == "" {
		return nil, fmt.Errorf("GATEWAY_API_KEY or GATEWAY_API_KEY_SECRET_PATH is required")
	}
	if cfg.Consolidation.CourierBasisPoints+cfg.Consolidation.ManagerBasisPoints > 10000 {
		return nil, fmt.Errorf("configured split percentages exceed 100%%")
	}

	return cfg, nil
}

// LoadDatabaseFromEnv loads only the database configuration. The migration
// command uses this directly so it does not need the full service
// configuration (gateway credentials, batch secret) to run.
func LoadDatabaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Database: getEnv("DB_NAME", "payment_engine"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
	}
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
