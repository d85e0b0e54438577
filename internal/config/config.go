package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// GatewayConfig holds configuration for the merchant-facing service
type GatewayConfig struct {
	Server        ServerConfig
	Redis         RedisConfig
	Logger        LoggerConfig
	PublicBaseURL string // Base URL merchants reach this service on; callback URL is derived from it

	OrchestratorURL string        // Base URL of the processing service
	ForwardTimeout  time.Duration // Per-request timeout towards the orchestrator
	ForwardRetries  int           // Transport-level retries towards the orchestrator

	CallbackSecret string // HMAC secret shared with the orchestrator

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// OrchestratorConfig holds configuration for the processing/dispatch service
type OrchestratorConfig struct {
	Server ServerConfig
	Redis  RedisConfig
	Logger LoggerConfig

	CallbackSecret string // HMAC secret used to sign outgoing webhooks

	GatewayTimeout time.Duration // Bounded timeout for payment provider calls
	IdempotencyTTL time.Duration // Replay window for idempotency records

	WebhookAttempts int           // Max delivery attempts per webhook
	WebhookTimeout  time.Duration // Per-attempt HTTP timeout
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
}

// RedisConfig holds the optional Redis backend configuration.
// An empty Addr selects the in-memory stores.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadGatewayFromEnv loads the merchant-facing service configuration
func LoadGatewayFromEnv() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
		},
		Redis:         loadRedis(),
		Logger:        loadLogger(),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		OrchestratorURL: getEnv("ORCHESTRATOR_URL", ""),
		ForwardTimeout:  getEnvAsDuration("FORWARD_TIMEOUT", 10*time.Second),
		ForwardRetries:  getEnvAsInt("FORWARD_RETRIES", 3),

		CallbackSecret: getEnv("CALLBACK_SECRET", ""),

		RateLimitPerSecond: float64(getEnvAsInt("RATE_LIMIT_PER_SECOND", 50)),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 100),
	}

	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("PUBLIC_BASE_URL is required")
	}
	if cfg.OrchestratorURL == "" {
		return nil, fmt.Errorf("ORCHESTRATOR_URL is required")
	}
	if cfg.CallbackSecret == "" {
		return nil, fmt.Errorf("CALLBACK_SECRET is required")
	}

	return cfg, nil
}

// LoadOrchestratorFromEnv loads the processing service configuration
func LoadOrchestratorFromEnv() (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8081),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9091),
		},
		Redis:  loadRedis(),
		Logger: loadLogger(),

		CallbackSecret: getEnv("CALLBACK_SECRET", ""),

		GatewayTimeout: getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),
		IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		WebhookAttempts: getEnvAsInt("WEBHOOK_ATTEMPTS", 3),
		WebhookTimeout:  getEnvAsDuration("WEBHOOK_TIMEOUT", 8*time.Second),
	}

	if cfg.CallbackSecret == "" {
		return nil, fmt.Errorf("CALLBACK_SECRET is required")
	}

	return cfg, nil
}

func loadRedis() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}
}

func loadLogger() LoggerConfig {
	return LoggerConfig{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnvAsBool("LOG_DEVELOPMENT", false),
	}
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
