package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Gateway  GatewayConfig
	Booking  BookingConfig
	Redis    RedisConfig
	Queue    QueueConfig
	CORS     CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT validation configuration. Token issuance belongs to
// the auth service; this backend only verifies access tokens.
type JWTConfig struct {
	Secret string
	Issuer string
}

// GatewayConfig holds payment gateway (Snap API) configuration
type GatewayConfig struct {
	Environment string // "sandbox" or "production"
	ServerKey   string // secret, used for auth and signature validation
	SnapURL     string // transaction creation endpoint base
	APIURL      string // status query endpoint base
	ReturnURL   string // browser redirect target after payment
	Timeout     time.Duration
	// RetryAttempts is the per-call budget for unreachable-gateway retries,
	// RetryBackoff the pause before each re-attempt.
	RetryAttempts int
	RetryBackoff  time.Duration
}

// BookingConfig holds booking lifecycle configuration
type BookingConfig struct {
	// PaymentWindow is how long a pending booking may wait for payment
	// before the expiry sweeper starts reconciling it.
	PaymentWindow time.Duration
	SweepInterval time.Duration
	// CASRetries bounds the compare-and-set retry loop in the reconciler.
	CASRetries int
}

// RedisConfig holds redis configuration for the idempotency middleware
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// IdempotencyTTL is how long a cached response is replayed for repeated
	// Idempotency-Key requests.
	IdempotencyTTL time.Duration
}

// QueueConfig holds the event broker configuration. When URL is empty the
// dispatcher falls back to log-only delivery.
type QueueConfig struct {
	URL       string
	QueueName string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", "summitcamp-auth"),
		},
		Gateway: GatewayConfig{
			Environment:   getEnv("GATEWAY_ENVIRONMENT", "sandbox"),
			ServerKey:     getEnv("GATEWAY_SERVER_KEY", ""),
			SnapURL:       getEnv("GATEWAY_SNAP_URL", ""),
			APIURL:        getEnv("GATEWAY_API_URL", ""),
			ReturnURL:     getEnv("GATEWAY_RETURN_URL", ""),
			Timeout:       time.Duration(getEnvAsInt("GATEWAY_TIMEOUT_SECONDS", 10)) * time.Second,
			RetryAttempts: getEnvAsInt("GATEWAY_RETRY_ATTEMPTS", 3),
			RetryBackoff:  time.Duration(getEnvAsInt("GATEWAY_RETRY_BACKOFF_MS", 250)) * time.Millisecond,
		},
		Booking: BookingConfig{
			PaymentWindow: time.Duration(getEnvAsInt("BOOKING_PAYMENT_WINDOW_MINUTES", 60)) * time.Minute,
			SweepInterval: time.Duration(getEnvAsInt("BOOKING_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
			CASRetries:    getEnvAsInt("BOOKING_CAS_RETRIES", 3),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			IdempotencyTTL: time.Duration(getEnvAsInt("REDIS_IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
		},
		Queue: QueueConfig{
			URL:       getEnv("RABBITMQ_URL", ""),
			QueueName: getEnv("BOOKING_EVENTS_QUEUE", "booking.events"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.CASRetries < 1 {
		return fmt.Errorf("BOOKING_CAS_RETRIES must be at least 1")
	}

	if c.Gateway.RetryAttempts < 1 {
		return fmt.Errorf("GATEWAY_RETRY_ATTEMPTS must be at least 1")
	}

	// Gateway credentials are only enforced outside development so the
	// service can boot against a stub gateway locally.
	if c.Server.Environment == "production" {
		if c.Gateway.ServerKey == "" {
			return fmt.Errorf("GATEWAY_SERVER_KEY is required in production")
		}
		if c.Gateway.ReturnURL == "" {
			return fmt.Errorf("GATEWAY_RETURN_URL is required in production")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
