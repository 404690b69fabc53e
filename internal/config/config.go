package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/poojaseva/checkout-reconciler/internal/reconciliation"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration (audit trail, optional)
	Database DatabaseConfig

	// Redis configuration (session references, optional)
	Redis RedisConfig

	// Remote booking/payment API
	BookingAPI BookingAPIConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Reconciliation configuration
	Reconciliation ReconciliationConfig
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

// RedisConfig holds the session reference store configuration
type RedisConfig struct {
	URL          string // empty keeps references in memory
	KeyPrefix    string
	ReferenceTTL time.Duration
}

// BookingAPIConfig holds the remote booking/payment API configuration
type BookingAPIConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RateLimit    float64 // requests per second, 0 disables throttling
	Burst        int
	ServiceToken string // used by the CLI when no customer token is forwarded
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret      string
	RequireAuth bool
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// ReconciliationConfig holds the polling policies and housekeeping settings
type ReconciliationConfig struct {
	Policies      map[models.Screen]reconciliation.Policy
	PolicyFile    string
	SessionMaxAge time.Duration
	SweepSchedule string // cron spec with seconds
	AuditEnabled  bool
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
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "checkout:ref:"),
			ReferenceTTL: getEnvAsDuration("SESSION_REFERENCE_TTL", 2*time.Hour),
		},
		BookingAPI: BookingAPIConfig{
			BaseURL:      strings.TrimRight(getEnv("BOOKING_API_BASE_URL", ""), "/"),
			Timeout:      getEnvAsDuration("BOOKING_API_TIMEOUT", 15*time.Second),
			RateLimit:    getEnvAsFloat("BOOKING_API_RATE_LIMIT", 20),
			Burst:        getEnvAsInt("BOOKING_API_BURST", 10),
			ServiceToken: getEnv("BOOKING_API_SERVICE_TOKEN", ""),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			RequireAuth: getEnvAsBool("REQUIRE_AUTH", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Session-ID"}),
		},
		Reconciliation: ReconciliationConfig{
			Policies:      reconciliation.DefaultPolicies(),
			PolicyFile:    getEnv("RECONCILIATION_POLICY_FILE", ""),
			SessionMaxAge: getEnvAsDuration("RECONCILIATION_SESSION_MAX_AGE", 30*time.Minute),
			SweepSchedule: getEnv("RECONCILIATION_SWEEP_SCHEDULE", "0 */5 * * * *"),
			AuditEnabled:  getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
	}

	if config.Reconciliation.PolicyFile != "" {
		policies, err := LoadPolicyFile(config.Reconciliation.PolicyFile, config.Reconciliation.Policies)
		if err != nil {
			return nil, err
		}
		config.Reconciliation.Policies = policies
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BookingAPI.BaseURL == "" {
		return fmt.Errorf("BOOKING_API_BASE_URL is required")
	}

	if c.BookingAPI.Timeout <= 0 {
		return fmt.Errorf("BOOKING_API_TIMEOUT must be positive")
	}

	if c.BookingAPI.RateLimit < 0 {
		return fmt.Errorf("BOOKING_API_RATE_LIMIT must not be negative")
	}

	if c.JWT.RequireAuth && c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required when REQUIRE_AUTH is enabled")
	}

	if c.Reconciliation.SessionMaxAge <= 0 {
		return fmt.Errorf("RECONCILIATION_SESSION_MAX_AGE must be positive")
	}

	for _, screen := range []models.Screen{models.ScreenConfirmation, models.ScreenPending, models.ScreenFailed} {
		policy, ok := c.Reconciliation.Policies[screen]
		if !ok {
			return fmt.Errorf("missing reconciliation policy for screen %s", screen)
		}
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("invalid reconciliation policy for screen %s: %w", screen, err)
		}
	}

	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid number value for %s, using default: %v", key, defaultValue)
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
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s", "2h") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
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
