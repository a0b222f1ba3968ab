package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
	Grants        GrantConfig
	RateLimit     RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// StorageConfig selects the repository backend
type StorageConfig struct {
	Driver string
}

// ObservabilityConfig holds logging, tracing and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
	// TraceSampleRatio is the fraction of root traces exported
	TraceSampleRatio float64
}

// AuthConfig holds bearer-token verification settings
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// GrantConfig holds tenant grant maintenance settings
type GrantConfig struct {
	// SweepInterval is how often expired grants are deactivated. Zero disables
	// the in-process sweeper; expiry is enforced on every read regardless.
	SweepInterval time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:   parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:    parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			RequestTimeout: parseDuration("SERVER_REQUEST_TIMEOUT", "10s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "farmgate"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "farmgate"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
		},
		Observability: ObservabilityConfig{
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			LogFormat:        getEnv("LOG_FORMAT", "json"),
			OTELEnabled:      parseBool("OTEL_ENABLED", false),
			ServiceName:      getEnv("OTEL_SERVICE_NAME", "farmgate"),
			ServiceVersion:   getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
			TraceSampleRatio: parseFloat("OTEL_TRACE_SAMPLE_RATIO", 1),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", "farmgate"),
		},
		Grants: GrantConfig{
			SweepInterval: parseDuration("GRANT_SWEEP_INTERVAL", "5m"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: parseFloat("RATELIMIT_RPS", 10),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.Password == "" {
			return errors.New("DB_PASSWORD is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if c.Grants.SweepInterval < 0 {
		return errors.New("GRANT_SWEEP_INTERVAL must not be negative")
	}
	return nil
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
