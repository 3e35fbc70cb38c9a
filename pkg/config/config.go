// Package config loads application configuration from environment
// variables, with validation at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quartzlabs/apphub/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	URL          string
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("APPHUB_HOST", "0.0.0.0"),
			Port:            getEnv("APPHUB_PORT", "8080"),
			ReadTimeout:     getEnvDuration("APPHUB_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("APPHUB_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("APPHUB_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("APPHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("APPHUB_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("APPHUB_POSTGRES_URL", ""),
			MaxConns:    getEnvInt("APPHUB_POSTGRES_MAX_CONNS", 25),
			MinConns:    getEnvInt("APPHUB_POSTGRES_MIN_CONNS", 5),
			Timeout:     getEnvDuration("APPHUB_POSTGRES_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("APPHUB_POSTGRES_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("APPHUB_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          getEnv("APPHUB_REDIS_URL", ""),
			CacheEnabled: getEnvBool("APPHUB_CACHE_ENABLED", true),
			CacheTTL:     getEnvDuration("APPHUB_CACHE_TTL", 5*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("APPHUB_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("APPHUB_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.CacheEnabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when the cache is enabled")
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
