// Package config provides configuration management for the Pulseboard server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration. Values load from an
// optional YAML file and are overridden by environment variables.
type ServerConfig struct {
	Environment Environment `yaml:"environment"`
	ListenAddr  string      `yaml:"listen_addr"`
	DatabaseURL string      `yaml:"database_url"`
	RedisAddr   string      `yaml:"redis_addr"` // empty disables the Redis rollup cache

	// SLADefaultTarget is the availability target applied when a query
	// omits one.
	SLADefaultTarget float64 `yaml:"sla_default_target"`
	// ResponseTimeTargetMs is the latency target applied when a query
	// omits one.
	ResponseTimeTargetMs float64 `yaml:"response_time_target_ms"`
	// CacheTTLSeconds bounds rollup cache entry lifetime.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// WSActionsPerSecond is the per-connection action rate limit.
	WSActionsPerSecond int64 `yaml:"ws_actions_per_second"`
	// WSSendBufferSize is the outbound event buffer per connection.
	WSSendBufferSize int `yaml:"ws_send_buffer_size"`

	// APIRateLimit is the REST rate limit as "<requests>/<period>",
	// e.g. "300/1m". Empty disables the middleware.
	APIRateLimit string `yaml:"api_rate_limit"`

	// CORSOrigins lists the allowed browser origins. Empty allows all
	// origins outside production.
	CORSOrigins []string `yaml:"cors_origins"`
}

// defaults returns the baseline configuration.
func defaults() ServerConfig {
	return ServerConfig{
		Environment:          EnvDevelopment,
		ListenAddr:           ":8080",
		SLADefaultTarget:     99.9,
		ResponseTimeTargetMs: 200,
		CacheTTLSeconds:      300,
		WSActionsPerSecond:   5,
		WSSendBufferSize:     256,
		APIRateLimit:         "300/1m",
	}
}

// LoadServerConfig reads configuration from an optional YAML file (path from
// PULSEBOARD_CONFIG) and environment variables, env taking precedence.
func LoadServerConfig() (ServerConfig, error) {
	cfg := defaults()

	if path := os.Getenv("PULSEBOARD_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if env := Environment(os.Getenv("ENV")); env != "" {
		cfg.Environment = env
	}
	switch cfg.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		cfg.Environment = EnvDevelopment
	}

	cfg.ListenAddr = getEnvString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DatabaseURL = getEnvString("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", cfg.RedisAddr)
	cfg.SLADefaultTarget = getEnvFloat("SLA_DEFAULT_TARGET", cfg.SLADefaultTarget)
	cfg.ResponseTimeTargetMs = getEnvFloat("RESPONSE_TIME_TARGET_MS", cfg.ResponseTimeTargetMs)
	cfg.CacheTTLSeconds = getEnvInt("CACHE_TTL_SECONDS", cfg.CacheTTLSeconds)
	cfg.WSActionsPerSecond = int64(getEnvInt("WS_ACTIONS_PER_SECOND", int(cfg.WSActionsPerSecond)))
	cfg.WSSendBufferSize = getEnvInt("WS_SEND_BUFFER_SIZE", cfg.WSSendBufferSize)
	cfg.APIRateLimit = getEnvString("API_RATE_LIMIT", cfg.APIRateLimit)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	if cfg.SLADefaultTarget < 0 || cfg.SLADefaultTarget > 100 {
		return cfg, fmt.Errorf("sla_default_target %.2f outside [0,100]", cfg.SLADefaultTarget)
	}
	if cfg.CacheTTLSeconds < 0 {
		cfg.CacheTTLSeconds = 300
	}
	return cfg, nil
}

// CacheTTL returns the rollup cache TTL as a duration.
func (c ServerConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// getEnvString reads a string from an environment variable, returning the
// default if unset.
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer from an environment variable, returning the
// default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvFloat reads a float from an environment variable, returning the
// default if unset or invalid.
func getEnvFloat(key string, defaultVal float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}
