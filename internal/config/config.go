package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the relay's environment-driven configuration.
type Config struct {
	AppEnv           string
	HTTPPort         string
	MetricsPort      string
	AllowedOrigins   string
	LogLevel         string
	JWTSecret        string
	BackendAPIKey    string
	AllowAnonymous   bool
	HandshakeTimeout time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisChannel     string
}

// Load reads configuration from the environment. JWT_SECRET is required;
// everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:         os.Getenv("APP_ENV"),
		HTTPPort:       os.Getenv("HTTP_PORT"),
		MetricsPort:    os.Getenv("METRICS_PORT"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		BackendAPIKey:  os.Getenv("BACKEND_API_KEY"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisChannel:   os.Getenv("REDIS_CHANNEL"),
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8090"
	}
	if cfg.RedisChannel == "" {
		cfg.RedisChannel = "dispatch:events"
	}

	cfg.HandshakeTimeout = 10 * time.Second
	if v := os.Getenv("HANDSHAKE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HANDSHAKE_TIMEOUT: %w", err)
		}
		cfg.HandshakeTimeout = d
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}

	// Anonymous connections bypass the bearer contract; only an explicit
	// opt-in enables them, and never outside development.
	if v := os.Getenv("RELAY_ALLOW_ANONYMOUS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_ALLOW_ANONYMOUS: %w", err)
		}
		cfg.AllowAnonymous = b && cfg.AppEnv == "development"
	}

	// A missing BACKEND_API_KEY is deliberately not fatal here: ingestion
	// calls answer 500 server-misconfigured, which is the operational
	// signal for the deployment defect.
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required environment variable JWT_SECRET")
	}
	return cfg, nil
}
