package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trustescrow/gateway/middleware"
)

// Config captures runtime configuration for the escrow gateway service.
// Engine settings (storage, chain depth, reputation weights, activity store)
// live in the file named by EngineConfigPath.
type Config struct {
	ListenAddress    string
	EngineConfigPath string
	DatabasePath     string
	Environment      string
	Auth             middleware.AuthConfig
	RateLimit        middleware.RateLimit
	CORSOrigins      []string
	LogRequests      bool
	IdempotencyTTL   time.Duration
}

// LoadConfigFromEnv builds a configuration using environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:    getenvDefault("ESCROW_GATEWAY_LISTEN", ":8081"),
		EngineConfigPath: getenvDefault("ESCROW_GATEWAY_CONFIG", "escrow.toml"),
		DatabasePath:     getenvDefault("ESCROW_GATEWAY_DB_PATH", "escrow-gateway.db"),
		Environment:      getenvDefault("ESCROW_GATEWAY_ENV", "development"),
		RateLimit: middleware.RateLimit{
			RatePerSecond: 20,
			Burst:         40,
			DefaultTokens: 1,
		},
		IdempotencyTTL: 24 * time.Hour,
	}

	if secret := strings.TrimSpace(os.Getenv("ESCROW_GATEWAY_JWT_SECRET")); secret != "" {
		cfg.Auth = middleware.AuthConfig{
			Enabled:        true,
			HMACSecret:     secret,
			Issuer:         strings.TrimSpace(os.Getenv("ESCROW_GATEWAY_JWT_ISSUER")),
			Audience:       strings.TrimSpace(os.Getenv("ESCROW_GATEWAY_JWT_AUDIENCE")),
			OptionalPaths:  []string{"/healthz", "/metrics"},
			AllowAnonymous: true,
		}
	}
	if skew := strings.TrimSpace(os.Getenv("ESCROW_GATEWAY_TIMESTAMP_SKEW")); skew != "" {
		dur, err := time.ParseDuration(skew)
		if err != nil {
			return Config{}, fmt.Errorf("parse ESCROW_GATEWAY_TIMESTAMP_SKEW: %w", err)
		}
		cfg.Auth.ClockSkew = dur
	}

	if raw := strings.TrimSpace(os.Getenv("ESCROW_GATEWAY_RATE_LIMIT")); raw != "" {
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse ESCROW_GATEWAY_RATE_LIMIT: %w", err)
		}
		if val <= 0 {
			return Config{}, errors.New("ESCROW_GATEWAY_RATE_LIMIT must be positive")
		}
		cfg.RateLimit.RatePerSecond = val
	}

	if raw := strings.TrimSpace(os.Getenv("ESCROW_GATEWAY_RATE_BURST")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ESCROW_GATEWAY_RATE_BURST: %w", err)
		}
		if val <= 0 {
			return Config{}, errors.New("ESCROW_GATEWAY_RATE_BURST must be positive")
		}
		cfg.RateLimit.Burst = val
	}

	if raw := strings.TrimSpace(os.Getenv("ESCROW_GATEWAY_IDEMPOTENCY_TTL")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ESCROW_GATEWAY_IDEMPOTENCY_TTL: %w", err)
		}
		if dur <= 0 {
			return Config{}, errors.New("ESCROW_GATEWAY_IDEMPOTENCY_TTL must be positive")
		}
		cfg.IdempotencyTTL = dur
	}

	if raw := strings.TrimSpace(os.Getenv("ESCROW_GATEWAY_CORS_ORIGINS")); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, trimmed)
			}
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ESCROW_GATEWAY_LOG_REQUESTS")); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ESCROW_GATEWAY_LOG_REQUESTS: %w", err)
		}
		cfg.LogRequests = val
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
