// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SecretKey          string
	ListenAddr         string
	DBPath             string
	RedisURL           string
	GarminBaseURL      string
	RateLimitPerMinute int
	MinRequestInterval time.Duration
	UpstreamTimeout    time.Duration
	SyncInterval       time.Duration
	SyncDays           int
	LogLevel           slog.Level
}

// SchedulerEnabled reports whether periodic background syncs should run.
func (c *Config) SchedulerEnabled() bool {
	return c.SyncInterval > 0
}

// Load reads configuration from environment variables and returns a validated Config.
// GARMINSYNC_SECRET_KEY is required; it derives the keys protecting stored
// credentials, so changing it makes existing records undecryptable.
// Optional variables with defaults: GARMINSYNC_LISTEN_ADDR (127.0.0.1:8080),
// GARMINSYNC_DB_PATH (garminsync.db), GARMINSYNC_REDIS_URL
// (redis://localhost:6379/0), GARMINSYNC_GARMIN_BASE_URL
// (https://connectapi.garmin.com), GARMINSYNC_RATE_LIMIT_PER_MINUTE (60),
// GARMINSYNC_MIN_REQUEST_INTERVAL (1s), GARMINSYNC_UPSTREAM_TIMEOUT (30s),
// GARMINSYNC_SYNC_INTERVAL (0, disabled), GARMINSYNC_SYNC_DAYS (7),
// GARMINSYNC_LOG_LEVEL (info).
func Load() (*Config, error) {
	secret := os.Getenv("GARMINSYNC_SECRET_KEY")
	if secret == "" {
		return nil, errors.New("GARMINSYNC_SECRET_KEY is required")
	}

	cfg := &Config{
		SecretKey:          secret,
		ListenAddr:         stringEnv("GARMINSYNC_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:             stringEnv("GARMINSYNC_DB_PATH", "garminsync.db"),
		RedisURL:           stringEnv("GARMINSYNC_REDIS_URL", "redis://localhost:6379/0"),
		GarminBaseURL:      stringEnv("GARMINSYNC_GARMIN_BASE_URL", "https://connectapi.garmin.com"),
		RateLimitPerMinute: 60,
		MinRequestInterval: time.Second,
		UpstreamTimeout:    30 * time.Second,
		SyncDays:           7,
		LogLevel:           slog.LevelInfo,
	}

	var err error
	if cfg.RateLimitPerMinute, err = positiveIntEnv("GARMINSYNC_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute); err != nil {
		return nil, err
	}
	if cfg.SyncDays, err = positiveIntEnv("GARMINSYNC_SYNC_DAYS", cfg.SyncDays); err != nil {
		return nil, err
	}
	if cfg.MinRequestInterval, err = durationEnv("GARMINSYNC_MIN_REQUEST_INTERVAL", cfg.MinRequestInterval); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = durationEnv("GARMINSYNC_UPSTREAM_TIMEOUT", cfg.UpstreamTimeout); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout == 0 {
		return nil, errors.New("GARMINSYNC_UPSTREAM_TIMEOUT must be greater than zero")
	}
	if cfg.SyncInterval, err = durationEnv("GARMINSYNC_SYNC_INTERVAL", 0); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("GARMINSYNC_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
			return nil, fmt.Errorf("GARMINSYNC_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return cfg, nil
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func positiveIntEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", key, n)
	}
	return n, nil
}

// durationEnv parses a non-negative duration.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, v)
	}
	return d, nil
}
