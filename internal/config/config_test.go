package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every GARMINSYNC_ env var that Load() reads.
var allConfigKeys = []string{
	"GARMINSYNC_SECRET_KEY",
	"GARMINSYNC_LISTEN_ADDR",
	"GARMINSYNC_DB_PATH",
	"GARMINSYNC_REDIS_URL",
	"GARMINSYNC_GARMIN_BASE_URL",
	"GARMINSYNC_RATE_LIMIT_PER_MINUTE",
	"GARMINSYNC_MIN_REQUEST_INTERVAL",
	"GARMINSYNC_UPSTREAM_TIMEOUT",
	"GARMINSYNC_SYNC_INTERVAL",
	"GARMINSYNC_SYNC_DAYS",
	"GARMINSYNC_LOG_LEVEL",
}

// isolateConfigEnv saves and unsets all GARMINSYNC_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("GARMINSYNC_SECRET_KEY", "s3cret")
	t.Setenv("GARMINSYNC_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("GARMINSYNC_DB_PATH", "/tmp/test.db")
	t.Setenv("GARMINSYNC_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("GARMINSYNC_GARMIN_BASE_URL", "http://stub:8000")
	t.Setenv("GARMINSYNC_RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("GARMINSYNC_MIN_REQUEST_INTERVAL", "250ms")
	t.Setenv("GARMINSYNC_UPSTREAM_TIMEOUT", "10s")
	t.Setenv("GARMINSYNC_SYNC_INTERVAL", "6h")
	t.Setenv("GARMINSYNC_SYNC_DAYS", "14")
	t.Setenv("GARMINSYNC_LOG_LEVEL", "debug")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.SecretKey)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, "http://stub:8000", cfg.GarminBaseURL)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, 250*time.Millisecond, cfg.MinRequestInterval)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 6*time.Hour, cfg.SyncInterval)
	assert.Equal(t, 14, cfg.SyncDays)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.SchedulerEnabled())
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("GARMINSYNC_SECRET_KEY", "s3cret")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "garminsync.db", cfg.DBPath)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "https://connectapi.garmin.com", cfg.GarminBaseURL)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Equal(t, time.Second, cfg.MinRequestInterval)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.Zero(t, cfg.SyncInterval)
	assert.Equal(t, 7, cfg.SyncDays)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.SchedulerEnabled())
}

func TestLoad_MissingSecretKey(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GARMINSYNC_SECRET_KEY")
}

func TestLoad_ZeroMinIntervalAllowed(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("GARMINSYNC_SECRET_KEY", "s3cret")
	t.Setenv("GARMINSYNC_MIN_REQUEST_INTERVAL", "0s")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Zero(t, cfg.MinRequestInterval)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"GARMINSYNC_RATE_LIMIT_PER_MINUTE", "lots"},
		{"GARMINSYNC_RATE_LIMIT_PER_MINUTE", "0"},
		{"GARMINSYNC_SYNC_DAYS", "-3"},
		{"GARMINSYNC_MIN_REQUEST_INTERVAL", "soon"},
		{"GARMINSYNC_MIN_REQUEST_INTERVAL", "-1s"},
		{"GARMINSYNC_UPSTREAM_TIMEOUT", "0s"},
		{"GARMINSYNC_SYNC_INTERVAL", "hourly"},
		{"GARMINSYNC_LOG_LEVEL", "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv("GARMINSYNC_SECRET_KEY", "s3cret")
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
