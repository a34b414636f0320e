package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "LISTEN_ADDR", "DATABASE_URL", "SCAN_WORKERS", "SCAN_POLL_INTERVAL", "LOG_FORMAT", "VIEW_CACHE_SIZE"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.True(t, cfg.InMemory())
	assert.Equal(t, 2, cfg.ScanWorkers)
	assert.Equal(t, 500*time.Millisecond, cfg.ScanPollInterval)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/asm")
	t.Setenv("SCAN_WORKERS", "4")
	t.Setenv("SCAN_STEP_INTERVAL", "20ms")
	t.Setenv("SCAN_POLL_INTERVAL", "not-a-duration")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.False(t, cfg.InMemory())
	assert.Equal(t, 4, cfg.ScanWorkers)
	assert.Equal(t, 20*time.Millisecond, cfg.ScanStepInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.ScanPollInterval)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SCAN_WORKERS", "-1")
	_, err = Load()
	assert.Error(t, err)
}
