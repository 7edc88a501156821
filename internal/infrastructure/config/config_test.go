package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Minute, cfg.Correlation.SessionGap)
	assert.Equal(t, 10, cfg.Correlation.TopLimit)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TimelineTTL)
	assert.True(t, cfg.Telemetry.MetricsEnabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
environment: production
server:
  port: 9090
correlation:
  session_gap: 45m
pipeline:
  workers: 16
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Minute, cfg.Correlation.SessionGap)
	assert.Equal(t, 16, cfg.Pipeline.Workers)

	// Untouched keys keep their defaults.
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.Server.RateLimit.RequestsPerSecond)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("CS_SERVER__PORT", "7070")
	t.Setenv("CS_CORRELATION__SESSION_GAP", "1h")
	t.Setenv("CS_DATABASE__URL", "postgres://etl:secret@db:5432/forecasts")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Correlation.SessionGap)
	assert.Equal(t, "postgres://etl:secret@db:5432/forecasts", cfg.Database.URL)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
