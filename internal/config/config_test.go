package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/helpdesk/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HELPDESK_DATABASE__URL", "postgres://localhost:5432/helpdesk")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 16, cfg.Dispatch.BufferSize)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
database:
  url: postgres://from-file:5432/helpdesk
log:
  level: debug
`), 0o600))

	t.Setenv("HELPDESK_CONFIG_FILE", path)
	t.Setenv("HELPDESK_SERVER__PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port, "env wins over file")
	assert.Equal(t, "postgres://from-file:5432/helpdesk", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_SLATargetOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://localhost:5432/helpdesk
sla:
  targets:
    critical:
      response_min: 15
      resolution_min: 120
`), 0o600))

	t.Setenv("HELPDESK_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	targets := cfg.SLATargets()
	assert.Equal(t, 15, targets[domain.PriorityCritical].ResponseMin)
	assert.Equal(t, 120, targets[domain.PriorityCritical].ResolutionMin)

	// Unconfigured priorities keep the built-in targets.
	assert.Equal(t, 60, targets[domain.PriorityHigh].ResponseMin)
}

func TestLoad_RejectsUnknownSLAPriority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://localhost:5432/helpdesk
sla:
  targets:
    urgent:
      response_min: 5
      resolution_min: 60
`), 0o600))

	t.Setenv("HELPDESK_CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown priority")
}
