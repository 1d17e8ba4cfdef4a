package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecowatt/gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir string, content string) string {
	t.Helper()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
cloud_base_url: "https://cloud.example.com"
cloud_api_key: "secret"
polling_interval: 2s
log_level: debug
diagnostics_enabled: true
`)

	cfg, err := config.Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "https://cloud.example.com", cfg.CloudBaseURL)
	assert.Equal(t, "secret", cfg.CloudAPIKey)
	assert.Equal(t, 2*time.Second, cfg.PollingInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DiagnosticsEnabled)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
cloud_base_url: "https://cloud.example.com"
polling_interval: 2s
`)

	cfg, err := config.Load([]string{"--config", path, "--polling-interval", "5s"})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollingInterval)
}

func TestLoad_MissingCloudBaseURLFails(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `log_level: info`)

	_, err := config.Load([]string{"--config", path})
	require.Error(t, err)
}

func TestLoad_InvalidLogLevelFails(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
cloud_base_url: "https://cloud.example.com"
log_level: nonsense
`)

	_, err := config.Load([]string{"--config", path})
	require.Error(t, err)
}

func TestDefaultConfig_HasSaneDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.DiagnosticsEnabled)
	assert.Greater(t, cfg.PollingInterval, time.Duration(0))
}
