// ABOUTME: Tests for configuration loading, defaults, and validation.
// ABOUTME: Covers env expansion and the BACKEND_URL override.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBackendURL, cfg.Backend.BaseURL)
	assert.Equal(t, ":3000", cfg.Server.HTTPAddr)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, int64(DefaultUploadMaxBytes), cfg.Upload.MaxBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
backend:
  base_url: "http://backend:8000"
database:
  driver: sqlite
  path: /tmp/flux.db
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "http://backend:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverridesBackendURL(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://override:9000")

	path := writeConfig(t, `
backend:
  base_url: "http://from-file:8000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000", cfg.Backend.BaseURL)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("FLUX_HTTP_ADDR", ":7777")

	path := writeConfig(t, `
server:
  http_addr: "${FLUX_HTTP_ADDR}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.HTTPAddr)
}

func TestLoad_SQLiteRequiresPath(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path")
}

func TestLoad_UnknownDriver(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: valid")

	_, err := Load(path)
	assert.Error(t, err)
}
