package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
env: development
log:
  log_level: debug
exchanges:
  mexc:
    base_url: https://contract.mexc.com
    api_key: from-file
    recv_window: 5s
    margin_mode: cross
executor:
  lock_timeout: 3s
  position_query_retries: 2
  require_api_key: true
api_keys:
  - name: tradingview
    key: abc
    active: true
database:
  executions:
    dsn: postgres://localhost/executions
nats_jetstream:
  url: nats://localhost:4222
  timeout_handler:
    execute: 45s
`

func writeConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("MEXC_API_KEY", "")
	t.Setenv("MEXC_SECRET_KEY", "")

	previous := Env
	t.Cleanup(func() { Env = previous })

	require.NoError(t, LoadConfig(writeConfig(t)))

	mexc := Env.Exchanges["mexc"]
	assert.Equal(t, "https://contract.mexc.com", mexc.BaseURL)
	assert.Equal(t, "from-file", mexc.APIKey)
	assert.Equal(t, 5*time.Second, mexc.RecvWindow)
	assert.Equal(t, "cross", mexc.MarginMode)

	assert.Equal(t, 3*time.Second, Env.Executor.LockTimeout)
	assert.Equal(t, 2, Env.Executor.PositionQueryRetries)
	assert.True(t, Env.Executor.RequireAPIKey)
	require.Len(t, Env.APIKeys, 1)
	assert.Equal(t, "abc", Env.APIKeys[0].Key)
	assert.Equal(t, "postgres://localhost/executions", Env.Database["executions"].DSN)
	assert.Equal(t, 45*time.Second, Env.NatsJetstream.TimeoutHandler["execute"])
}

func TestLoadConfig_CredentialsFromEnv(t *testing.T) {
	t.Setenv("MEXC_API_KEY", "env-key")
	t.Setenv("MEXC_SECRET_KEY", "env-secret")

	previous := Env
	t.Cleanup(func() { Env = previous })

	require.NoError(t, LoadConfig(writeConfig(t)))

	assert.Equal(t, "env-key", Env.Exchanges["mexc"].APIKey)
	assert.Equal(t, "env-secret", Env.Exchanges["mexc"].APISecret)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}
