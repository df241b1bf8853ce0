package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
app:
  env: test
gateway:
  terminalKey: terminal
  terminalSecret: secret
auth:
  jwtSecret: jwt
billing:
  confirmAfter: 48h
kafka:
  brokers: ["k1:9092", "k2:9092"]
`

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testYAML), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "terminal", cfg.Gateway.TerminalKey)
	assert.Equal(t, 48*time.Hour, cfg.Billing.ConfirmAfter)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 5, cfg.Billing.MaxCorrectionIterations)
	assert.Equal(t, "@every 30s", cfg.Billing.GenerateSpec)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 5*time.Second, cfg.Gateway.ConnectTimeout)
	assert.Equal(t, 15*time.Second, cfg.Gateway.ReadTimeout)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=parking sslmode=disable", cfg.Database.GetDSN())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REDIS_ADDR=localhost:6379\n"), 0o600))

	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DATABASE_DSN", "postgres://app@db/parking")
	t.Setenv("BILLING_MAXCORRECTIONITERATIONS", "3")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	t.Cleanup(func() { os.Unsetenv("REDIS_ADDR") })

	assert.Equal(t, "9000", cfg.HTTP.Port)
	assert.Equal(t, "postgres://app@db/parking", cfg.Database.GetDSN())
	assert.Equal(t, 3, cfg.Billing.MaxCorrectionIterations)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadConfig_MissingSecrets(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.terminalKey")
	assert.Contains(t, err.Error(), "auth.jwtSecret")
}
