package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9000"
  postgresDsn: "host=db user=postgres"
  redisAddr: "redis:6379"
  redisDB: 2
  memcachedAddr: "memcached:11211"
  enableTrace: true
  traceEndpoint: "otlp:4318"
guarantor:
  signingSecret: "super-secret"
  tokenSecret: "token-secret"
  validityDays: 14
  probeIntervalSeconds: 45
  guarantorsRequired: 5
`)

	conf, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", conf.Server.Listen)
	assert.Equal(t, "redis:6379", conf.Server.RedisAddr)
	assert.Equal(t, 2, conf.Server.RedisDB)
	assert.True(t, conf.Server.EnableTrace)
	assert.Equal(t, 14, conf.Guarantor.ValidityDays)

	d := conf.Domain()
	assert.Equal(t, ":9000", d.Listen)
	assert.Equal(t, "super-secret", d.SigningSecret)
	assert.Equal(t, 14*24*time.Hour, d.ValidityWindow)
	assert.Equal(t, 45*time.Second, d.ProbeInterval)
	assert.Equal(t, 5, d.GuarantorsRequired)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
guarantor:
  signingSecret: "super-secret"
`)

	conf, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8000", conf.Server.Listen)
	assert.Equal(t, 7, conf.Guarantor.ValidityDays)
	assert.Equal(t, 30, conf.Guarantor.ProbeIntervalSeconds)
	assert.Equal(t, 3, conf.Guarantor.GuarantorsRequired)
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":8000"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
