package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
fastagi:
  host: 0.0.0.0
  port: 4573
ami:
  host: 127.0.0.1
  port: 5038
  username: manager
  secret: s3cret
  reconnect_interval: 5
cdr:
  enabled: true
  host: db.local
  port: 3306
  username: fastami
  password: clave
  database: fastami
  max_open_conns: 10
  max_idle_conns: 2
bridge:
  enabled: true
  host: 0.0.0.0
  port: 8088
log:
  level: debug
  format: console
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fastami.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:4573", cfg.FastAGI.Address())
	assert.Equal(t, "127.0.0.1:5038", cfg.AMI.Address())
	assert.Equal(t, "manager", cfg.AMI.Username)
	assert.Equal(t, "on", cfg.AMI.Events) // default value
	assert.Equal(t, "0.0.0.0:8088", cfg.Bridge.Address())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.CDR.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "no-existe.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FASTAMI_AMI_USERNAME", "otro")
	t.Setenv("FASTAMI_AMI_SECRET", "cambiado")
	t.Setenv("FASTAMI_DB_HOST", "db2.local")

	cfg, err := Load(writeConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "otro", cfg.AMI.Username)
	assert.Equal(t, "cambiado", cfg.AMI.Secret)
	assert.Equal(t, "db2.local", cfg.CDR.Host)
}

func TestDSN(t *testing.T) {
	cfg, err := Load(writeConfig(t))
	require.NoError(t, err)
	assert.Equal(t,
		"fastami:clave@tcp(db.local:3306)/fastami?parseTime=true&charset=utf8mb4",
		cfg.CDR.DSN())
}
