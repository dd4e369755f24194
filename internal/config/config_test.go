package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, ModeEcho, cfg.Mode)
	assert.Equal(t, "0.0.0.0:9090", cfg.Address())
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, "ECHO: ", cfg.EchoPrefix)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		want   error
		field  string
	}{
		{"port zero", func(c *ServerConfig) { c.Port = 0 }, ErrInvalidPort, "port"},
		{"port too large", func(c *ServerConfig) { c.Port = 65536 }, ErrInvalidPort, "port"},
		{"no connections", func(c *ServerConfig) { c.MaxConnections = 0 }, ErrInvalidLimits, "max_connections"},
		{"negative workers", func(c *ServerConfig) { c.MaxWorkerThreads = -1 }, ErrInvalidLimits, "max_worker_threads"},
		{"workers above connections", func(c *ServerConfig) {
			c.MaxConnections = 2
			c.MaxWorkerThreads = 3
		}, ErrInvalidLimits, "max_worker_threads"},
		{"empty buffer", func(c *ServerConfig) { c.ReceiveBufferSize = 0 }, ErrInvalidBuffer, "receive_buffer_size"},
		{"no backlog", func(c *ServerConfig) { c.ListenBacklog = 0 }, ErrInvalidBacklog, "listen_backlog"},
		{"unknown mode", func(c *ServerConfig) { c.Mode = "relay" }, ErrInvalidMode, "server_mode"},
		{"negative idle", func(c *ServerConfig) { c.ClientIdleTimeout = -time.Second }, ErrInvalidTimeout, "client_idle_timeout"},
		{"zero poll", func(c *ServerConfig) { c.PollInterval = 0 }, ErrInvalidTimeout, "poll_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "expected %v in %v", tt.want, err)

			errs := Errors(err)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.Port = -1
	cfg.ReceiveBufferSize = 0
	cfg.MaxConnections = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPort)
	assert.ErrorIs(t, err, ErrInvalidBuffer)
	assert.ErrorIs(t, err, ErrInvalidLimits)
	assert.Len(t, Errors(err), 3)
}

func TestIdleTimeoutZeroDisables(t *testing.T) {
	cfg := Default()
	cfg.ClientIdleTimeout = 0
	assert.NoError(t, Validate(cfg))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" CHAT ")
	require.NoError(t, err)
	assert.Equal(t, ModeChat, m)

	_, err = ParseMode("broadcast")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexus.yaml")
	data := []byte(`
port: 7000
max_connections: 10
max_worker_threads: 4
server_mode: chat
client_idle_timeout: 30s
http:
  address: 127.0.0.1:7001
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("NEXUS_MAX_WORKER_THREADS", "8")
	t.Setenv("NEXUS_ECHO_PREFIX", ">> ")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, 8, cfg.MaxWorkerThreads)
	assert.Equal(t, ModeChat, cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.ClientIdleTimeout)
	assert.Equal(t, "127.0.0.1:7001", cfg.HTTP.Address)
	assert.Equal(t, ">> ", cfg.EchoPrefix)
	assert.Equal(t, 1024, cfg.ReceiveBufferSize, "unset fields keep defaults")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("NEXUS_PORT", "70000")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestReadDoesNotValidate(t *testing.T) {
	t.Setenv("NEXUS_PORT", "70000")
	cfg, err := Read("")
	require.NoError(t, err)
	assert.Equal(t, 70000, cfg.Port)
}

func TestReadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	_, err := Read(path)
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.HTTP.AllowedOrigins[0] = "http://example.com"
	assert.Equal(t, "http://localhost:8080", cfg.HTTP.AllowedOrigins[0])
}
