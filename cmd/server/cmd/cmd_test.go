package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexus/internal/config"
	"github.com/Tyrowin/nexus/internal/server"
	"github.com/Tyrowin/nexus/internal/stats"
)

// setFlags sets flags on cmd and restores their defaults when the test ends.
func setFlags(t *testing.T, cmd *cobra.Command, values map[string]string) {
	t.Helper()
	for name, value := range values {
		require.NoError(t, cmd.Flags().Set(name, value))
	}
	t.Cleanup(func() {
		for name := range values {
			f := cmd.Flags().Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
}

func TestServeConfigFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("NEXUS_PORT", "7000")
	t.Setenv("NEXUS_MAX_CONNECTIONS", "10")
	setFlags(t, serveCmd, map[string]string{
		"port":         "7100",
		"mode":         "CHAT",
		"max-workers":  "4",
		"idle-timeout": "30s",
	})

	cfg, err := serveConfig(serveCmd)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, 4, cfg.MaxWorkerThreads)
	assert.Equal(t, config.ModeChat, cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.ClientIdleTimeout)
	assert.Equal(t, config.Default().ReceiveBufferSize, cfg.ReceiveBufferSize, "unset flags keep configured values")
}

func TestServeConfigValidatesAfterFlags(t *testing.T) {
	setFlags(t, serveCmd, map[string]string{"max-connections": "2", "max-workers": "8"})

	_, err := serveConfig(serveCmd)
	assert.ErrorIs(t, err, config.ErrInvalidLimits)
}

func TestServeConfigRejectsUnknownMode(t *testing.T) {
	setFlags(t, serveCmd, map[string]string{"mode": "relay"})

	_, err := serveConfig(serveCmd)
	assert.ErrorIs(t, err, config.ErrInvalidMode)
}

func TestPrintStatistics(t *testing.T) {
	var buf bytes.Buffer
	printStatistics(&buf, stats.Snapshot{ConnectionsAccepted: 3, ConnectionsRejected: 1, ConnectionsClosed: 1})

	out := buf.String()
	assert.Contains(t, out, "connections_accepted")
	assert.Contains(t, out, "active_connections")
	assert.Contains(t, out, "0.33")
}

func TestFetchStatus(t *testing.T) {
	want := server.Status{
		Instance: "abc",
		Mode:     config.ModeEcho,
		Address:  "127.0.0.1:9090",
		Clients:  []uint64{1, 2},
	}
	want.Statistics.ConnectionsAccepted = 2

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stats" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer ts.Close()

	got, raw, err := fetchStatus(ts.URL)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, want.Instance, got.Instance)
	assert.Equal(t, want.Clients, got.Clients)
	assert.Equal(t, uint64(2), got.Statistics.ConnectionsAccepted)

	// scheme is optional
	_, _, err = fetchStatus(ts.Listener.Addr().String())
	require.NoError(t, err)
}

func TestFetchStatusErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, _, err := fetchStatus(ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "nexus dev")
}
