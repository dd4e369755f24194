package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/nexus/internal/client"
	"github.com/Tyrowin/nexus/internal/config"
)

const (
	testOrigin  = "http://localhost:8080"
	readTimeout = 2 * time.Second
)

// freePort finds a loopback port that is currently unused.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// testConfig returns a loopback configuration with short timeouts. The HTTP
// surface is disabled unless a mutator enables it.
func testConfig(t *testing.T, mutate ...func(*config.ServerConfig)) config.ServerConfig {
	t.Helper()
	cfg := config.Default()
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.MaxConnections = 8
	cfg.MaxWorkerThreads = 8
	cfg.PollInterval = 20 * time.Millisecond
	cfg.DrainTimeout = 2 * time.Second
	cfg.WriteTimeout = time.Second
	cfg.HTTP.Address = ""
	for _, m := range mutate {
		m(&cfg)
	}
	return cfg
}

func withHTTP(cfg *config.ServerConfig) {
	cfg.HTTP.Address = "127.0.0.1:0"
	cfg.HTTP.WebSocket = true
	cfg.HTTP.AllowedOrigins = []string{testOrigin}
}

// startServer starts and runs a server that is stopped when the test ends.
func startServer(t *testing.T, cfg config.ServerConfig) *Server {
	t.Helper()
	srv, err := Start(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(context.Background())
	}()

	t.Cleanup(func() {
		srv.Stop()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, net.ErrClosed) {
				t.Errorf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv
}

func dial(t *testing.T, srv *Server) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	c, err := client.Dial(ctx, srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// dialWelcomed connects and consumes the welcome line, which also guarantees
// the client is registered. It returns the assigned client id.
func dialWelcomed(t *testing.T, srv *Server) (*client.Client, uint64) {
	t.Helper()
	c := dial(t, srv)
	line, err := c.ReadLine(readTimeout)
	require.NoError(t, err)

	var id uint64
	_, err = fmt.Sscanf(line, "Welcome, client #%d", &id)
	require.NoError(t, err, "unexpected welcome line %q", line)
	return c, id
}

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// fakeTransport records writes and can be told to fail them.
type fakeTransport struct {
	mu        sync.Mutex
	written   bytes.Buffer
	failWrite bool
	closed    bool
	addr      string
}

func newFakeTransport(addr string) *fakeTransport {
	return &fakeTransport{addr: addr}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	return 0, errors.New("fake transport does not read")
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite || f.closed {
		return 0, errors.New("write refused")
	}
	return f.written.Write(p)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeTransport) RemoteAddr() net.Addr             { return fakeAddr(f.addr) }

func (f *fakeTransport) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
