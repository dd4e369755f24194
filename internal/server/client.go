// Package server manages individual client connections: identity, serialized
// writes, activity tracking and closing.
package server

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// transport is the connection a worker serves. *net.TCPConn satisfies it, and
// WebSocket clients are adapted to it.
type transport interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// ClientConnection represents one connected client. It is owned by its worker;
// other goroutines only write to it through the registry.
type ClientConnection struct {
	ID       uint64
	Addr     string
	JoinedAt time.Time

	conn         transport
	writeTimeout time.Duration
	lastActivity atomic.Int64
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

// newClientConnection wraps conn. A zero writeTimeout leaves writes unbounded.
func newClientConnection(id uint64, conn transport, writeTimeout time.Duration) *ClientConnection {
	now := time.Now()
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	c := &ClientConnection{
		ID:           id,
		Addr:         addr,
		JoinedAt:     now,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
	c.touch(now)
	return c
}

// LastActivity returns when data was last received from the client.
func (c *ClientConnection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *ClientConnection) touch(t time.Time) {
	c.lastActivity.Store(t.UnixNano())
}

// Write sends p to the client. Concurrent writers (the owning worker and
// broadcasts from other workers) are serialized so messages never interleave.
func (c *ClientConnection) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(p)
}

// Close closes the underlying connection once; later calls return the first result.
func (c *ClientConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
