package client

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEchoListener serves one connection by copying it back to itself.
func startEchoListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()
	return ln
}

func TestClientRoundTrip(t *testing.T) {
	ln := startEchoListener(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SendLine("hello"))
	line, err := c.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	require.NoError(t, c.Send("abc"))
	data, err := c.ReadN(3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}

func TestClientReadTimeout(t *testing.T) {
	ln := startEchoListener(t)

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ReadLine(50 * time.Millisecond)
	require.Error(t, err)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())

	assert.False(t, c.Closed(50*time.Millisecond))
}

func TestClientClosedByPeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.Closed(time.Second))
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr)
	assert.Error(t, err)
}

func TestSendAfterClose(t *testing.T) {
	ln := startEchoListener(t)

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Send("late"), ErrClosed)
}
