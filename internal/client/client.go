// Package client is a line-oriented TCP client for Nexus servers, used by the
// connect command and by tests.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("client closed")

// Client is a connection to a Nexus server. Send and the read methods may be
// used from different goroutines, but reads must not run concurrently with
// each other.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to addr. The context bounds only the connection attempt.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// LocalAddr returns the client side of the connection.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Send writes msg as is; no newline is added.
func (c *Client) Send(msg string) error {
	return c.SendBytes([]byte(msg))
}

// SendBytes writes p as is.
func (c *Client) SendBytes(p []byte) error {
	if _, err := c.conn.Write(p); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// SendLine writes msg followed by a newline.
func (c *Client) SendLine(msg string) error {
	return c.Send(msg + "\n")
}

// ReadLine reads up to the next newline and returns the line without it. A
// zero timeout waits forever.
func (c *Client) ReadLine(timeout time.Duration) (string, error) {
	if err := c.setReadDeadline(timeout); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return line, err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadN reads exactly n bytes.
func (c *Client) ReadN(n int, timeout time.Duration) ([]byte, error) {
	if err := c.setReadDeadline(timeout); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(c.reader, buf)
	return buf[:read], err
}

// Closed reports whether the server has closed the connection, waiting at most
// timeout for the close to arrive. Data still in flight is discarded.
func (c *Client) Closed(timeout time.Duration) bool {
	if err := c.setReadDeadline(timeout); err != nil {
		return true
	}
	_, err := io.Copy(io.Discard, c.reader)
	if err == nil {
		return true
	}
	var ne net.Error
	return !(errors.As(err, &ne) && ne.Timeout())
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) setReadDeadline(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	return c.conn.SetReadDeadline(deadline)
}
