// Package server adapts WebSocket connections to the transport served by
// workers, so browser clients share the registry and limits with TCP clients.
package server

import (
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsRead is one message, or the terminal error, from the read pump.
type wsRead struct {
	data []byte
	err  error
}

// wsTransport turns a message-oriented WebSocket into a transport. A read
// deadline only abandons the wait; it never breaks the connection, because
// gorilla connections are unusable after a read times out.
type wsTransport struct {
	conn     *websocket.Conn
	incoming chan wsRead
	done     chan struct{}

	mu           sync.Mutex
	readDeadline time.Time
	pending      []byte

	closeOnce sync.Once
	closeErr  error
}

func newWSTransport(conn *websocket.Conn, readLimit int) *wsTransport {
	conn.SetReadLimit(int64(readLimit))
	t := &wsTransport{
		conn:     conn,
		incoming: make(chan wsRead),
		done:     make(chan struct{}),
	}
	go t.readPump()
	return t
}

func (t *wsTransport) readPump() {
	defer close(t.incoming)
	for {
		_, data, err := t.conn.ReadMessage()
		select {
		case t.incoming <- wsRead{data: data, err: err}:
		case <-t.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Read returns at most one WebSocket message per call.
func (t *wsTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		t.mu.Unlock()
		return n, nil
	}
	deadline := t.readDeadline
	t.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r, ok := <-t.incoming:
		if !ok {
			return 0, io.EOF
		}
		if r.err != nil {
			if websocket.IsCloseError(r.err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return 0, io.EOF
			}
			return 0, r.err
		}
		n := copy(p, r.data)
		if n < len(r.data) {
			t.mu.Lock()
			t.pending = r.data[n:]
			t.mu.Unlock()
		}
		return n, nil
	case <-timeout:
		return 0, os.ErrDeadlineExceeded
	case <-t.done:
		return 0, net.ErrClosed
	}
}

// Write sends p as a single text message.
func (t *wsTransport) Write(p []byte) (int, error) {
	if err := t.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) SetReadDeadline(deadline time.Time) error {
	t.mu.Lock()
	t.readDeadline = deadline
	t.mu.Unlock()
	return nil
}

func (t *wsTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *wsTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Close sends a close frame on a best-effort basis and closes the socket.
func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
