// Package server runs one worker per client connection: it registers the
// client, serves echo or chat traffic, and tears the connection down.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/nexus/internal/config"
	"github.com/Tyrowin/nexus/internal/stats"
)

// quitCommand asks the server to close the connection.
const quitCommand = "quit"

// State is a worker's position in its lifecycle.
type State int

const (
	StateConnected State = iota
	StateServing
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateServing:
		return "serving"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// closeReason records why a worker left SERVING.
type closeReason string

const (
	reasonQuit       closeReason = "quit"
	reasonPeerClosed closeReason = "peer closed"
	reasonIdle       closeReason = "idle timeout"
	reasonReadError  closeReason = "read error"
	reasonWriteError closeReason = "write error"
	reasonShutdown   closeReason = "server shutdown"
)

type worker struct {
	srv     *Server
	cfg     *config.ServerConfig
	client  *ClientConnection
	limiter *rateLimiter
	log     *zap.Logger
	state   State
}

func newWorker(srv *Server, client *ClientConnection) *worker {
	return &worker{
		srv:     srv,
		cfg:     &srv.cfg,
		client:  client,
		limiter: newRateLimiter(srv.cfg.RateLimit),
		log: srv.log.With(
			zap.Uint64("client", client.ID),
			zap.String("addr", client.Addr)),
		state: StateConnected,
	}
}

func (w *worker) setState(s State) {
	w.log.Debug("worker state", zap.Stringer("from", w.state), zap.Stringer("to", s))
	w.state = s
}

// run drives CONNECTED -> SERVING -> CLOSING -> CLOSED. Failures stay local to
// this connection.
func (w *worker) run() {
	if !w.register() {
		return
	}

	w.setState(StateServing)
	reason := w.serve()

	w.setState(StateClosing)
	w.srv.registry.Deregister(w.client.ID)
	if err := w.client.Close(); err != nil && !isExpectedCloseError(err) {
		w.log.Debug("error closing connection", zap.Error(err))
	}
	w.srv.stats.Increment(stats.ConnectionsClosed, 1)
	w.setState(StateClosed)

	w.log.Debug("client disconnected",
		zap.String("reason", string(reason)),
		zap.Duration("connected_for", time.Since(w.client.JoinedAt)))
}

// register adds the client to the registry. Losing the race against the
// acceptor's capacity check rejects the connection.
func (w *worker) register() bool {
	if err := w.srv.registry.Register(w.client); err != nil {
		w.srv.stats.Increment(stats.ConnectionsRejected, 1)
		w.log.Debug("rejecting connection", zap.Error(err))
		_ = w.client.Close()
		w.state = StateClosed
		return false
	}

	w.srv.stats.Increment(stats.ConnectionsAccepted, 1)
	w.log.Debug("client connected")

	if w.cfg.Welcome {
		line := fmt.Appendf(nil, "Welcome, client #%d\n", w.client.ID)
		n, err := w.client.Write(line)
		w.srv.stats.Increment(stats.BytesSent, uint64(n))
		if err != nil {
			w.srv.stats.Increment(stats.SendErrors, 1)
			w.log.Debug("welcome write failed", zap.Error(&IOError{Op: "write", ClientID: w.client.ID, Err: err}))
			w.srv.registry.Deregister(w.client.ID)
			_ = w.client.Close()
			w.srv.stats.Increment(stats.ConnectionsClosed, 1)
			w.state = StateClosed
			return false
		}
	}
	return true
}

// readDeadline bounds each read by the poll interval, and by the idle timeout
// when one is configured, so shutdown is noticed between reads.
func (w *worker) readDeadline(now time.Time) time.Time {
	deadline := now.Add(w.cfg.PollInterval)
	if idle := w.cfg.ClientIdleTimeout; idle > 0 {
		if idleAt := w.client.LastActivity().Add(idle); idleAt.Before(deadline) {
			deadline = idleAt
		}
	}
	return deadline
}

func (w *worker) idleExpired(now time.Time) bool {
	idle := w.cfg.ClientIdleTimeout
	return idle > 0 && now.Sub(w.client.LastActivity()) >= idle
}

func (w *worker) serve() closeReason {
	buf := make([]byte, w.cfg.ReceiveBufferSize)

	for {
		if w.srv.shuttingDown() {
			return reasonShutdown
		}

		now := time.Now()
		if w.idleExpired(now) {
			w.srv.stats.Increment(stats.ReceiveErrors, 1)
			w.log.Debug("closing idle connection",
				zap.Duration("idle_timeout", w.cfg.ClientIdleTimeout))
			return reasonIdle
		}

		if err := w.client.conn.SetReadDeadline(w.readDeadline(now)); err != nil {
			w.srv.stats.Increment(stats.ReceiveErrors, 1)
			w.log.Debug("error setting read deadline", zap.Error(err))
			return reasonReadError
		}

		n, err := w.client.conn.Read(buf)
		if n > 0 {
			w.client.touch(time.Now())
			if reason, done := w.handleMessage(buf[:n]); done {
				return reason
			}
		}

		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
				return reasonPeerClosed
			}
			w.srv.stats.Increment(stats.ReceiveErrors, 1)
			w.log.Debug("read failed", zap.Error(&IOError{Op: "read", ClientID: w.client.ID, Err: err}))
			return reasonReadError
		}
	}
}

// handleMessage applies the protocol to one unit of received data and reports
// whether the worker must stop serving.
func (w *worker) handleMessage(msg []byte) (closeReason, bool) {
	w.srv.stats.Increment(stats.BytesReceived, uint64(len(msg)))
	w.srv.stats.Increment(stats.MessagesReceived, 1)

	if string(bytes.TrimSpace(msg)) == quitCommand {
		return reasonQuit, true
	}

	if !w.limiter.allow() {
		w.srv.stats.Increment(stats.RateLimited, 1)
		w.log.Debug("rate limit exceeded; discarding message",
			zap.Float64("messages_per_second", w.cfg.RateLimit.MessagesPerSecond))
		return "", false
	}

	switch w.cfg.Mode {
	case config.ModeChat:
		w.broadcast(msg)
		return "", false
	default:
		return w.echo(msg)
	}
}

func (w *worker) echo(msg []byte) (closeReason, bool) {
	out := make([]byte, 0, len(w.cfg.EchoPrefix)+len(msg))
	out = append(out, w.cfg.EchoPrefix...)
	out = append(out, msg...)

	n, err := w.client.Write(out)
	w.srv.stats.Increment(stats.BytesSent, uint64(n))
	if err != nil {
		w.srv.stats.Increment(stats.SendErrors, 1)
		if !isExpectedCloseError(err) {
			w.log.Debug("echo write failed", zap.Error(&IOError{Op: "write", ClientID: w.client.ID, Err: err}))
		}
		return reasonWriteError, true
	}
	w.srv.stats.Increment(stats.MessagesSent, 1)
	return "", false
}

func (w *worker) broadcast(msg []byte) {
	framed := frameChat(w.client.ID, msg)

	sent, err := w.srv.registry.Broadcast(w.client.ID, framed)
	w.srv.stats.Increment(stats.BytesSent, uint64(sent*len(framed)))
	w.srv.stats.Increment(stats.MessagesSent, uint64(sent))

	var be *BroadcastError
	if errors.As(err, &be) {
		w.srv.stats.Increment(stats.SendErrors, uint64(be.Failed))
		w.log.Debug("broadcast partially failed",
			zap.Int("delivered", sent),
			zap.Int("failed", be.Failed),
			zap.Error(be.Err))
	}
}

// frameChat tags a chat payload with its sender.
func frameChat(senderID uint64, payload []byte) []byte {
	framed := fmt.Appendf(make([]byte, 0, len(payload)+24), "[client %d] ", senderID)
	return append(framed, payload...)
}
