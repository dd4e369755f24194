// Package server owns the listening endpoint, admits connections within the
// configured limits, and drives startup and graceful shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Tyrowin/nexus/internal/config"
	"github.com/Tyrowin/nexus/internal/stats"
)

// maxAcceptBackoff caps the delay after repeated unexpected accept errors.
const maxAcceptBackoff = time.Second

// Server is the running context of one server instance: the listening
// endpoint, its configuration, the client registry, statistics and the
// shutdown flag. Create it with Start.
type Server struct {
	cfg        config.ServerConfig
	instanceID string
	log        *zap.Logger

	listener     net.Listener
	httpListener net.Listener
	httpServer   *http.Server
	upgrader     *websocket.Upgrader

	registry *Registry
	stats    *stats.Collector

	workers  *semaphore.Weighted
	active   atomic.Int64
	nextID   atomic.Uint64
	wg       sync.WaitGroup
	admitMu  sync.RWMutex
	shutdown atomic.Bool

	stopOnce sync.Once
	final    stats.Snapshot
}

// Start validates cfg and opens the listening endpoint (and the HTTP surface
// when configured). A nil logger discards all output.
func Start(cfg config.ServerConfig, logger *zap.Logger) (*Server, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	if logger == nil {
		logger = zap.NewNop()
	}
	instanceID := uuid.NewString()
	log := logger.With(zap.String("instance", instanceID))

	ln, err := listen(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		instanceID: instanceID,
		log:        log,
		listener:   ln,
		registry:   NewRegistry(cfg.MaxConnections, log),
		stats:      stats.NewCollector(),
		workers:    semaphore.NewWeighted(int64(cfg.MaxWorkerThreads)),
	}

	if cfg.HTTP.Enabled() {
		hl, err := net.Listen("tcp", cfg.HTTP.Address)
		if err != nil {
			_ = ln.Close()
			return nil, &StartError{Op: OpBind, Addr: cfg.HTTP.Address, Err: err}
		}
		s.httpListener = hl
		s.upgrader = newUpgrader(cfg, newOriginPolicy(cfg.HTTP.AllowedOrigins, log))
		s.httpServer = CreateServer(hl.Addr().String(), s.SetupRoutes())
	}

	log.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Stringer("mode", cfg.Mode),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Int("max_worker_threads", cfg.MaxWorkerThreads),
		zap.Int("listen_backlog", cfg.ListenBacklog))
	if s.httpListener != nil {
		log.Info("http surface listening", zap.String("addr", s.httpListener.Addr().String()))
	}
	return s, nil
}

// Addr returns the address of the listening endpoint.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// HTTPAddr returns the HTTP surface address, or nil when it is disabled.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// Config returns a copy of the configuration the server runs with.
func (s *Server) Config() config.ServerConfig {
	return s.cfg.Clone()
}

// InstanceID identifies this server instance in logs and status output.
func (s *Server) InstanceID() string {
	return s.instanceID
}

// Registry returns the client registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Statistics returns a consistent snapshot of the counters.
func (s *Server) Statistics() stats.Snapshot {
	return s.stats.Snapshot()
}

// ActiveWorkers returns the number of workers currently running.
func (s *Server) ActiveWorkers() int {
	return int(s.active.Load())
}

func (s *Server) shuttingDown() bool {
	return s.shutdown.Load()
}

// Run accepts connections until ctx is cancelled or Stop is called, then
// drains the workers. It returns only after the drain completed.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.httpServer != nil {
		g.Go(func() error {
			return s.serveHTTP()
		})
	}

	g.Go(func() error {
		err := s.acceptLoop(gctx)
		s.Stop()
		return err
	})

	return g.Wait()
}

// acceptLoop waits for connections with a bounded poll interval so the
// shutdown flag and ctx are rechecked even while idle.
func (s *Server) acceptLoop(ctx context.Context) error {
	type deadliner interface {
		SetDeadline(t time.Time) error
	}
	var backoff time.Duration

	for {
		if s.shuttingDown() || ctx.Err() != nil {
			return nil
		}

		if dl, ok := s.listener.(deadliner); ok {
			if err := dl.SetDeadline(time.Now().Add(s.cfg.PollInterval)); err != nil && !s.shuttingDown() {
				s.log.Warn("error setting accept deadline", zap.Error(err))
			}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if s.shuttingDown() {
				return nil
			}
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.log.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}

		if err := s.admit(conn); err != nil {
			s.log.Debug("connection rejected",
				zap.String("addr", conn.RemoteAddr().String()),
				zap.Error(err))
		}
	}
}

// reserve claims a worker slot for a new connection. It fails when the server
// is stopping, the registry is full or every worker is busy.
func (s *Server) reserve() error {
	s.admitMu.RLock()
	defer s.admitMu.RUnlock()

	if s.shuttingDown() {
		return ErrServerClosed
	}
	if s.registry.Full() {
		return &CapacityError{Resource: "connections", Limit: s.cfg.MaxConnections}
	}
	if !s.workers.TryAcquire(1) {
		return &CapacityError{Resource: "workers", Limit: s.cfg.MaxWorkerThreads}
	}

	s.active.Add(1)
	s.wg.Add(1)
	return nil
}

func (s *Server) release() {
	s.active.Add(-1)
	s.workers.Release(1)
	s.wg.Done()
}

// launch starts a worker for conn on a slot obtained from reserve.
func (s *Server) launch(conn transport) {
	client := newClientConnection(s.nextID.Add(1), conn, s.cfg.WriteTimeout)
	go func() {
		defer s.release()
		newWorker(s, client).run()
	}()
}

// admit spawns a worker for conn, or closes conn immediately and counts it as
// rejected.
func (s *Server) admit(conn transport) error {
	if err := s.reserve(); err != nil {
		s.reject(conn)
		return err
	}
	s.launch(conn)
	return nil
}

func (s *Server) reject(conn transport) {
	s.stats.Increment(stats.ConnectionsRejected, 1)
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Debug("error closing rejected connection", zap.Error(err))
	}
}

// Stop sets the shutdown flag, stops accepting, closes the listening endpoint
// and waits for every worker to reach CLOSED. Workers still running after the
// drain timeout have their connections closed. Stop is idempotent and returns
// the final statistics.
func (s *Server) Stop() stats.Snapshot {
	s.stopOnce.Do(s.teardown)
	return s.final
}

func (s *Server) teardown() {
	s.admitMu.Lock()
	s.shutdown.Store(true)
	s.admitMu.Unlock()

	s.log.Info("stopping server", zap.Int("active_workers", s.ActiveWorkers()))

	if err := s.listener.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn("error closing listener", zap.Error(err))
	}

	if s.httpServer != nil {
		if err := ShutdownServer(s.httpServer, s.cfg.DrainTimeout, s.log); err != nil {
			s.log.Warn("http surface did not shut down cleanly", zap.Error(err))
		}
	}

	if !s.waitWorkers(s.cfg.DrainTimeout) {
		closed := s.registry.CloseAll()
		s.log.Warn("drain timeout reached; closing remaining connections",
			zap.Duration("drain_timeout", s.cfg.DrainTimeout),
			zap.Int("closed", closed))
		s.wg.Wait()
	}

	s.final = s.stats.Snapshot()
	s.log.Info("server stopped",
		zap.Uint64("connections_accepted", s.final.ConnectionsAccepted),
		zap.Uint64("connections_rejected", s.final.ConnectionsRejected),
		zap.Uint64("connections_closed", s.final.ConnectionsClosed),
		zap.Uint64("bytes_received", s.final.BytesReceived),
		zap.Uint64("bytes_sent", s.final.BytesSent),
		zap.Uint64("send_errors", s.final.SendErrors),
		zap.Uint64("receive_errors", s.final.ReceiveErrors))
}

// waitWorkers waits for all workers to finish and reports whether they did
// so within timeout.
func (s *Server) waitWorkers(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
