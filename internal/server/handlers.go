// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and statistics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/nexus/internal/config"
	"github.com/Tyrowin/nexus/internal/stats"
)

// Status is the document served at /stats.
type Status struct {
	Instance      string         `json:"instance"`
	Mode          config.Mode    `json:"mode"`
	Address       string         `json:"address"`
	ActiveWorkers int            `json:"active_workers"`
	Clients       []uint64       `json:"clients"`
	Statistics    stats.Snapshot `json:"statistics"`
}

// Status reports the server's current state.
func (s *Server) Status() Status {
	return Status{
		Instance:      s.instanceID,
		Mode:          s.cfg.Mode,
		Address:       s.Addr().String(),
		ActiveWorkers: s.ActiveWorkers(),
		Clients:       s.registry.Snapshot(),
		Statistics:    s.stats.Snapshot(),
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Nexus server is running!")
}

// StatsHandler serves the current Status as JSON.
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.log.Debug("error writing stats response", zap.Error(err))
	}
}

// WebSocketHandler upgrades the request and serves it with a worker, subject
// to the same limits as TCP connections. A request that cannot be admitted is
// answered with 503 before upgrading and counted as rejected.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if err := s.reserve(); err != nil {
		s.stats.Increment(stats.ConnectionsRejected, 1)
		s.log.Debug("websocket connection rejected", zap.String("addr", r.RemoteAddr), zap.Error(err))
		http.Error(w, "Server is at capacity.", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release()
		s.log.Debug("websocket upgrade failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
		return
	}

	s.launch(newWSTransport(conn, s.cfg.ReceiveBufferSize))
}

func newUpgrader(cfg config.ServerConfig, origins *originPolicy) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  cfg.ReceiveBufferSize,
		WriteBufferSize: cfg.ReceiveBufferSize,
		CheckOrigin:     origins.checkOrigin,
	}
}
