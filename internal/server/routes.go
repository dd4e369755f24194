// Package server wires HTTP handlers into a ServeMux for the management surface.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/nexus/internal/stats"
)

// SetupRoutes configures and returns an HTTP ServeMux with the health, stats,
// metrics and (when enabled) WebSocket endpoints.
func (s *Server) SetupRoutes() *http.ServeMux {
	collector := stats.NewPrometheusCollector(s.stats, map[string]stats.GaugeFunc{
		"active_workers":     func() float64 { return float64(s.ActiveWorkers()) },
		"registered_clients": func() float64 { return float64(s.registry.Len()) },
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/stats", s.StatsHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(stats.NewRegistry(collector), promhttp.HandlerOpts{}))
	if s.cfg.HTTP.WebSocket {
		mux.HandleFunc("/ws", s.WebSocketHandler)
	}
	return mux
}
