//go:build !unix

package server

import (
	"context"
	"net"

	"github.com/Tyrowin/nexus/internal/config"
)

// listen falls back to the standard listener where raw sockets are not
// available. The backlog and address reuse are left to the OS.
func listen(cfg config.ServerConfig) (net.Listener, error) {
	addr := cfg.Address()

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, &StartError{Op: OpBind, Addr: addr, Err: err}
	}
	return ln, nil
}
