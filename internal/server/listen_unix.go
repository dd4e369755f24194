//go:build unix

package server

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/Tyrowin/nexus/internal/config"
)

// listen opens the listening socket by hand so the configured backlog and
// SO_REUSEADDR are honoured and bind failures are told apart from listen
// failures.
func listen(cfg config.ServerConfig) (net.Listener, error) {
	addr := cfg.Address()

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, &StartError{Op: OpBind, Addr: addr, Err: err}
	}
	family, sa := sockaddr(tcpAddr)

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, &StartError{Op: OpBind, Addr: addr, Err: os.NewSyscallError("socket", err)}
	}
	unix.CloseOnExec(fd)

	if cfg.AllowPortReuse {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			_ = unix.Close(fd)
			return nil, &StartError{Op: OpBind, Addr: addr, Err: os.NewSyscallError("setsockopt", err)}
		}
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, &StartError{Op: OpBind, Addr: addr, Err: os.NewSyscallError("bind", err)}
	}

	if err := unix.Listen(fd, cfg.ListenBacklog); err != nil {
		_ = unix.Close(fd)
		return nil, &StartError{Op: OpListen, Addr: addr, Err: os.NewSyscallError("listen", err)}
	}

	// FileListener dups the descriptor and makes it non-blocking.
	f := os.NewFile(uintptr(fd), "nexus-listener")
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, &StartError{Op: OpListen, Addr: addr, Err: err}
	}
	return ln, nil
}

func sockaddr(a *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := a.IP.To4(); ip4 != nil || a.IP == nil {
		sa := &unix.SockaddrInet4{Port: a.Port}
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return unix.AF_INET, sa
	}

	sa := &unix.SockaddrInet6{Port: a.Port}
	copy(sa.Addr[:], a.IP.To16())
	if a.Zone != "" {
		if ifi, err := net.InterfaceByName(a.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return unix.AF_INET6, sa
}
