package conn

import (
	"net"
	"syscall"
)

// SocketConfig tunes the raw TCP socket underneath an accepted Connection
// or the listener itself: a zero-value-means-default plain struct applied
// once via raw syscalls rather than per-platform net.Dialer knobs.
type SocketConfig struct {
	// NoDelay disables Nagle's algorithm. Recommended for request/response
	// traffic where small writes shouldn't wait for a peer ACK.
	NoDelay bool

	// RecvBuffer/SendBuffer set SO_RCVBUF/SO_SNDBUF. Zero means leave the
	// system default alone.
	RecvBuffer int
	SendBuffer int

	// KeepAlive enables SO_KEEPALIVE so half-dead peers eventually get
	// reaped by the kernel even if the application layer never notices.
	KeepAlive bool

	// ReusePort requests SO_REUSEPORT on the listening socket, letting
	// multiple listener instances (e.g. one per accept goroutine group)
	// share the same port with kernel-side load spreading. Linux-only;
	// ignored elsewhere.
	ReusePort bool
}

// DefaultSocketConfig returns sensible values for general-purpose HTTP
// traffic.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		NoDelay:    true,
		RecvBuffer: 256 * 1024,
		SendBuffer: 256 * 1024,
		KeepAlive:  true,
	}
}

// ApplySocket tunes an already-accepted connection. Non-TCP connections
// (e.g. in tests using net.Pipe) are left untouched.
func ApplySocket(c net.Conn, cfg SocketConfig) error {
	tcpConn, ok := c.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}

	var lastErr error
	ctlErr := raw.Control(func(fd uintptr) {
		if cfg.NoDelay {
			if e := syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); e != nil {
				lastErr = e
				return
			}
		}
		if cfg.RecvBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, cfg.RecvBuffer)
		}
		if cfg.SendBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, cfg.SendBuffer)
		}
		if cfg.KeepAlive {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
		}
	})
	if ctlErr != nil {
		return ctlErr
	}
	return lastErr
}

// ListenerControl returns a net.ListenConfig.Control function that applies
// cfg to the listening socket before bind/listen, the only point
// SO_REUSEPORT can be set. Platform-specific wiring lives in
// socket_linux.go/socket_other.go.
func ListenerControl(cfg SocketConfig) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var ctlErr error
		err := c.Control(func(fd uintptr) {
			if cfg.ReusePort {
				ctlErr = applyReusePort(fd)
			}
		})
		if err != nil {
			return err
		}
		return ctlErr
	}
}
