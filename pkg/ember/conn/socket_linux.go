//go:build linux

package conn

import "golang.org/x/sys/unix"

// applyReusePort sets SO_REUSEPORT on a listening socket, letting multiple
// listener instances share a port with kernel-side load spreading.
func applyReusePort(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
