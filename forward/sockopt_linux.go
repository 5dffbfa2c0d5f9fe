//go:build linux
// +build linux

package forward

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketOptions tunes a freshly dialed TCP connection (it is the
// net.Dialer Control hook in DialAny; accepted connections are not tuned):
// reuse the address, disable Nagle (chunk headers are latency
// sensitive), and keep the connection alive so a silently dead peer is
// detected instead of leaking a session forever.
func setSocketOptions(network, address string, c syscall.RawConn) error {
	var sysErr error
	err := c.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 30)
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, 10)
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 3)
	})
	if err != nil {
		return err
	}
	return sysErr
}

// setCork engages TCP_CORK so that a chunk's header and body reach the
// wire as one (or few) segments instead of a short header-only packet
// followed by the body. setCork(conn, false) releases it once the chunk
// is complete, flushing whatever is buffered.
func setCork(conn rawConnable, on bool) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	v := 0
	if on {
		v = 1
	}
	var sysErr error
	cerr := rc.Control(func(fd uintptr) {
		sysErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, v)
	})
	if cerr != nil {
		return cerr
	}
	return sysErr
}
