//go:build linux
// +build linux

package forward

import (
	"io"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// spliceConnToPipe moves up to max bytes from a TCP socket into the
// write end of a staging pipe without a user-space copy, parking on
// Go's runtime netpoller (rather than a hand-rolled epoll loop) when
// the socket has nothing ready. This is the idiomatic-Go binding of
// the reactor component: SyscallConn().Read's callback is invoked by
// the netpoller exactly when the fd is readable, and returning false
// on EAGAIN hands control back to it instead of busy-polling.
//
// Grounded on generic/rawcopy_unix.go's raw-read callback discipline,
// generalized from syscall.Read to unix.Splice.
func spliceConnToPipe(src *net.TCPConn, dst *os.File, max int) (int, error) {
	rc, err := src.SyscallConn()
	if err != nil {
		return 0, err
	}

	var n int
	var opErr error
	rerr := rc.Read(func(fd uintptr) bool {
		wfd := int(dst.Fd())
		nn, e := unix.Splice(int(fd), nil, wfd, nil, max, unix.SPLICE_F_NONBLOCK|unix.SPLICE_F_MOVE)
		if e == syscall.EAGAIN {
			return false
		}
		n, opErr = int(nn), e
		return true
	})
	if opErr != nil {
		if opErr == syscall.ENOSYS || opErr == syscall.EINVAL {
			return n, ErrSpliceUnsupported
		}
		return n, opErr
	}
	if rerr != nil && rerr != io.EOF {
		return n, rerr
	}
	return n, nil
}

// splicePipeToConn is the mirror of spliceConnToPipe: it drains up to
// max bytes from the read end of a staging pipe into a TCP socket.
func splicePipeToConn(src *os.File, dst *net.TCPConn, max int) (int, error) {
	wc, err := dst.SyscallConn()
	if err != nil {
		return 0, err
	}

	var n int
	var opErr error
	werr := wc.Write(func(fd uintptr) bool {
		rfd := int(src.Fd())
		nn, e := unix.Splice(rfd, nil, int(fd), nil, max, unix.SPLICE_F_NONBLOCK|unix.SPLICE_F_MOVE)
		if e == syscall.EAGAIN {
			return false
		}
		n, opErr = int(nn), e
		return true
	})
	if opErr != nil {
		if opErr == syscall.ENOSYS || opErr == syscall.EINVAL {
			return n, ErrSpliceUnsupported
		}
		return n, opErr
	}
	if werr != nil && werr != io.EOF {
		return n, werr
	}
	return n, nil
}
