//go:build !linux
// +build !linux

package forward

import "syscall"

// setSocketOptions is a no-op outside Linux; TCP_KEEPIDLE/INTVL/CNT
// and TCP_CORK have no portable equivalent reachable through
// golang.org/x/sys/unix on every platform this repo might build for.
func setSocketOptions(network, address string, c syscall.RawConn) error {
	return nil
}

func setCork(conn rawConnable, on bool) error {
	return nil
}
