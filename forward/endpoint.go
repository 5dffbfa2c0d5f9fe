package forward

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// rawConnable is satisfied by *net.TCPConn; it exists so sockopt_*.go
// can share setCork's signature without importing net twice.
type rawConnable interface {
	SyscallConn() (syscall.RawConn, error)
}

// DialTimeout bounds how long a single address attempt gets before
// DialAny moves to the next one.
const DialTimeout = 10 * time.Second

// DialAny iterates a resolved address list and returns the first TCP
// connection that completes. Nonblocking connect and the
// pending/connected/failed transition (spec.md §4.1) are handled
// internally by net.Dialer's use of the runtime netpoller; callers only
// see the final connected-or-exhausted outcome, which is the Go
// equivalent of endpoint_connect()'s per-family retry loop in the
// original source.
func DialAny(ctx context.Context, addrs []string) (*net.TCPConn, error) {
	dialer := &net.Dialer{
		Timeout: DialTimeout,
		Control: setSocketOptions,
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			lastErr = errors.Errorf("dial %s: not a TCP connection", addr)
			continue
		}
		return tcpConn, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no addresses to dial")
	}
	return nil, errors.Wrap(lastErr, "DialAny")
}

// DialN dials n independent connections to the same address list
// concurrently, returning every one that connected. This resolves the
// proxy-side open question (SPEC_FULL.md §4.3): all N remotes are
// initiated at once rather than one-at-a-time, and results are
// returned in initiation order (index order), not completion order, so
// the round-robin schedule stays deterministic for a fixed N.
func DialN(ctx context.Context, addrs []string, n int) ([]*net.TCPConn, error) {
	type result struct {
		conn *net.TCPConn
		err  error
	}
	results := make([]result, n)
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			conn, err := DialAny(ctx, addrs)
			results[i] = result{conn, err}
			done <- i
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	conns := make([]*net.TCPConn, 0, n)
	for _, r := range results {
		if r.err == nil {
			conns = append(conns, r.conn)
		}
	}
	if len(conns) == 0 {
		return nil, errors.New("DialN: every remote connection attempt failed")
	}
	return conns, nil
}
