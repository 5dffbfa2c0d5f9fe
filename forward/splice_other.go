//go:build !linux
// +build !linux

package forward

import (
	"io"
	"net"
	"os"
)

// Non-Linux platforms lack splice(2). Per the design notes, a buffered
// fallback using an intermediate user-space buffer is acceptable as
// long as the byte counters and backpressure thresholds behave
// identically to the zero-copy path; this is that fallback. Each call
// gets its own buffer (unlike the teacher's shared-buffer CopyControl
// in generic/copy.go) because sessions here run on independent
// goroutines with no central lock to serialize access to a shared one.
func spliceConnToPipe(src *net.TCPConn, dst *os.File, max int) (int, error) {
	if max > MaxChunkSlice {
		max = MaxChunkSlice
	}
	buf := make([]byte, max)
	n, err := src.Read(buf)
	if n > 0 {
		if _, werr := dst.Write(buf[:n]); werr != nil {
			return n, werr
		}
	}
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

func splicePipeToConn(src *os.File, dst *net.TCPConn, max int) (int, error) {
	if max > MaxChunkSlice {
		max = MaxChunkSlice
	}
	buf := make([]byte, max)
	n, err := src.Read(buf)
	if n > 0 {
		if _, werr := dst.Write(buf[:n]); werr != nil {
			return n, werr
		}
	}
	if err == io.EOF {
		return n, nil
	}
	return n, err
}
