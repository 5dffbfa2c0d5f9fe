package forward

import (
	"encoding/binary"
	"log"
	"sync/atomic"
)

// RunLocalIngest is the first half of the send-side pipeline: it
// splices bytes from the session's local connection into pipe_out,
// signaling the scheduler goroutine whenever new bytes arrive. It runs
// until the local connection closes or errors, at which point it tears
// the whole session down (spec.md §4.6: local socket EOF fails the
// session).
func RunLocalIngest(s *Session, wake chan<- struct{}) {
	var termErr error
	defer func() { s.CloseWithError(termErr) }()
	for {
		select {
		case <-s.Done():
			return
		default:
		}
		n, err := spliceConnToPipe(s.Local, s.pipeOut.w, MaxChunkSlice)
		if n > 0 {
			s.pipeOut.add(int64(n))
			atomic.AddUint64(&s.statsIn, uint64(n))
			if s.Debug >= 3 {
				log.Printf("session %d: ingest spliced %d byte(s) from local", s.GroupID, n)
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
		if err != nil {
			termErr = err
			return
		}
		if n == 0 {
			termErr = ErrPeerClosed
			return
		}
	}
}

// RunScheduler is the striping scheduler (spec.md §4.3): it drains
// pipe_out in chunks, picks the next connected remote round-robin, and
// frames+sends each chunk. wake is signaled by RunLocalIngest whenever
// fresh bytes land in pipe_out; the scheduler blocks on it when the
// pipe is empty instead of busy-polling.
func RunScheduler(s *Session, wake <-chan struct{}) {
	var termErr error
	defer func() { s.CloseWithError(termErr) }()
	current := 0
	for {
		for s.pipeOut.empty() {
			select {
			case <-s.Done():
				return
			case <-wake:
			}
		}
		select {
		case <-s.Done():
			return
		default:
		}

		remote, idx, err := selectRemote(s, current)
		if err != nil {
			termErr = err
			return
		}
		current = idx + 1

		n := s.pipeOut.occupancy()
		if n <= 0 {
			continue
		}

		atomic.AddUint32(&s.sendSerial, 1)
		serial := atomic.LoadUint32(&s.sendSerial)
		if s.Debug >= 2 {
			log.Printf("session %d: sending serial=%d length=%d to remote %s", s.GroupID, serial, n, remote.addr())
		}

		// Cork is an optimization (fewer, fuller segments on the
		// wire); a platform or kernel that rejects it still forwards
		// correctly, just with one extra packet per chunk, so its
		// error is not fatal to the session.
		_ = setCork(remote.Conn, true)

		if err := writeChunkHeader(remote.Conn, serial, uint32(n)); err != nil {
			termErr = err
			return
		}

		remaining := n
		for remaining > 0 {
			max := MaxChunkSlice
			if int64(max) > remaining {
				max = int(remaining)
			}
			moved, err := splicePipeToConn(s.pipeOut.r, remote.Conn, max)
			if moved > 0 {
				s.pipeOut.sub(int64(moved))
				remote.AddOut(moved)
				atomic.AddUint64(&s.statsOut, uint64(moved))
				remaining -= int64(moved)
				if s.Debug >= 3 {
					log.Printf("session %d: spliced %d byte(s) to remote %s", s.GroupID, moved, remote.addr())
				}
			}
			if err != nil {
				termErr = err
				return
			}
			if moved == 0 {
				termErr = ErrPeerClosed
				return
			}
		}

		_ = setCork(remote.Conn, false)
	}
}

func writeChunkHeader(conn interface{ Write([]byte) (int, error) }, serial, length uint32) error {
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], serial)
	binary.BigEndian.PutUint32(hdr[4:8], length)
	_, err := conn.Write(hdr[:])
	return err
}

// selectRemote advances the round-robin cursor starting at "from",
// skipping any remote whose Connected is false. It fails with
// ErrNoRemotes after two full wraps without finding one, matching
// remote_splice_out's loop-count check in the original source.
func selectRemote(s *Session, from int) (*Remote, int, error) {
	remotes := s.snapshotRemotes()
	n := len(remotes)
	if n == 0 {
		return nil, 0, ErrNoRemotes
	}
	for wraps, i := 0, from; wraps < 2*n+1; wraps, i = wraps+1, i+1 {
		idx := i % n
		r := remotes[idx]
		if r.Connected {
			return r, idx, nil
		}
	}
	return nil, 0, ErrNoRemotes
}
