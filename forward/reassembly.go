package forward

import (
	"encoding/binary"
	"io"
	"log"
	"sync/atomic"
	"time"
)

// chunkReady is sent by a remote's header-reader goroutine to the
// session's reassembly coordinator once a full header has been parsed.
// The remote then blocks on its own turn channel until the coordinator
// promotes it, which is the goroutine-and-channel equivalent of
// "disable read interest on this remote until its turn" (spec.md §4.4
// step 2): the goroutine is simply parked, nothing it has already read
// is lost, and no further bytes are pulled off the wire for this
// remote until promotion.
type chunkReady struct {
	remote *Remote
	serial uint32
	length uint32
}

// RunRemoteReader is the per-remote half of the reassembly engine
// (spec.md §4.4 steps 1-2): it repeatedly parses one chunk header off
// the wire and hands the parsed (serial, length) to the session's
// coordinator, then waits to be told it is this remote's turn to move
// the body.
func RunRemoteReader(r *Remote, ready chan<- chunkReady, turn <-chan struct{}, bodyDone chan<- struct{}) {
	s := r.Session
	var termErr error
	defer func() { s.CloseWithError(termErr) }()
	for {
		select {
		case <-s.Done():
			return
		default:
		}

		var hdr [HeaderSize]byte
		if _, err := io.ReadFull(r.Conn, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				termErr = ErrPeerClosed
			} else {
				termErr = err
			}
			return
		}
		serial := binary.BigEndian.Uint32(hdr[0:4])
		length := binary.BigEndian.Uint32(hdr[4:8])
		if length == 0 || length > MaxChunkBytes {
			termErr = ErrChunkTooLarge
			return
		}
		if s.Debug >= 2 {
			log.Printf("session %d: received header serial=%d length=%d from remote %s", s.GroupID, serial, length, r.addr())
		}

		select {
		case ready <- chunkReady{remote: r, serial: serial, length: length}:
		case <-s.Done():
			return
		}

		select {
		case <-turn:
		case <-s.Done():
			return
		}

		r.remainingRecvBytes = length
		remaining := int64(length)
		for remaining > 0 {
			// pipe_in full: this is the "disable read interest on the
			// active remote" backpressure trigger (spec.md §4.5). A
			// short sleep stands in for re-arming interest with the
			// egress side's drain rate, since there is no portable way
			// to block a goroutine on "pipe write-end became writable
			// again" without also spinning up an epoll of our own.
			for s.pipeIn.full() {
				select {
				case <-s.Done():
					return
				case <-time.After(time.Millisecond):
				}
			}
			max := MaxChunkSlice
			if int64(max) > remaining {
				max = int(remaining)
			}
			n, err := spliceConnToPipe(r.Conn, s.pipeIn.w, max)
			if n > 0 {
				s.pipeIn.add(int64(n))
				r.AddIn(n)
				remaining -= int64(n)
				r.remainingRecvBytes = uint32(remaining)
				if s.Debug >= 3 {
					log.Printf("session %d: spliced %d byte(s) from remote %s", s.GroupID, n, r.addr())
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
		r.remainingRecvBytes = 0

		select {
		case bodyDone <- struct{}{}:
		case <-s.Done():
			return
		}
	}
}

// RunReassemblyCoordinator is the single goroutine that owns
// session.receive_serial and the promotion decision (spec.md §4.4
// steps 3 and 5). It is the only writer of receive_serial, so no lock
// is needed even though N remote-reader goroutines feed it
// concurrently — exactly the "reactor serializes mutation" guarantee,
// expressed with a channel instead of a callback queue.
func RunReassemblyCoordinator(s *Session) {
	initial := s.snapshotRemotes()
	ready := make(chan chunkReady)
	turns := make(map[*Remote]chan struct{}, len(initial))
	bodyDone := make(chan struct{})

	spawn := func(r *Remote) {
		turn := make(chan struct{}, 1)
		turns[r] = turn
		go RunRemoteReader(r, ready, turn, bodyDone)
	}
	for _, r := range initial {
		spawn(r)
	}

	pending := make(map[uint32]chunkReady)
	var active *Remote

	// promote sends the turn signal for whichever pending chunk matches
	// session.receive_serial+1, if any, and advances receive_serial.
	// This is step 3 (promotion) and step 5's "scan for the next ready
	// remote" folded into one: every time new information arrives
	// (a header finished parsing, or the active remote finished its
	// body), we re-check whether the next serial is already waiting.
	promote := func() {
		if active != nil {
			return
		}
		want := atomic.LoadUint32(&s.receiveSerial) + 1
		cr, found := pending[want]
		if !found {
			return
		}
		delete(pending, want)
		atomic.AddUint32(&s.receiveSerial, 1)
		active = cr.remote
		turns[cr.remote] <- struct{}{}
	}

	for {
		promote()
		select {
		case <-s.Done():
			return
		case cr := <-ready:
			pending[cr.serial] = cr
		case <-bodyDone:
			active = nil
		case r := <-s.newRemotes:
			spawn(r)
		}
	}
}

// RunLocalEgress drains pipe_in into the session's local connection —
// the last hop of the remotes-to-local direction (spec.md §2's
// "pipe B (read end) → splice into server socket"). It runs until the
// local connection errors or the session is torn down from elsewhere.
func RunLocalEgress(s *Session) {
	var termErr error
	defer func() { s.CloseWithError(termErr) }()
	for {
		for s.pipeIn.empty() {
			select {
			case <-s.Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
		select {
		case <-s.Done():
			return
		default:
		}
		max := MaxChunkSlice
		if occ := s.pipeIn.occupancy(); occ < int64(max) {
			max = int(occ)
		}
		n, err := splicePipeToConn(s.pipeIn.r, s.Local, max)
		if n > 0 {
			s.pipeIn.sub(int64(n))
			atomic.AddUint64(&s.statsOut, uint64(n))
			if s.Debug >= 3 {
				log.Printf("session %d: egress spliced %d byte(s) to local", s.GroupID, n)
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
