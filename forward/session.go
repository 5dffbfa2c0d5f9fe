package forward

import (
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// HeaderSize is the wire size of a chunk header: a 4-byte big-endian
// serial followed by a 4-byte big-endian length. The 2-byte serial
// variant seen in early development is not implemented; 4+4 is
// canonical.
const HeaderSize = 8

// MaxChunkBytes bounds a single chunk's declared length. A header
// claiming more is a protocol violation (spec recommends 16 MiB).
const MaxChunkBytes = 16 << 20

// MaxChunkSlice bounds how many body bytes are moved in one zero-copy
// transfer call, so that one busy remote cannot starve the others
// sharing a reactor turn. 1448 is a conservative single-packet payload
// under typical Ethernet+IPv6+TCP overhead; 16x gives headroom for one
// scheduling quantum without growing unbounded.
const MaxChunkSlice = 1448 * 16

// HighWater is the pipe occupancy above which the corresponding read
// side is paused.
const HighWater = 1 << 20

// Remote is one of the N sockets striped under a Session.
type Remote struct {
	Conn      *net.TCPConn
	Session   *Session
	Connected bool

	// receive-side header assembly
	partialHeader      [HeaderSize]byte
	partialHeaderBytes int
	receiveSerial      uint32
	remainingRecvBytes uint32

	statsIn  uint64
	statsOut uint64
}

func (r *Remote) addr() string {
	if r.Conn == nil {
		return "none"
	}
	return r.Conn.RemoteAddr().String()
}

// AddIn/AddOut are called from whichever goroutine is moving bytes for
// this remote; atomics let the registry's debug dump read them from a
// different goroutine without a session-wide lock.
func (r *Remote) AddIn(n int)  { atomic.AddUint64(&r.statsIn, uint64(n)) }
func (r *Remote) AddOut(n int) { atomic.AddUint64(&r.statsOut, uint64(n)) }

func (r *Remote) In() uint64  { return atomic.LoadUint64(&r.statsIn) }
func (r *Remote) Out() uint64 { return atomic.LoadUint64(&r.statsOut) }

// Session groups one local endpoint with N remote endpoints and owns
// the two staging pipes and the serial counters for both directions.
type Session struct {
	GroupID uint32
	Local   *net.TCPConn

	// remotesMu guards Remotes and newRemotes: on the proxy side every
	// remote is known before Run(), so this lock is never contended;
	// on the relay side remotes attach one at a time as further
	// sockets complete the ingress handshake, a genuine cross-goroutine
	// mutation the single-reactor-thread discipline elsewhere in this
	// package does not need to cover.
	remotesMu  sync.Mutex
	Remotes    []*Remote
	newRemotes chan *Remote // non-nil once Run() has started

	pipeOut *stagingPipe // local -> remotes
	pipeIn  *stagingPipe // remotes -> local

	sendSerial    uint32
	receiveSerial uint32

	statsIn  uint64
	statsOut uint64

	registry  *Registry
	closeOnce sync.Once
	logOnce   sync.Once
	closed    chan struct{}

	// Debug sets the verbosity level threaded down from cfg.Debug
	// (0-3, spec.md's ambient logging section): 1 logs session
	// lifecycle events including teardown cause, 2 adds chunk/serial
	// tracing, 3 adds per-splice byte counts. Zero value is silence
	// beyond the warning/fatal tiers that always log.
	Debug int
}

// NewSession allocates the two staging pipes and wraps the local
// connection and its N remotes. The caller has already dialed or
// accepted every Remote's connection; Connected is set true for
// remotes that are already usable.
func NewSession(reg *Registry, groupID uint32, local *net.TCPConn, remotes []*Remote) (*Session, error) {
	pipeOut, err := newStagingPipe()
	if err != nil {
		return nil, ErrResourceExhausted
	}
	pipeIn, err := newStagingPipe()
	if err != nil {
		pipeOut.Close()
		return nil, ErrResourceExhausted
	}

	s := &Session{
		GroupID: groupID,
		Local:   local,
		Remotes: remotes,
		pipeOut: pipeOut,
		pipeIn:  pipeIn,
		closed:  make(chan struct{}),
	}
	for _, r := range remotes {
		r.Session = s
	}
	return s, nil
}

// Close tears the session down exactly once: every remote socket, the
// local socket, and both pipes are closed; the session is removed from
// its registry. Safe to call from any goroutine, any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		for _, r := range s.Remotes {
			if r.Conn != nil {
				r.Conn.Close()
			}
		}
		if s.Local != nil {
			s.Local.Close()
		}
		if s.pipeOut != nil {
			s.pipeOut.Close()
		}
		if s.pipeIn != nil {
			s.pipeIn.Close()
		}
		if s.registry != nil {
			s.registry.Remove(s)
		}
	})
}

// CloseWithError logs err at the severity spec.md §7's error taxonomy
// assigns to its kind, then tears the session down via Close. Every
// goroutine a session runs defers this instead of a bare Close, so the
// reason a session died is never silently discarded: exactly one of
// the four callers' errors is logged (logOnce), the rest are redundant
// once the session is already going down.
//
// Peer close (the zero value of err, or io.EOF) is silent except at
// debug level 1, mirroring the original's log_debug around a clean
// disconnect. Protocol violations and resource exhaustion are always
// logged as warnings. Splice-unsupported is fatal to this session and
// always logged, since it means forwarding cannot work on this host at
// all.
func (s *Session) CloseWithError(err error) {
	s.logOnce.Do(func() {
		switch {
		case err == nil:
			if s.Debug > 0 {
				log.Printf("session %d: closing, local stream ended", s.GroupID)
			}
		case errors.Is(err, ErrPeerClosed):
			if s.Debug > 0 {
				log.Printf("session %d: closing, peer closed connection", s.GroupID)
			}
		case errors.Is(err, ErrProtocolViolation), errors.Is(err, ErrChunkTooLarge):
			log.Printf("session %d: protocol violation, tearing down: %v", s.GroupID, err)
		case errors.Is(err, ErrResourceExhausted):
			log.Printf("session %d: resource exhausted, tearing down: %v", s.GroupID, err)
		case errors.Is(err, ErrNoRemotes):
			log.Printf("session %d: no usable remote connection left, tearing down: %v", s.GroupID, err)
		case errors.Is(err, ErrSpliceUnsupported):
			log.Printf("session %d: splice(2) unsupported on this host, forwarding will not function: %v", s.GroupID, err)
		default:
			// Most commonly EPIPE/ECONNRESET bubbling up from a socket
			// read or write: the peer went away mid-transfer. Treated
			// as peer close rather than a protocol violation since
			// nothing about the wire format was at fault.
			if s.Debug > 0 {
				log.Printf("session %d: closing: %v", s.GroupID, err)
			}
		}
	})
	s.Close()
}

// Done reports whether the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.closed }

// snapshotRemotes returns a copy of the current remote list, safe to
// range over without holding remotesMu.
func (s *Session) snapshotRemotes() []*Remote {
	s.remotesMu.Lock()
	defer s.remotesMu.Unlock()
	out := make([]*Remote, len(s.Remotes))
	copy(out, s.Remotes)
	return out
}

// RemoteCount returns the current number of remotes attached to the
// session (safe to call concurrently with AddRemote).
func (s *Session) RemoteCount() int {
	s.remotesMu.Lock()
	defer s.remotesMu.Unlock()
	return len(s.Remotes)
}

// AddRemote attaches a newly handshaken socket as an additional
// Remote (the relay-side "attach to existing session" path,
// spec.md §4.2 step 3). If the session is already running, a reader
// goroutine is spawned for it immediately; otherwise it simply joins
// the initial remote set that Run will start readers for.
func (s *Session) AddRemote(r *Remote) {
	r.Session = s
	s.remotesMu.Lock()
	s.Remotes = append(s.Remotes, r)
	running := s.newRemotes != nil
	ch := s.newRemotes
	s.remotesMu.Unlock()

	if running {
		select {
		case ch <- r:
		case <-s.closed:
		}
	}
}

func (s *Session) localAddr() string {
	if s.Local == nil {
		return "none"
	}
	return s.Local.RemoteAddr().String()
}

// Run starts the four goroutines that drive a session: local ingest
// and the striping scheduler for the local->remotes direction, and the
// reassembly coordinator (which itself spawns one reader per remote)
// plus local egress for the remotes->local direction. It returns
// immediately; the session tears itself down (via Session.Close) when
// any of the four hits an unrecoverable error.
func (s *Session) Run() {
	s.remotesMu.Lock()
	s.newRemotes = make(chan *Remote, 8)
	s.remotesMu.Unlock()

	wake := make(chan struct{}, 1)
	go RunLocalIngest(s, wake)
	go RunScheduler(s, wake)
	go RunReassemblyCoordinator(s)
	go RunLocalEgress(s)
}
