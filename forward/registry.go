package forward

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Registry is the explicit, single shared mutable-state object the
// design notes call for in place of package-level statics: the live
// session table and the group-id counter the ingress handshake draws
// from. It is touched by the accept loop (adding sessions), by session
// teardown (removing them), and by the SIGUSR1 handler (reading them
// for a debug dump) — three different goroutines, hence the one lock
// in this codebase that is not optional.
type Registry struct {
	mu          sync.Mutex
	sessions    map[uint32]*Session
	nextGroupID uint32
}

// NewRegistry returns an empty registry. Group id 0 is reserved by the
// wire protocol to mean "not yet assigned", so allocation starts at 1.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint32]*Session)}
}

// Allocate returns a fresh group id not currently in use by any live
// session. It is a small-integer counter that skips collisions against
// the live set rather than scanning the full 32-bit space (spec.md §9
// open question, resolved in favor of the small-integer allocator).
func (r *Registry) Allocate(s *Session) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		r.nextGroupID++
		if r.nextGroupID == 0 {
			r.nextGroupID = 1
		}
		if _, taken := r.sessions[r.nextGroupID]; !taken {
			break
		}
	}
	id := r.nextGroupID
	s.GroupID = id
	s.registry = r
	r.sessions[id] = s
	return id
}

// Lookup returns the session bound to a group id, or nil.
func (r *Registry) Lookup(groupID uint32) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[groupID]
}

// Add registers a session under an already-known group id. The proxy
// side uses it with the id the relay assigned during the handshake; the
// relay side registers its sessions through Allocate instead.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.registry = r
	r.sessions[s.GroupID] = s
}

// Remove frees a session's group id for reuse. Called from
// Session.Close, so it is idempotent by construction (Close only calls
// it once per session).
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.GroupID)
}

// DebugDump writes a non-destructive snapshot of every live session to
// the log, in the shape of original_source/src/endpoint.c's
// local_debug/remote_debug, triggered by SIGUSR1.
func (r *Registry) DebugDump() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	log.Printf("registry: %d live session(s)", len(sessions))
	for _, s := range sessions {
		log.Print(s.debugString())
	}
}

// Totals sums byte counters across every live session, for the
// periodic CSV stat logger.
func (r *Registry) Totals() (sessions int, bytesIn, bytesOut uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		bytesIn += atomic.LoadUint64(&s.statsIn)
		bytesOut += atomic.LoadUint64(&s.statsOut)
	}
	return len(r.sessions), bytesIn, bytesOut
}

func (s *Session) debugString() string {
	out := fmt.Sprintf("session group=%d local=[%s] send_serial=%d receive_serial=%d\n",
		s.GroupID, s.localAddr(), atomic.LoadUint32(&s.sendSerial), atomic.LoadUint32(&s.receiveSerial))
	for i, r := range s.snapshotRemotes() {
		out += fmt.Sprintf("  remote[%d] [%s] connected=%v in=%d out=%d header=%d/%d recv_serial=%d remaining=%d\n",
			i, r.addr(), r.Connected, r.In(), r.Out(),
			r.partialHeaderBytes, HeaderSize, r.receiveSerial, r.remainingRecvBytes)
	}
	return out
}
