package forward

import "github.com/pkg/errors"

// Sentinel errors for the failure taxonomy: transient I/O is recovered
// locally and never reaches these, everything else tears down at most
// one session.
var (
	// ErrPeerClosed means the remote end closed its side cleanly. Not
	// logged above debug level.
	ErrPeerClosed = errors.New("forward: peer closed connection")

	// ErrProtocolViolation means the peer sent something the wire format
	// does not allow. It is returned for a short handshake read; a chunk
	// header with a zero or oversize length is reported as
	// ErrChunkTooLarge instead, and chunk serials are not checked for
	// gaps or regressions.
	ErrProtocolViolation = errors.New("forward: protocol violation")

	// ErrUnknownGroup means a relay received an attach request for a
	// group id that does not exist in the registry.
	ErrUnknownGroup = errors.New("forward: unknown group id")

	// ErrSpliceUnsupported means the host kernel lacks splice(2) or
	// rejected it (ENOSYS/EINVAL). The session that hit this is torn
	// down; other sessions are unaffected and keep using splice.
	ErrSpliceUnsupported = errors.New("forward: splice unsupported on this host")

	// ErrNoRemotes means every remote in a session's stripe set is
	// disconnected or exhausted two full round-robin wraps.
	ErrNoRemotes = errors.New("forward: no usable remote connection")

	// ErrResourceExhausted means a pipe, socket, or memory allocation
	// failed while setting up a new session. The session under setup is
	// aborted; existing sessions are unaffected.
	ErrResourceExhausted = errors.New("forward: resource exhausted")

	// ErrChunkTooLarge means a chunk header declared a length of zero or
	// above MaxChunkBytes.
	ErrChunkTooLarge = errors.New("forward: chunk length exceeds limit")
)
