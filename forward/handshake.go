package forward

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/pkg/errors"
)

// Handshake performs the relay-side ingress handshake (spec.md §4.2)
// on a newly accepted socket: read the 4-byte group id, resolve it to
// a session (allocating one if the id was 0, attaching if it names an
// existing session), and echo the resolved id back before any
// application data flows.
//
// dial is invoked only when a new session must be created (group id
// was 0); it dials the relay's configured upstream to become the new
// session's local endpoint.
func Handshake(conn *net.TCPConn, reg *Registry, dial func() (*net.TCPConn, error)) (*Session, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, errors.Wrap(ErrProtocolViolation, "handshake: short group-id read")
	}
	groupID := binary.BigEndian.Uint32(hdr[:])

	remote := &Remote{Conn: conn, Connected: true}

	if groupID == 0 {
		local, err := dial()
		if err != nil {
			writeGroupID(conn, 0)
			return nil, errors.Wrap(err, "handshake: dial upstream")
		}
		session, err := NewSession(reg, 0, local, []*Remote{remote})
		if err != nil {
			local.Close()
			writeGroupID(conn, 0)
			return nil, err
		}
		assigned := reg.Allocate(session)
		if err := writeGroupID(conn, assigned); err != nil {
			session.Close()
			return nil, errors.Wrap(err, "handshake: echo group id")
		}
		return session, nil
	}

	session := reg.Lookup(groupID)
	if session == nil {
		writeGroupID(conn, 0)
		return nil, errors.Wrapf(ErrUnknownGroup, "group id %d", groupID)
	}
	if err := writeGroupID(conn, groupID); err != nil {
		return nil, errors.Wrap(err, "handshake: echo group id")
	}
	session.AddRemote(remote)
	return session, nil
}

// DialHandshake is the proxy-side counterpart: write the group id this
// remote should join (0 for the first connection of a brand new
// session, the session's assigned id for every subsequent one) and read
// back the relay's answer. A reply of 0 means the relay rejected the
// attach (spec.md §9: proxies SHOULD treat 0 as an abort).
func DialHandshake(conn *net.TCPConn, groupID uint32) (uint32, error) {
	if err := writeGroupID(conn, groupID); err != nil {
		return 0, errors.Wrap(err, "dial handshake: write group id")
	}
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return 0, errors.Wrap(ErrProtocolViolation, "dial handshake: short reply")
	}
	reply := binary.BigEndian.Uint32(hdr[:])
	if reply == 0 && groupID == 0 {
		return 0, errors.New("dial handshake: relay rejected new session")
	}
	if groupID != 0 && reply != groupID {
		return 0, errors.New("dial handshake: relay echoed mismatched group id")
	}
	return reply, nil
}

func writeGroupID(conn *net.TCPConn, id uint32) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], id)
	_, err := conn.Write(hdr[:])
	return err
}
