package forward

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
)

func TestHandshakeNewSession(t *testing.T) {
	incoming, dialer := tcpPipe(t)
	upstream, upstreamPeer := tcpPipe(t)
	defer upstreamPeer.Close()

	reg := NewRegistry()
	dial := func() (*net.TCPConn, error) { return upstream, nil }

	type result struct {
		session *Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := Handshake(incoming, reg, dial)
		done <- result{s, err}
	}()

	// Proxy side of the handshake: group id 0 requests a new session.
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 0)
	if _, err := dialer.Write(hdr[:]); err != nil {
		t.Fatalf("write group id: %v", err)
	}
	if _, err := io.ReadFull(dialer, hdr[:]); err != nil {
		t.Fatalf("read assigned group id: %v", err)
	}
	assigned := binary.BigEndian.Uint32(hdr[:])
	if assigned == 0 {
		t.Fatal("relay assigned group id 0 for a new session")
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("Handshake: %v", res.err)
	}
	if res.session.GroupID != assigned {
		t.Fatalf("session group id %d != echoed id %d", res.session.GroupID, assigned)
	}
	if res.session.RemoteCount() != 1 {
		t.Fatalf("new session remote count = %d, want 1", res.session.RemoteCount())
	}
	if reg.Lookup(assigned) != res.session {
		t.Fatal("new session not registered under its assigned group id")
	}
}

func TestHandshakeAttachToExisting(t *testing.T) {
	reg := NewRegistry()
	local, localPeer := tcpPipe(t)
	defer localPeer.Close()
	r1conn, r1peer := tcpPipe(t)
	defer r1peer.Close()

	session, err := NewSession(reg, 0, local, []*Remote{{Conn: r1conn, Connected: true}})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	groupID := reg.Allocate(session)

	incoming, dialer := tcpPipe(t)
	done := make(chan error, 1)
	go func() {
		_, err := Handshake(incoming, reg, func() (*net.TCPConn, error) {
			t.Error("dial should not be called for an attach")
			return nil, nil
		})
		done <- err
	}()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], groupID)
	if _, err := dialer.Write(hdr[:]); err != nil {
		t.Fatalf("write group id: %v", err)
	}
	if _, err := io.ReadFull(dialer, hdr[:]); err != nil {
		t.Fatalf("read echoed group id: %v", err)
	}
	if got := binary.BigEndian.Uint32(hdr[:]); got != groupID {
		t.Fatalf("echoed group id %d, want %d", got, groupID)
	}

	if err := <-done; err != nil {
		t.Fatalf("Handshake attach: %v", err)
	}
	if session.RemoteCount() != 2 {
		t.Fatalf("session remote count after attach = %d, want 2", session.RemoteCount())
	}
}

func TestHandshakeUnknownGroupRejected(t *testing.T) {
	reg := NewRegistry()
	incoming, dialer := tcpPipe(t)

	done := make(chan error, 1)
	go func() {
		_, err := Handshake(incoming, reg, nil)
		done <- err
	}()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 999)
	if _, err := dialer.Write(hdr[:]); err != nil {
		t.Fatalf("write group id: %v", err)
	}
	if _, err := io.ReadFull(dialer, hdr[:]); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if got := binary.BigEndian.Uint32(hdr[:]); got != 0 {
		t.Fatalf("expected 0 reply for unknown group, got %d", got)
	}
	if err := <-done; err == nil {
		t.Fatal("expected Handshake to return an error for an unknown group id")
	}
}

func TestDialHandshakeInteropWithHandshake(t *testing.T) {
	reg := NewRegistry()
	incoming, dialer := tcpPipe(t)
	upstream, upstreamPeer := tcpPipe(t)
	defer upstreamPeer.Close()

	dial := func() (*net.TCPConn, error) { return upstream, nil }

	type result struct {
		groupID uint32
		err     error
	}
	done := make(chan result, 1)
	go func() {
		id, err := DialHandshake(dialer, 0)
		done <- result{id, err}
	}()

	session, err := Handshake(incoming, reg, dial)
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("DialHandshake: %v", res.err)
	}
	if res.groupID != session.GroupID {
		t.Fatalf("proxy saw group id %d, relay session has %d", res.groupID, session.GroupID)
	}
}
