package forward

import (
	"context"
	"net"
	"testing"
)

func listenLoopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

func acceptOne(t *testing.T, ln net.Listener) {
	t.Helper()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()
}

func TestDialAnyPrefersFirstReachable(t *testing.T) {
	ln := listenLoopback(t)
	acceptOne(t, ln)

	conn, err := DialAny(context.Background(), []string{ln.Addr().String()})
	if err != nil {
		t.Fatalf("DialAny: %v", err)
	}
	defer conn.Close()
}

func TestDialAnySkipsUnreachable(t *testing.T) {
	ln := listenLoopback(t)
	acceptOne(t, ln)

	// 127.0.0.1:1 is almost always a closed port: immediate refusal.
	conn, err := DialAny(context.Background(), []string{"127.0.0.1:1", ln.Addr().String()})
	if err != nil {
		t.Fatalf("DialAny: %v", err)
	}
	defer conn.Close()
}

func TestDialAnyAllUnreachable(t *testing.T) {
	_, err := DialAny(context.Background(), []string{"127.0.0.1:1"})
	if err == nil {
		t.Fatal("expected error dialing an unreachable address")
	}
}

func TestDialNReturnsAllConnections(t *testing.T) {
	ln := listenLoopback(t)
	const n = 4
	for i := 0; i < n; i++ {
		acceptOne(t, ln)
	}

	conns, err := DialN(context.Background(), []string{ln.Addr().String()}, n)
	if err != nil {
		t.Fatalf("DialN: %v", err)
	}
	if len(conns) != n {
		t.Fatalf("DialN returned %d conns, want %d", len(conns), n)
	}
	for _, c := range conns {
		c.Close()
	}
}

func TestDialNPartialFailureStillSucceeds(t *testing.T) {
	ln := listenLoopback(t)
	acceptOne(t, ln)
	acceptOne(t, ln)

	// Ask for 2 connections over a candidate list whose first address
	// is unreachable: since DialAny tries every address per connection
	// attempt, every one of the n dials falls through to the good
	// address and succeeds. This only verifies DialN tolerates a
	// partially-unreachable candidate list.
	conns, err := DialN(context.Background(), []string{"127.0.0.1:1", ln.Addr().String()}, 2)
	if err != nil {
		t.Fatalf("DialN: %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("DialN returned %d conns, want 2", len(conns))
	}
	for _, c := range conns {
		c.Close()
	}
}
