package forward

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
)

// tcpPipe returns a connected pair of *net.TCPConn over loopback, the
// one concrete connection type every exported forward API accepts.
func tcpPipe(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		c, err := ln.Accept()
		accepted <- acceptResult{c, err}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	res := <-accepted
	if res.err != nil {
		t.Fatalf("accept: %v", res.err)
	}

	clientTCP, ok1 := client.(*net.TCPConn)
	serverTCP, ok2 := res.conn.(*net.TCPConn)
	if !ok1 || !ok2 {
		t.Fatalf("expected *net.TCPConn on both ends")
	}
	return clientTCP, serverTCP
}

// writeChunk writes one wire-format chunk (serial, length, payload) to
// conn in a single call, as a real sender would.
func writeChunk(t *testing.T, conn net.Conn, serial uint32, payload []byte) {
	t.Helper()
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], serial)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("writeChunk: %v", err)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	return io.ReadFull(conn, buf)
}
