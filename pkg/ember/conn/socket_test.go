package conn

import (
	"context"
	"net"
	"testing"
)

func TestApplySocketIgnoresNonTCPConns(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	if err := ApplySocket(server, DefaultSocketConfig()); err != nil {
		t.Fatalf("ApplySocket on a non-TCP conn should be a no-op, got error: %v", err)
	}
}

func TestApplySocketTunesRealTCPConn(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	acceptedCh := make(chan net.Conn, 1)
	go func() {
		nc, err := ln.Accept()
		if err == nil {
			acceptedCh <- nc
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	server := <-acceptedCh
	defer server.Close()

	if err := ApplySocket(server, DefaultSocketConfig()); err != nil {
		t.Fatalf("ApplySocket on a real TCP conn failed: %v", err)
	}
}

func TestListenerControlAppliesWithoutError(t *testing.T) {
	ctl := ListenerControl(SocketConfig{ReusePort: true})
	ln, err := (&net.ListenConfig{Control: ctl}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen with ListenerControl failed: %v", err)
	}
	ln.Close()
}
