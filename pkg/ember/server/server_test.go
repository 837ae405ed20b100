package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/embercore/ember/pkg/ember/conn"
	"github.com/embercore/ember/pkg/ember/wire"
)

func waitForAddr(t *testing.T, s *Server) net.Addr {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != nil {
			return a
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("server never bound a listening address")
	return nil
}

func newTestServer(handler conn.Handler) *Server {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Handler = handler
	return New(cfg)
}

func TestServerServesOneRequest(t *testing.T) {
	s := newTestServer(func(req *wire.Request) (*wire.Response, error) {
		return wire.NewResponse(200).WithBytes([]byte("hello")), nil
	})
	errCh := make(chan error, 1)
	go func() { errCh <- s.StartListening() }()

	addr := waitForAddr(t, s)
	c, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	c.Write([]byte("GET /x HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n"))

	br := bufio.NewReader(c)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("reading status line failed: %v", err)
	}
	if !strings.HasPrefix(line, "HTTP/1.1 200") {
		t.Fatalf("status line = %q", line)
	}
	c.Close()

	s.StopListening(true)
	select {
	case <-s.ShutdownComplete():
	case <-time.After(2 * time.Second):
		t.Fatalf("ShutdownComplete never fired")
	}
}

func TestServerEchoesDecodedQueryExactly(t *testing.T) {
	s := newTestServer(func(req *wire.Request) (*wire.Response, error) {
		var b strings.Builder
		b.WriteString(req.Method + ":\n")
		for _, p := range req.URL.Query() {
			fmt.Fprintf(&b, "%s => [%q]\n", p.Key, p.Value)
		}
		resp := wire.NewResponse(200).WithBytes([]byte(b.String()))
		resp.Header.SetString("Content-Type", "text/plain; charset=utf-8")
		return resp, nil
	})
	go s.StartListening()
	addr := waitForAddr(t, s)

	c, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	c.Write([]byte("GET /static?x=y&z=%20&zig=%3D%3d HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"))

	raw, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("reading response failed: %v", err)
	}
	out := string(raw)
	c.Close()

	if !strings.HasPrefix(out, "HTTP/1.1 200") {
		t.Fatalf("status line wrong: %q", out)
	}
	if !strings.Contains(out, "Content-Length: 41\r\n") {
		t.Fatalf("Content-Length wrong: %q", out)
	}
	wantBody := "GET:\nx => [\"y\"]\nz => [\" \"]\nzig => [\"==\"]\n"
	if !strings.HasSuffix(out, wantBody) {
		t.Fatalf("body = %q, want exact decoded-query echo", out)
	}

	s.StopListening(true)
	<-s.ShutdownComplete()
}

func TestServerGentleShutdownWaitsForInFlightRequest(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	s := newTestServer(func(req *wire.Request) (*wire.Response, error) {
		close(entered)
		<-release
		return wire.NewResponse(200).WithBytes([]byte("done")), nil
	})
	go s.StartListening()
	addr := waitForAddr(t, s)

	c, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	c.Write([]byte("GET /slow HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n"))
	<-entered

	shutdownReturned := make(chan struct{})
	go func() {
		s.StopListening(false)
		close(shutdownReturned)
	}()

	select {
	case <-shutdownReturned:
		t.Fatalf("gentle StopListening returned before the in-flight request finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-shutdownReturned:
	case <-time.After(2 * time.Second):
		t.Fatalf("gentle StopListening never returned after the in-flight request completed")
	}
	c.Close()
}

func TestServerBrutalShutdownClosesImmediately(t *testing.T) {
	entered := make(chan struct{})
	blockForever := make(chan struct{})
	s := newTestServer(func(req *wire.Request) (*wire.Response, error) {
		close(entered)
		<-blockForever
		return wire.NewResponse(200).WithBytes([]byte("never")), nil
	})
	go s.StartListening()
	addr := waitForAddr(t, s)

	c, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	c.Write([]byte("GET /stuck HTTP/1.1\r\nHost: h\r\n\r\n"))
	<-entered

	start := time.Now()
	s.StopListening(true)
	select {
	case <-s.ShutdownComplete():
	case <-time.After(3 * time.Second):
		t.Fatalf("brutal shutdown never signaled ShutdownComplete")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("brutal shutdown took %v, want bounded by its ~1s timeout", elapsed)
	}
	c.Close()
}

func TestServerStatsTrackTotalConnections(t *testing.T) {
	s := newTestServer(func(req *wire.Request) (*wire.Response, error) {
		return wire.NewResponse(200).WithBytes([]byte("ok")), nil
	})
	go s.StartListening()
	addr := waitForAddr(t, s)

	c, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	c.Write([]byte("GET /x HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n"))
	br := bufio.NewReader(c)
	if _, err := br.ReadString('\n'); err != nil {
		t.Fatalf("reading response failed: %v", err)
	}
	c.Close()

	s.StopListening(true)
	<-s.ShutdownComplete()

	if s.Stats().Snapshot().TotalConnections < 1 {
		t.Fatalf("TotalConnections = %d, want at least 1", s.Stats().Snapshot().TotalConnections)
	}
}
