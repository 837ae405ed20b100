// Package server wires the wire codec, connection state machine, dispatch
// resolver and error boundary into a single embeddable top-level type:
// StartListening, StopListening (gentle or brutal), and a ShutdownComplete
// wait handle.
package server

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/embercore/ember/pkg/ember/conn"
)

// Config governs the listening socket and every accepted Connection. TLS
// termination is out of scope; wrap the listener externally if needed.
type Config struct {
	// Addr is the TCP address to listen on, e.g. ":8080".
	Addr string

	Handler         conn.Handler
	ErrorHandler    conn.ErrorHandler
	ResponseHandler conn.ResponseExceptionHandler

	ConnConfig conn.Config
	Socket     conn.SocketConfig

	// OutputExceptionInformation includes exception detail in the
	// default error page.
	OutputExceptionInformation bool
}

// DefaultConfig returns documented defaults for every knob.
func DefaultConfig() Config {
	return Config{
		Addr:       ":8080",
		ConnConfig: conn.DefaultConfig(),
		Socket:     conn.DefaultSocketConfig(),
	}
}

// Server is the embeddable HTTP/1.1 core: an accept loop over a single
// listening socket, dispatching each accepted connection to its own
// conn.Connection state machine.
type Server struct {
	cfg  Config
	errs *conn.ErrorBoundary

	mu       sync.Mutex
	listener net.Listener

	stats conn.Stats

	conns   map[*conn.Connection]struct{}
	connsMu sync.Mutex

	shuttingDown atomic.Bool

	brutal   chan struct{}
	brutalOn sync.Once

	shutdownComplete chan struct{}
	shutdownOnce     sync.Once

	wg sync.WaitGroup
}

// New builds a Server from Config. The handler must be set; it is the
// single required field.
func New(cfg Config) *Server {
	if cfg.ConnConfig.IdleTimeout == 0 {
		cfg.ConnConfig = conn.DefaultConfig()
	}
	return &Server{
		cfg: cfg,
		errs: &conn.ErrorBoundary{
			OnError:             cfg.ErrorHandler,
			OnResponseError:     cfg.ResponseHandler,
			OutputExceptionInfo: cfg.OutputExceptionInformation,
		},
		conns:            make(map[*conn.Connection]struct{}),
		brutal:           make(chan struct{}),
		shutdownComplete: make(chan struct{}),
	}
}

// Stats exposes the server-wide atomic counters.
func (s *Server) Stats() *conn.Stats { return &s.stats }

// Addr returns the actual address the listening socket bound to, useful
// when Config.Addr requested an ephemeral port ("127.0.0.1:0"). It is only
// valid once StartListening has begun listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ShutdownComplete is closed once a gentle StopListening has fully drained
// the server (no tracked connections remain), or once a brutal one has
// drained it or its one-second wait has elapsed, whichever comes first.
func (s *Server) ShutdownComplete() <-chan struct{} { return s.shutdownComplete }

// StartListening binds the configured address and runs the accept loop
// until StopListening is called or Accept fails. It blocks the calling
// goroutine; embed it in your own goroutine to run it in the background.
func (s *Server) StartListening() error {
	lc := net.ListenConfig{Control: conn.ListenerControl(s.cfg.Socket)}
	ln, err := lc.Listen(context.Background(), "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.brutal:
				return nil
			default:
			}
			if isGentlyClosed(err) {
				return nil
			}
			s.stats.ConnectionErrors.Add(1)
			return err
		}

		conn.ApplySocket(nc, s.cfg.Socket)
		s.spawn(nc)
	}
}

// isGentlyClosed reports whether err is the expected Accept failure after
// StopListening closed the listener, as opposed to a genuine I/O error.
func isGentlyClosed(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}

func (s *Server) spawn(nc net.Conn) {
	c := conn.NewWithShutdownFlag(nc, s.cfg.ConnConfig, s.cfg.Handler, s.errs, &s.stats, &s.shuttingDown)

	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(c)
		c.Serve()
	}()
}

func (s *Server) untrack(c *conn.Connection) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

// StopListening stops the server in one of two modes. Gentle stops
// accepting, lets in-flight requests finish, and closes idle keep-alive
// connections; it returns only once every tracked connection has ended,
// with no time limit. Brutal closes every tracked socket immediately and
// waits at most one second for the connections to end. Both close
// ShutdownComplete before returning.
func (s *Server) StopListening(brutal bool) {
	s.shuttingDown.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}

	if brutal {
		s.brutalOn.Do(func() { close(s.brutal) })
		s.closeAll()
		s.waitAndSignal(1 * time.Second)
		return
	}

	s.closeIdle()
	s.waitAndSignal(0)
}

// closeAll forcibly closes every tracked connection, the brutal path.
func (s *Server) closeAll() {
	s.connsMu.Lock()
	targets := make([]*conn.Connection, 0, len(s.conns))
	for c := range s.conns {
		targets = append(targets, c)
	}
	s.connsMu.Unlock()

	for _, c := range targets {
		c.Close()
	}
}

// closeIdle closes only connections currently sitting in
// Keep-Alive-Idle; active requests are allowed to complete on their own.
func (s *Server) closeIdle() {
	s.connsMu.Lock()
	targets := make([]*conn.Connection, 0, len(s.conns))
	for c := range s.conns {
		if c.State() == conn.StateKeepAliveIdle {
			targets = append(targets, c)
		}
	}
	s.connsMu.Unlock()

	for _, c := range targets {
		c.Close()
	}
}

// waitAndSignal blocks until the waitgroup drains (bounded by timeout
// when non-zero, used for the brutal path's "≤1s" target) then closes
// ShutdownComplete exactly once.
func (s *Server) waitAndSignal(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if timeout > 0 {
		select {
		case <-done:
		case <-time.After(timeout):
		}
	} else {
		<-done
	}

	s.shutdownOnce.Do(func() { close(s.shutdownComplete) })
}
