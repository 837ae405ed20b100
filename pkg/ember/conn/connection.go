package conn

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/embercore/ember/pkg/ember/wire"
)

// State is one step of a connection's lifecycle.
type State int32

const (
	StateNew State = iota
	StateReadingRequest
	StateProcessing
	StateWritingResponse
	StateKeepAliveIdle
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReadingRequest:
		return "reading-request"
	case StateProcessing:
		return "processing"
	case StateWritingResponse:
		return "writing-response"
	case StateKeepAliveIdle:
		return "keep-alive-idle"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config governs per-connection behavior: timeouts, parse limits, gzip
// negotiation, upload spill policy.
type Config struct {
	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Limits wire.Limits
	Gzip   wire.GzipConfig
	Spill  wire.SpillPolicy

	OutputExceptionInfo bool
}

// DefaultConfig returns the documented defaults for every knob.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  wire.DefaultIdleTimeout,
		ReadTimeout:  wire.DefaultReadTimeout,
		WriteTimeout: wire.DefaultWriteTimeout,
		Gzip:         wire.DefaultGzipConfig(),
		Spill: wire.SpillPolicy{
			Threshold: wire.DefaultStoreFileUploadInFileAtSize,
		},
	}
}

// Connection is one accepted socket's state machine: parse, dispatch,
// respond, keep-alive loop.
type Connection struct {
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	parser  *wire.Parser

	cfg     Config
	handler Handler
	errs    *ErrorBoundary
	stats   *Stats

	// shuttingDown is shared across every connection owned by a Server; it
	// is set once a gentle StopListening begins so a request that finishes
	// while shutdown is in progress closes instead of going keep-alive. Nil
	// outside a Server (e.g. in tests constructing a Connection directly)
	// means never set.
	shuttingDown *atomic.Bool

	state    atomic.Int32
	closed   atomic.Bool
	requests atomic.Int64
}

// New wires up a Connection over an already-accepted net.Conn.
func New(nc net.Conn, cfg Config, handler Handler, errs *ErrorBoundary, stats *Stats) *Connection {
	return NewWithShutdownFlag(nc, cfg, handler, errs, stats, nil)
}

// NewWithShutdownFlag is New plus a shared flag the owning Server flips
// when a gentle shutdown begins. Exported so server.Server can wire it;
// ordinary embedders should just use New.
func NewWithShutdownFlag(nc net.Conn, cfg Config, handler Handler, errs *ErrorBoundary, stats *Stats, shuttingDown *atomic.Bool) *Connection {
	c := &Connection{
		netConn:      nc,
		br:           wire.GetBufioReader(nc),
		bw:           wire.GetBufioWriter(nc),
		parser:       wire.GetParser(),
		cfg:          cfg,
		handler:      handler,
		errs:         errs,
		stats:        stats,
		shuttingDown: shuttingDown,
	}
	c.state.Store(int32(StateNew))
	return c
}

func (c *Connection) isShuttingDown() bool {
	return c.shuttingDown != nil && c.shuttingDown.Load()
}

func (c *Connection) State() State { return State(c.state.Load()) }
func (c *Connection) setState(s State) { c.state.Store(int32(s)) }

// RemoteAddr returns the socket peer address as a string.
func (c *Connection) RemoteAddr() string {
	if a := c.netConn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// Serve runs the request/response loop until the connection closes. It
// never returns an error the caller must act on: all failure modes
// terminate by closing the socket.
func (c *Connection) Serve() {
	defer c.cleanup()
	c.stats.TotalConnections.Add(1)

	for {
		if c.closed.Load() {
			return
		}

		c.setState(StateReadingRequest)
		c.netConn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		req, err := c.parser.Parse(c.br, c.RemoteAddr(), c.cfg.Limits)
		if err != nil {
			if isHalfCloseOrTimeout(err) {
				// The peer half-closed or the preamble timed out with no
				// complete request buffered: close quietly, no response.
				return
			}
			c.respondParseFailure(err)
			return
		}

		c.stats.EnterProcessing()
		closeAfter := c.handleOneRequest(req)
		c.stats.LeaveProcessing()

		if closeAfter || c.closed.Load() || c.isShuttingDown() {
			return
		}

		c.setState(StateKeepAliveIdle)
		c.stats.EnterKeepAliveIdle()
		c.netConn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		_, peekErr := c.br.Peek(1)
		c.stats.LeaveKeepAliveIdle()
		if peekErr != nil {
			return
		}
	}
}

// handleOneRequest runs the handler, writes the response, and returns
// whether the connection should close afterward.
func (c *Connection) handleOneRequest(req *wire.Request) (closeAfter bool) {
	defer wire.PutRequest(req)

	c.setState(StateProcessing)
	c.requests.Add(1)

	if strings.EqualFold(req.Header.GetString("Expect"), "100-continue") {
		c.bw.Write(wire.StatusLine(100))
		c.bw.Write([]byte("\r\n"))
		c.bw.Flush()
	}

	if err := c.decodeBody(req); err != nil {
		c.respondFromError(req, err)
		return true
	}

	resp, herr := c.invokeHandler(req)
	if herr != nil || resp == nil {
		if herr == nil {
			herr = ErrNoResponse
		}
		resp = c.errs.Handle(req, herr)
	}

	runCleanup := func() {
		if req.Cleanup != nil {
			req.Cleanup()
			req.Cleanup = nil
		}
	}

	c.setState(StateWritingResponse)
	c.netConn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	result, werr := wire.WriteResponse(c.bw, req, resp, c.cfg.Gzip)

	if werr != nil && result.HeadersFlushed {
		c.errs.HandleResponseFault(req, werr, resp)
		runCleanup()
		return true
	}
	runCleanup()

	if werr != nil {
		return true
	}
	if result.CloseAfter || !req.ShouldKeepAlive() {
		return true
	}
	return !c.drainBody(req)
}

// maxBodyDrain caps how much of an unread request body is discarded to
// reach the next keep-alive request; past this it is cheaper to close.
const maxBodyDrain = 256 << 10

// drainBody discards whatever body bytes the handler left unread so the
// next request on this connection starts at a clean preamble boundary.
// Reports false if the connection should close instead (I/O failure, or a
// leftover body too large to be worth consuming).
func (c *Connection) drainBody(req *wire.Request) bool {
	if req.Body == nil {
		return true
	}
	n, err := io.Copy(io.Discard, io.LimitReader(req.Body, maxBodyDrain+1))
	return err == nil && n <= maxBodyDrain
}

func (c *Connection) invokeHandler(req *wire.Request) (resp *wire.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HTTPError{Status: 500, Message: "internal error"}
			resp = nil
		}
	}()
	return c.handler(req)
}

func (c *Connection) decodeBody(req *wire.Request) error {
	ct := req.Header.GetString("Content-Type")
	if strings.HasPrefix(strings.ToLower(ct), "multipart/form-data") {
		boundary, err := wire.ExtractBoundary(ct)
		if err != nil {
			return err
		}
		if req.Body == nil {
			return wire.ErrMultipartMalformed
		}
		// Decode through req.Body, not the raw connection reader: the body
		// may be chunked-coded, and the framing reader is what strips that
		// coding. Any epilogue bytes left inside the framing are discarded
		// by the keep-alive drain.
		mr := wire.GetBufioReader(req.Body)
		form, files, perr := wire.ParseMultipart(mr, boundary, &c.cfg.Spill, c.cfg.Spill.Threshold)
		wire.PutBufioReader(mr)
		if perr != nil {
			return perr
		}
		req.PostForm = form
		req.Files = files
		return nil
	}
	if strings.HasPrefix(strings.ToLower(ct), "application/x-www-form-urlencoded") && req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		form, perr := wire.ParseURLEncoded(string(data))
		if perr != nil {
			return perr
		}
		req.PostForm = form
	}
	return nil
}

func (c *Connection) respondParseFailure(err error) {
	req := &wire.Request{Header: &wire.Header{}}
	resp := c.errs.Handle(req, NewParseError(err))
	c.netConn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	req.ProtoMinor = 1
	wire.WriteResponse(c.bw, req, resp, c.cfg.Gzip)
}

func (c *Connection) respondFromError(req *wire.Request, err error) {
	resp := c.errs.Handle(req, err)
	c.netConn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	wire.WriteResponse(c.bw, req, resp, c.cfg.Gzip)
}

func isHalfCloseOrTimeout(err error) bool {
	if errors.Is(err, wire.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// Close brutally aborts the connection: the socket is closed immediately,
// cancelling any in-flight read/write. Cleanup callbacks registered on an
// in-flight request still run: handleOneRequest invokes them once the
// handler returns and its response write has ended, failed or not.
func (c *Connection) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.setState(StateClosing)
		c.netConn.Close()
	}
}

func (c *Connection) cleanup() {
	c.setState(StateClosing)
	c.bw.Flush()
	c.netConn.Close()
	wire.PutBufioReader(c.br)
	wire.PutBufioWriter(c.bw)
	wire.PutParser(c.parser)
}
