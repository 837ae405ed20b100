package conn

import (
	"fmt"

	"github.com/embercore/ember/pkg/ember/wire"
)

// HTTPError is a handler-signalled outcome carrying its own status code: a
// single tagged variant rather than a family of per-status error types.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("http error %d", e.Status)
}

// NewHTTPError builds a status-carrying error a handler can return to have
// the error boundary render it directly.
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

// ParseError carries the status a malformed preamble should be answered
// with (400/413/414/431/...), derived from a wire.ErrXxx sentinel.
type ParseError struct {
	Status int
	Cause  error
}

func (e *ParseError) Error() string { return e.Cause.Error() }
func (e *ParseError) Unwrap() error { return e.Cause }

// NewParseError wraps a wire package sentinel with its mandated status.
func NewParseError(cause error) *ParseError {
	return &ParseError{Status: wire.StatusOf(cause), Cause: cause}
}

// ErrNoResponse is the fault substituted when a handler returns a nil
// Response with no error, so the error boundary has something
// distinguishable to render.
var ErrNoResponse = fmt.Errorf("conn: handler returned no response")

// Handler is a single function reference rather than an interface
// hierarchy; anything that can produce a Response for a Request qualifies.
type Handler func(req *wire.Request) (*wire.Response, error)

// ErrorHandler renders a replacement Response for a failed request. When
// the preamble failed to parse, req is a stub whose only populated field is
// an empty Header (its URL is nil).
type ErrorHandler func(req *wire.Request, err error) (*wire.Response, error)

// ResponseExceptionHandler is invoked, for telemetry/cleanup only, when a
// response body stream fails after headers were already flushed. It cannot
// alter the wire; resp is the same Response value that was being streamed.
type ResponseExceptionHandler func(req *wire.Request, err error, resp *wire.Response)

// ErrorBoundary owns the optional user hooks and the status-preserving
// built-in fallback.
type ErrorBoundary struct {
	OnError             ErrorHandler
	OnResponseError     ResponseExceptionHandler
	OutputExceptionInfo bool
}

// StatusFor extracts the status an error carries, defaulting to 500 for an
// unrecognized error kind.
func StatusFor(err error) int {
	switch e := err.(type) {
	case *HTTPError:
		return e.Status
	case *ParseError:
		return e.Status
	default:
		return 500
	}
}

// Handle runs the user ErrorHandler (if any), and falls back to the
// built-in default, preserving the ORIGINAL error's status, never the
// error handler's own, so the error handler is safe to fail.
func (b *ErrorBoundary) Handle(req *wire.Request, err error) *wire.Response {
	originalStatus := StatusFor(err)

	if b.OnError != nil {
		resp, herr := b.OnError(req, err)
		if herr == nil && resp != nil {
			return resp
		}
		// The error handler itself failed or declined: fall back using the
		// ORIGINAL exception and its original status, not herr's.
	}
	return b.defaultResponse(originalStatus, err)
}

// HandleResponseFault runs the user ResponseExceptionHandler, if any. It
// never returns a value: by the time it's called headers are already on
// the wire and framing can't be changed.
func (b *ErrorBoundary) HandleResponseFault(req *wire.Request, err error, resp *wire.Response) {
	if b.OnResponseError != nil {
		b.OnResponseError(req, err, resp)
	}
}

func (b *ErrorBoundary) defaultResponse(status int, err error) *wire.Response {
	resp := wire.NewResponse(status)
	resp.Header.SetString("Content-Type", "text/html; charset=utf-8")
	body := fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", status, wire.ReasonPhrase(status))
	if b.OutputExceptionInfo && err != nil {
		body = fmt.Sprintf("<html><body><h1>%d %s</h1><pre>%s</pre></body></html>", status, wire.ReasonPhrase(status), err.Error())
	}
	return resp.WithBytes([]byte(body))
}
