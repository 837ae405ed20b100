package wire

import (
	"strconv"
	"strings"

	"github.com/embercore/ember/pkg/ember/httpurl"
)

// Request is a fully parsed HTTP/1.1 (or 1.0) request preamble plus a body
// reader. Header and URL own their data (strings, not byte-slice views
// into a pooled parse buffer): a Request can be handed to an RPC handler,
// a dispatch resolver and a deferred cleanup callback, any of which may
// run after the wire buffer has been reused.
type Request struct {
	Method     string
	ProtoMajor int
	ProtoMinor int
	URL        *httpurl.URL
	Header     *Header

	RemoteAddr string

	// ForwardedFor holds the parsed X-Forwarded-For chain in header order
	// (the originating client first), with ports stripped. ClientIP is ForwardedFor[0] if present,
	// else the socket peer address.
	ForwardedFor []string
	ClientIP     string

	Close bool // explicit "Connection: close" seen on this request

	// Body is set by the caller (parser + body reader) once the mode is
	// determined; nil for requests with no body.
	Body BodyReader

	// PostForm and Files are filled in by the connection before the handler
	// runs: PostForm from x-www-form-urlencoded or multipart/form-data
	// bodies, Files from multipart/form-data parts that carry a filename.
	PostForm map[string][]string
	Files    map[string][]*FileUpload

	// Cleanup, if set, MUST be invoked exactly once after the response for
	// this request has finished transmitting (success or failure), and
	// after any error handler has returned. The connection state machine
	// owns this invocation; handlers only set the callback.
	Cleanup func()
}

// Reset clears a Request for reuse from a pool. Header is reset in place
// (not reallocated) so its pooled storage is retained.
func (r *Request) Reset() {
	r.Method = ""
	r.ProtoMajor = 0
	r.ProtoMinor = 0
	r.URL = nil
	if r.Header != nil {
		r.Header.Reset()
	} else {
		r.Header = &Header{}
	}
	r.RemoteAddr = ""
	r.ForwardedFor = nil
	r.ClientIP = ""
	r.Close = false
	r.Body = nil
	r.PostForm = nil
	r.Files = nil
	r.Cleanup = nil
}

// HasBody reports whether the request declared a body (Content-Length > 0
// or Transfer-Encoding: chunked).
func (r *Request) HasBody() bool {
	return r.Body != nil
}

// IsHTTP10 reports whether the request line declared HTTP/1.0.
func (r *Request) IsHTTP10() bool {
	return r.ProtoMajor == 1 && r.ProtoMinor == 0
}

// ShouldKeepAlive reports whether the connection may serve another request
// after this one: HTTP/1.1 defaults to keep-alive unless Connection: close
// was seen; HTTP/1.0 requires an explicit Connection: keep-alive.
func (r *Request) ShouldKeepAlive() bool {
	if r.Close {
		return false
	}
	conn := strings.ToLower(r.Header.GetString("Connection"))
	if r.IsHTTP10() {
		return conn == "keep-alive"
	}
	return conn != "close"
}

// IfModifiedSince returns the raw If-Modified-Since header value, or "".
// Validation policy belongs to the handler; the core passes the string
// through.
func (r *Request) IfModifiedSince() string {
	return r.Header.GetString("If-Modified-Since")
}

// IfNoneMatch returns the raw If-None-Match header value, or "".
func (r *Request) IfNoneMatch() string {
	return r.Header.GetString("If-None-Match")
}

// parseForwardedFor splits a comma-separated X-Forwarded-For value into
// individual hops, stripping a trailing ":port" from each (IPv4 or
// bracketed IPv6).
func parseForwardedFor(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, stripPort(p))
	}
	return out
}

// stripPort removes a trailing ":port" from a host, IPv4 literal, or
// bracketed IPv6 literal.
func stripPort(hostport string) string {
	if strings.HasPrefix(hostport, "[") {
		if end := strings.IndexByte(hostport, ']'); end >= 0 {
			if end+1 < len(hostport) && hostport[end+1] == ':' {
				return hostport[:end+1]
			}
			return hostport
		}
		return hostport
	}
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 {
		if _, err := strconv.Atoi(hostport[i+1:]); err == nil {
			return hostport[:i]
		}
	}
	return hostport
}
