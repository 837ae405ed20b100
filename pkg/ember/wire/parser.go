package wire

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/embercore/ember/pkg/ember/httpurl"
)

// Limits bounds the sizes the Parser enforces while reading a preamble.
// Zero fields fall back to the package defaults.
type Limits struct {
	MaxRequestLineSize int
	MaxHeadersSize     int
	MaxChunkSize       uint64
	MaxBodySize        uint64
}

func (l Limits) withDefaults() Limits {
	if l.MaxRequestLineSize == 0 {
		l.MaxRequestLineSize = DefaultMaxRequestLineSize
	}
	if l.MaxHeadersSize == 0 {
		l.MaxHeadersSize = DefaultMaxSizeHeaders
	}
	if l.MaxChunkSize == 0 {
		l.MaxChunkSize = 16 << 20
	}
	if l.MaxBodySize == 0 {
		l.MaxBodySize = DefaultMaxSizePostContent
	}
	return l
}

// Parser decodes one HTTP/1.1 (or 1.0) request preamble at a time from a
// persistent *bufio.Reader, then wires up the appropriate body reader. It
// reads directly off the connection's bufio.Reader line by line rather
// than accumulating into a private scratch buffer: requests on a
// connection are strictly sequential (no pipelining lookahead), so no
// extra buffering layer is needed.
type Parser struct{}

// NewParser returns a ready-to-use Parser. Parser carries no per-request
// state, so instances are trivially poolable (see pool.go) and reusable
// across goroutines are not required since each connection owns one.
func NewParser() *Parser { return &Parser{} }

func (p *Parser) reset() {}

// Parse reads one full request preamble from br and returns a populated
// Request with its body reader wired up. remoteIP is the socket peer
// address (used as ClientIP when no X-Forwarded-For is present).
func (p *Parser) Parse(br *bufio.Reader, remoteIP string, limits Limits) (*Request, error) {
	limits = limits.withDefaults()

	line, err := readLineCapped(br, limits.MaxRequestLineSize, ErrRequestLineTooLarge)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, ErrInvalidRequestLine
	}

	method, target, major, minor, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	req := GetRequest()
	req.Method = internMethod(method)
	req.ProtoMajor = major
	req.ProtoMinor = minor
	req.RemoteAddr = remoteIP

	total := len(line)
	var (
		hasContentLength bool
		contentLength    int64
		hasTE            bool
		chunked          bool
		hasHost          bool
		closeConn        bool
		host             string
	)

	for {
		hline, herr := readLineCapped(br, DefaultMaxHeaderLineSize, ErrHeaderTooLarge)
		if herr != nil {
			PutRequest(req)
			return nil, herr
		}
		total += len(hline) + 2
		if total > limits.MaxHeadersSize {
			PutRequest(req)
			return nil, ErrHeadersTooLarge
		}
		if len(hline) == 0 {
			break
		}

		name, value, perr := splitHeaderLine(hline)
		if perr != nil {
			PutRequest(req)
			return nil, perr
		}

		switch {
		case bytesEqualFold(name, headerContentLength):
			n, cerr := parseContentLength(value)
			if cerr != nil {
				PutRequest(req)
				return nil, cerr
			}
			if hasContentLength && n != contentLength {
				PutRequest(req)
				return nil, ErrDuplicateContentLength
			}
			hasContentLength = true
			contentLength = n
		case bytesEqualFold(name, headerTransferEncoding):
			hasTE = true
			if strings.Contains(strings.ToLower(string(value)), "chunked") {
				chunked = true
			}
		case bytesEqualFold(name, headerHost):
			if hasHost {
				PutRequest(req)
				return nil, ErrDuplicateHost
			}
			hasHost = true
			host = string(value)
		case bytesEqualFold(name, headerConnection):
			if strings.Contains(strings.ToLower(string(value)), "close") {
				closeConn = true
			}
		}

		if err := req.Header.Add(name, value); err != nil {
			PutRequest(req)
			return nil, err
		}
	}

	if !hasHost && major == 1 && minor == 1 {
		PutRequest(req)
		return nil, ErrMissingHost
	}
	if hasContentLength && hasTE {
		PutRequest(req)
		return nil, ErrContentLengthWithTransferEncoding
	}
	if hasContentLength && uint64(contentLength) > limits.MaxBodySize {
		PutRequest(req)
		return nil, ErrBodyTooLarge
	}

	u, uerr := httpurl.NewFromTarget(host, string(target))
	if uerr != nil {
		PutRequest(req)
		return nil, ErrInvalidPath
	}
	req.URL = u
	req.Close = closeConn

	req.ForwardedFor = parseForwardedFor(req.Header.GetString("X-Forwarded-For"))
	if len(req.ForwardedFor) > 0 {
		req.ClientIP = req.ForwardedFor[0]
	} else {
		req.ClientIP = remoteIP
	}

	switch {
	case chunked:
		req.Body = NewChunkedReaderWithLimits(br, limits.MaxChunkSize, limits.MaxBodySize)
	case hasContentLength && contentLength > 0:
		req.Body = io.LimitReader(br, contentLength)
	default:
		req.Body = nil
	}

	return req, nil
}

// readLineCapped reads one CRLF- or LF-terminated line from br, stripping
// the terminator, and fails with overflowErr if the line (including
// terminator) would exceed max bytes.
func readLineCapped(br *bufio.Reader, max int, overflowErr error) ([]byte, error) {
	var acc []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			acc = append(acc, chunk...)
			if len(acc) > max {
				return nil, overflowErr
			}
			continue
		}
		if err != nil {
			if len(chunk) == 0 {
				return nil, ErrUnexpectedEOF
			}
			acc = append(acc, chunk...)
			break
		}
		acc = append(acc, chunk...)
		break
	}
	if len(acc) > max {
		return nil, overflowErr
	}
	return trimCRLF(acc), nil
}

// parseRequestLine splits "METHOD SP TARGET SP VERSION" and validates each
// component.
func parseRequestLine(line []byte) (method, target []byte, major, minor int, err error) {
	sp1 := indexByte(line, ' ')
	if sp1 < 0 {
		return nil, nil, 0, 0, ErrInvalidRequestLine
	}
	method = line[:sp1]
	if !ValidMethodToken(method) {
		return nil, nil, 0, 0, ErrInvalidMethod
	}

	rest := line[sp1+1:]
	sp2 := indexByte(rest, ' ')
	if sp2 < 0 {
		return nil, nil, 0, 0, ErrInvalidRequestLine
	}
	target = rest[:sp2]
	if len(target) == 0 || (target[0] != '/' && target[0] != '*') {
		return nil, nil, 0, 0, ErrInvalidPath
	}

	proto := rest[sp2+1:]
	switch {
	case bytesEqualFold(proto, http11Bytes):
		major, minor = 1, 1
	case bytesEqualFold(proto, http10Bytes):
		major, minor = 1, 0
	default:
		return nil, nil, 0, 0, ErrInvalidProtocol
	}

	return method, target, major, minor, nil
}

// splitHeaderLine splits "Name: value" and validates whitespace rules:
// no space/tab before the colon (a classic request-smuggling vector), and
// values are trimmed of surrounding OWS.
func splitHeaderLine(line []byte) (name, value []byte, err error) {
	idx := indexByte(line, ':')
	if idx <= 0 {
		return nil, nil, ErrInvalidHeader
	}
	name = line[:idx]
	for _, b := range name {
		if b == ' ' || b == '\t' {
			return nil, nil, ErrInvalidHeader
		}
	}
	value = trimOWS(line[idx+1:])
	return name, value, nil
}

func trimOWS(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}

func parseContentLength(value []byte) (int64, error) {
	for _, b := range value {
		if b < '0' || b > '9' {
			return 0, ErrInvalidContentLength
		}
	}
	n, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return 0, ErrInvalidContentLength
	}
	return n, nil
}
