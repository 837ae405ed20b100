package wire

import (
	"bufio"
	"io"
	"sync"
)

// DefaultBufferSize is the size used for pooled bufio readers/writers.
const DefaultBufferSize = 4096

// Package-level sync.Pool instances behind Get*/Put* functions, so callers
// never construct these types directly on the hot path.
var (
	requestPool = sync.Pool{
		New: func() interface{} { return &Request{} },
	}
	headerPool = sync.Pool{
		New: func() interface{} { return &Header{} },
	}
	parserPool = sync.Pool{
		New: func() interface{} { return NewParser() },
	}
	bufioReaderPool = sync.Pool{
		New: func() interface{} { return bufio.NewReaderSize(nil, DefaultBufferSize) },
	}
	bufioWriterPool = sync.Pool{
		New: func() interface{} { return bufio.NewWriterSize(nil, DefaultBufferSize) },
	}
)

// GetRequest returns a reset Request from the pool.
func GetRequest() *Request {
	req := requestPool.Get().(*Request)
	req.Reset()
	return req
}

// PutRequest returns req to the pool. req must not be used afterward.
func PutRequest(req *Request) {
	if req == nil {
		return
	}
	req.Reset()
	requestPool.Put(req)
}

// GetHeader returns a reset Header from the pool.
func GetHeader() *Header {
	h := headerPool.Get().(*Header)
	h.Reset()
	return h
}

// PutHeader returns h to the pool. h must not be used afterward.
func PutHeader(h *Header) {
	if h == nil {
		return
	}
	h.Reset()
	headerPool.Put(h)
}

// GetParser returns a Parser ready for a fresh request.
func GetParser() *Parser {
	return parserPool.Get().(*Parser)
}

// PutParser returns p to the pool. p must not be used afterward.
func PutParser(p *Parser) {
	if p == nil {
		return
	}
	p.reset()
	parserPool.Put(p)
}

// GetBufioReader returns a pooled bufio.Reader wrapping r.
func GetBufioReader(r io.Reader) *bufio.Reader {
	br := bufioReaderPool.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

// PutBufioReader returns br to the pool. br must not be used afterward.
func PutBufioReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil)
	bufioReaderPool.Put(br)
}

// GetBufioWriter returns a pooled bufio.Writer wrapping w.
func GetBufioWriter(w io.Writer) *bufio.Writer {
	bw := bufioWriterPool.Get().(*bufio.Writer)
	bw.Reset(w)
	return bw
}

// PutBufioWriter flushes, resets and returns bw to the pool.
func PutBufioWriter(bw *bufio.Writer) {
	if bw == nil {
		return
	}
	bw.Flush()
	bw.Reset(nil)
	bufioWriterPool.Put(bw)
}
