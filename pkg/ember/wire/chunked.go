package wire

import (
	"bufio"
	"io"
)

// ChunkedReader decodes an RFC 7230 §4.1 chunked transfer-coded body: a
// sticky error, chunk-size line parsing that strips chunk-extensions, and
// a cap on both per-chunk and total body size. Trailers are read and
// discarded rather than exposed; nothing downstream needs them.
type ChunkedReader struct {
	r              *bufio.Reader
	bytesRemaining uint64
	err            error
	eof            bool
	maxChunkSize   uint64
	maxBodySize    uint64
	totalRead      uint64
}

// NewChunkedReader wraps r with a 16 MiB per-chunk cap and no cap on the
// total decoded body.
func NewChunkedReader(r *bufio.Reader) *ChunkedReader {
	return NewChunkedReaderWithLimits(r, 16<<20, 0)
}

// NewChunkedReaderWithLimits wraps r, capping any single chunk at
// maxChunkSize and the total decoded body at maxBodySize (0 = unlimited).
func NewChunkedReaderWithLimits(r *bufio.Reader, maxChunkSize, maxBodySize uint64) *ChunkedReader {
	return &ChunkedReader{r: r, maxChunkSize: maxChunkSize, maxBodySize: maxBodySize}
}

func (c *ChunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.eof {
		return 0, io.EOF
	}

	if c.bytesRemaining == 0 {
		size, err := c.readChunkHeader()
		if err != nil {
			c.err = err
			return 0, err
		}
		if size == 0 {
			if err := c.readTrailers(); err != nil {
				c.err = err
				return 0, err
			}
			c.eof = true
			return 0, io.EOF
		}
		c.bytesRemaining = size
	}

	toRead := uint64(len(p))
	if toRead > c.bytesRemaining {
		toRead = c.bytesRemaining
	}
	n, err := c.r.Read(p[:toRead])
	c.bytesRemaining -= uint64(n)
	c.totalRead += uint64(n)

	if c.maxBodySize > 0 && c.totalRead > c.maxBodySize {
		c.err = ErrBodyTooLarge
		return n, c.err
	}

	if err != nil && err != io.EOF {
		c.err = err
		return n, err
	}

	if c.bytesRemaining == 0 {
		if err := c.readCRLF(); err != nil {
			c.err = err
			return n, err
		}
	}

	return n, nil
}

func (c *ChunkedReader) readChunkHeader() (uint64, error) {
	line, err := c.r.ReadSlice('\n')
	if err != nil {
		if err == io.EOF {
			return 0, ErrUnexpectedEOF
		}
		return 0, err
	}
	line = trimCRLF(line)
	if i := indexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	if len(line) == 0 {
		return 0, ErrChunkedEncoding
	}

	var size uint64
	for _, b := range line {
		v, ok := hexDigit(b)
		if !ok {
			return 0, ErrChunkedEncoding
		}
		size = size<<4 | uint64(v)
	}
	if c.maxChunkSize > 0 && size > c.maxChunkSize {
		return 0, ErrBodyTooLarge
	}
	return size, nil
}

func (c *ChunkedReader) readCRLF() error {
	line, err := c.r.ReadSlice('\n')
	if err != nil {
		return err
	}
	if len(trimCRLF(line)) != 0 {
		return ErrChunkedEncoding
	}
	return nil
}

// readTrailers consumes trailer header lines (if any) up to and including
// the terminating blank line, discarding their content.
func (c *ChunkedReader) readTrailers() error {
	for {
		line, err := c.r.ReadSlice('\n')
		if err != nil {
			return err
		}
		if len(trimCRLF(line)) == 0 {
			return nil
		}
	}
}

// Close is a no-op; the underlying connection owns socket lifetime.
func (c *ChunkedReader) Close() error { return nil }

// TotalRead returns the number of decoded body bytes delivered so far.
func (c *ChunkedReader) TotalRead() uint64 { return c.totalRead }

func trimCRLF(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
