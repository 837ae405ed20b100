package wire

import (
	"bytes"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// The default opt-in list for gzip content-coding: text/* only.
// application/octet-stream compresses only when explicitly listed.
// Callers may supply their own list via GzipConfig.
var defaultCompressiblePrefixes = []string{"text/"}

// GzipConfig controls when the response pipeline applies gzip
// content-coding.
type GzipConfig struct {
	// Enabled content types, matched by exact value or "prefix/" wildcard
	// (e.g. "text/" matches "text/plain", "text/html", ...).
	CompressibleTypes []string

	// Threshold is the minimum body size, in bytes, worth compressing.
	Threshold int64
}

// DefaultGzipConfig returns the default compressible-type list and size
// threshold.
func DefaultGzipConfig() GzipConfig {
	return GzipConfig{CompressibleTypes: append([]string(nil), defaultCompressiblePrefixes...), Threshold: 256}
}

// AcceptsGzip reports whether an Accept-Encoding header value names gzip.
func AcceptsGzip(acceptEncoding string) bool {
	for _, tok := range strings.Split(acceptEncoding, ",") {
		tok = strings.TrimSpace(tok)
		if i := strings.IndexByte(tok, ';'); i >= 0 {
			tok = strings.TrimSpace(tok[:i])
		}
		if strings.EqualFold(tok, "gzip") {
			return true
		}
	}
	return false
}

// IsCompressible reports whether contentType is eligible for gzip
// encoding under cfg.
func (cfg GzipConfig) IsCompressible(contentType string) bool {
	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))
	if ct == "application/octet-stream" {
		for _, p := range cfg.CompressibleTypes {
			if p == "application/octet-stream" {
				return true
			}
		}
		return false
	}
	for _, p := range cfg.CompressibleTypes {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(ct, p) {
				return true
			}
		} else if ct == p {
			return true
		}
	}
	return false
}

// GzipBytes compresses a fully-buffered body. Used when the response has a
// known length and the pipeline computes Content-Length rather than
// switching to chunked framing.
func GzipBytes(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GzipChunkWriter wraps a chunked response body writer with gzip encoding,
// used when the body is a lazy chunk sequence of unknown total length.
type GzipChunkWriter struct {
	zw *gzip.Writer
}

// NewGzipChunkWriter wraps dst (typically the chunked-transfer writer) so
// every Write call is gzip-compressed before the chunk framing sees it.
func NewGzipChunkWriter(dst interface{ Write([]byte) (int, error) }) *GzipChunkWriter {
	return &GzipChunkWriter{zw: gzip.NewWriter(dst)}
}

func (g *GzipChunkWriter) Write(p []byte) (int, error) { return g.zw.Write(p) }
func (g *GzipChunkWriter) Close() error                { return g.zw.Close() }
