package wire

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is a single, fully resolved (inclusive) byte range against a
// body of known total length.
type ByteRange struct {
	Start, End int64 // inclusive
}

// Length returns the number of bytes the range covers.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ParseRangeHeader parses a "Range: bytes=a-b,c-d" header value against a
// body of the given total length. Returns ok=false when there is
// no Range header, it does not use the bytes unit, or total is 0 (the
// caller should serve the full body in those cases). err is
// ErrRangeNotSatisfiable when any range in the set is malformed, or when
// no requested range is satisfiable against total; the caller must
// answer 416.
func ParseRangeHeader(value string, total int64) (ranges []ByteRange, ok bool, err error) {
	if value == "" {
		return nil, false, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(value, prefix) {
		return nil, false, nil
	}
	spec := value[len(prefix):]

	if total == 0 {
		// A range against an empty body serves the full body with 200, not 416.
		return nil, false, nil
	}

	var out []ByteRange
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dash := strings.IndexByte(part, '-')
		if dash < 0 {
			return nil, true, ErrRangeNotSatisfiable
		}
		startStr, endStr := part[:dash], part[dash+1:]

		var start, end int64
		switch {
		case startStr == "" && endStr != "":
			// suffix range: last N bytes
			n, perr := strconv.ParseInt(endStr, 10, 64)
			if perr != nil || n <= 0 {
				return nil, true, ErrRangeNotSatisfiable
			}
			if n > total {
				n = total
			}
			start = total - n
			end = total - 1
		case startStr != "" && endStr == "":
			s, perr := strconv.ParseInt(startStr, 10, 64)
			if perr != nil || s < 0 || s >= total {
				continue // unsatisfiable range in a set is simply dropped
			}
			start = s
			end = total - 1
		default:
			s, perr1 := strconv.ParseInt(startStr, 10, 64)
			e, perr2 := strconv.ParseInt(endStr, 10, 64)
			if perr1 != nil || perr2 != nil || s < 0 || e < s {
				return nil, true, ErrRangeNotSatisfiable
			}
			if s >= total {
				continue
			}
			if e >= total {
				e = total - 1
			}
			start, end = s, e
		}
		out = append(out, ByteRange{Start: start, End: end})
	}

	if len(out) == 0 {
		return nil, true, ErrRangeNotSatisfiable
	}
	return out, true, nil
}

// NewRangeBoundary generates a random hex boundary for multipart/byteranges
// responses.
func NewRangeBoundary() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to a fixed, still-valid boundary instead of
		// panicking mid-response.
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(buf[:])
}

// MultipartRangeHeader returns the Content-Range header line content for
// one part of a multipart/byteranges body.
func MultipartRangeHeader(r ByteRange, total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// MultipartByterangesLength computes the exact Content-Length of a
// multipart/byteranges body without re-rendering it, so the header can be
// set before the body is streamed.
func MultipartByterangesLength(boundary string, ranges []ByteRange, total int64) int64 {
	var n int64
	for _, r := range ranges {
		n += int64(len("--")) + int64(len(boundary)) + 2 // --BOUNDARY\r\n
		header := "Content-Range: " + MultipartRangeHeader(r, total)
		n += int64(len(header)) + 2 // header line + CRLF
		n += 2                      // blank line CRLF
		n += r.Length()
		n += 2 // trailing CRLF after part body
	}
	n += int64(len("--")) + int64(len(boundary)) + int64(len("--")) + 2 // closing delimiter
	return n
}
