package wire

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// partAccumulator buffers one multipart part's body, spilling to a temp
// file once it crosses the configured threshold. The spill goes through
// SpillPolicy so the temp directory is only ever created when a part
// actually crosses it.
type partAccumulator struct {
	policy    *SpillPolicy
	threshold int64
	mem       []byte
	file      *os.File
	path      string
	size      int64
}

func (a *partAccumulator) write(b []byte) error {
	if a.file != nil {
		n, err := a.file.Write(b)
		a.size += int64(n)
		return err
	}
	a.mem = append(a.mem, b...)
	a.size += int64(len(b))
	if a.size > a.threshold {
		f, path, err := a.policy.spillFile()
		if err != nil {
			return err
		}
		if _, err := f.Write(a.mem); err != nil {
			return err
		}
		a.file = f
		a.path = path
		a.mem = nil
	}
	return nil
}

// finalize drops the trailing trim bytes (the CRLF that precedes the
// boundary delimiter, which is framing, not content).
func (a *partAccumulator) finalize(trim int) error {
	if trim <= 0 {
		return nil
	}
	if a.file != nil {
		a.size -= int64(trim)
		if a.size < 0 {
			a.size = 0
		}
		return a.file.Truncate(a.size)
	}
	if trim > len(a.mem) {
		trim = len(a.mem)
	}
	a.mem = a.mem[:len(a.mem)-trim]
	a.size = int64(len(a.mem))
	return nil
}

func (a *partAccumulator) toString() string {
	if a.file != nil {
		a.file.Close()
		data, err := os.ReadFile(a.path)
		if err == nil {
			os.Remove(a.path)
			return string(data)
		}
		return ""
	}
	return string(a.mem)
}

func (a *partAccumulator) toFileUpload(field, filename, contentType string) *FileUpload {
	if a.file != nil {
		a.file.Close()
		return &FileUpload{FieldName: field, Filename: filename, ContentType: contentType, tempPath: a.path, Size: a.size}
	}
	return &FileUpload{FieldName: field, Filename: filename, ContentType: contentType, mem: a.mem, Size: a.size}
}

func (a *partAccumulator) discard() {
	if a.file != nil {
		a.file.Close()
		os.Remove(a.path)
	}
}

// ParseMultipart decodes a multipart/form-data body from br (which must
// already be positioned at the start of the body). boundary is the value
// extracted from the Content-Type parameter (without the leading "--").
// Parts whose Content-Disposition carries no "name" attribute are silently
// dropped.
func ParseMultipart(br *bufio.Reader, boundary string, policy *SpillPolicy, threshold int64) (map[string][]string, map[string][]*FileUpload, error) {
	delim := "--" + boundary
	delimFinal := delim + "--"

	for {
		line, rerr := br.ReadSlice('\n')
		if string(trimCRLF(line)) == delim {
			break
		}
		if rerr != nil {
			return nil, nil, ErrMultipartMalformed
		}
	}

	form := map[string][]string{}
	files := map[string][]*FileUpload{}

	for {
		headers := map[string]string{}
		for {
			line, rerr := br.ReadSlice('\n')
			t := trimCRLF(line)
			if len(t) == 0 {
				break
			}
			if idx := indexByte(t, ':'); idx >= 0 {
				name := strings.TrimSpace(string(t[:idx]))
				value := strings.TrimSpace(string(t[idx+1:]))
				headers[strings.ToLower(name)] = value
			}
			if rerr != nil {
				if rerr == io.EOF {
					return nil, nil, ErrMultipartMalformed
				}
				return nil, nil, rerr
			}
		}

		name, filename := parseContentDisposition(headers["content-disposition"])
		contentType := headers["content-type"]

		acc := &partAccumulator{policy: policy, threshold: threshold}
		lastCRLFLen := 0
		isFinal := false

		for {
			line, rerr := br.ReadSlice('\n')
			t := trimCRLF(line)
			ts := string(t)
			if ts == delim || ts == delimFinal {
				isFinal = ts == delimFinal
				if err := acc.finalize(lastCRLFLen); err != nil {
					return nil, nil, err
				}
				break
			}
			if err := acc.write(line); err != nil {
				return nil, nil, err
			}
			// t already has any trailing \r and/or \n stripped, so this
			// captures a trailing CRLF (or a lone \r still awaiting its \n)
			// even when ReadSlice stopped on a full buffer rather than on
			// '\n': a run of binary part content (e.g. an image upload)
			// longer than the buffer is not a malformed part.
			lastCRLFLen = len(line) - len(t)
			if rerr == bufio.ErrBufferFull {
				continue
			}
			if rerr != nil {
				return nil, nil, ErrMultipartMalformed
			}
		}

		if name == "" {
			acc.discard()
		} else if filename != "" {
			files[name] = append(files[name], acc.toFileUpload(name, filename, contentType))
		} else {
			form[name] = append(form[name], acc.toString())
		}

		if isFinal {
			break
		}
	}

	return form, files, nil
}

// parseContentDisposition extracts the "name" and "filename" attributes
// from a Content-Disposition: form-data; name="..."; filename="..." value.
func parseContentDisposition(v string) (name, filename string) {
	parts := strings.Split(v, ";")
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		switch key {
		case "name":
			name = val
		case "filename":
			filename = val
		}
	}
	return name, filename
}

// ExtractBoundary pulls the boundary parameter out of a multipart
// Content-Type header value.
func ExtractBoundary(contentType string) (string, error) {
	parts := strings.Split(contentType, ";")
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(strings.ToLower(p), "boundary=") {
			b := p[len("boundary="):]
			return strings.Trim(b, `"`), nil
		}
	}
	return "", ErrMultipartNoBoundary
}
