package wire

import (
	"io"
	"os"
	"sync"
)

// BodyReader is the interface the parser hands back to the application: a
// plain byte stream regardless of whether the wire framing underneath was
// length-delimited or chunked.
type BodyReader = io.Reader

// FileUpload is one multipart/form-data part that carried a filename
// attribute. Small parts stay in memory; parts exceeding the spill
// threshold are streamed to a temp file. The temp directory is never
// created unless something actually spills.
type FileUpload struct {
	FieldName   string
	Filename    string
	ContentType string
	Size        int64

	mem      []byte
	tempPath string
}

// InMemory reports whether the upload content lives in memory rather than
// on disk.
func (f *FileUpload) InMemory() bool {
	return f.tempPath == ""
}

// Open returns a fresh reader over the upload content. For in-memory
// uploads this is a cheap wrapper over the retained bytes; for spilled
// uploads it reopens the temp file by path so multiple reads are possible.
func (f *FileUpload) Open() (io.ReadCloser, error) {
	if f.InMemory() {
		return io.NopCloser(newBytesReader(f.mem)), nil
	}
	fh, err := os.Open(f.tempPath)
	if err != nil {
		return nil, err
	}
	return fh, nil
}

// Bytes returns the in-memory content, or nil if the upload spilled to disk.
func (f *FileUpload) Bytes() []byte {
	if !f.InMemory() {
		return nil
	}
	return f.mem
}

type bytesReader struct {
	b []byte
	i int
}

func newBytesReader(b []byte) *bytesReader { return &bytesReader{b: b} }

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

// SpillPolicy controls when multipart parts are promoted from memory to a
// temp file, and owns lazy creation of that temp directory.
type SpillPolicy struct {
	// Threshold is the part size, in bytes, above which content spills to
	// disk. Zero means "never keep in memory".
	Threshold int64

	// Dir is the parent directory for spilled files. It is created lazily,
	// on first spill, never eagerly.
	Dir string

	once     sync.Once
	dirErr   error
	resolved string
}

func (p *SpillPolicy) ensureDir() (string, error) {
	p.once.Do(func() {
		dir := p.Dir
		if dir == "" {
			dir = os.TempDir()
		}
		if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
			p.dirErr = mkErr
			return
		}
		p.resolved = dir
	})
	return p.resolved, p.dirErr
}

// spillFile creates a new uniquely named temp file under the policy's
// directory, creating the directory itself on first use only.
func (p *SpillPolicy) spillFile() (*os.File, string, error) {
	dir, err := p.ensureDir()
	if err != nil {
		return nil, "", err
	}
	f, err := os.CreateTemp(dir, "ember-upload-*")
	if err != nil {
		return nil, "", err
	}
	return f, f.Name(), nil
}

// RemoveTemp deletes a spilled upload's backing file. Callers invoke this
// from the request cleanup callback once the upload is no longer needed.
func (f *FileUpload) RemoveTemp() error {
	if f.tempPath == "" {
		return nil
	}
	return os.Remove(f.tempPath)
}
