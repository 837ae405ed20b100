package wire

import (
	"bufio"
	"io"
	"strings"
	"testing"
)

func TestParseMultipartFormFieldsAndFile(t *testing.T) {
	raw := "" +
		"--B\r\n" +
		"Content-Disposition: form-data; name=\"title\"\r\n\r\n" +
		"hello\r\n" +
		"--B\r\n" +
		"Content-Disposition: form-data; name=\"upload\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"file contents\r\n" +
		"--B--\r\n"

	br := bufio.NewReader(strings.NewReader(raw))
	policy := &SpillPolicy{Threshold: 1 << 20}

	form, files, err := ParseMultipart(br, "B", policy, 1<<20)
	if err != nil {
		t.Fatalf("ParseMultipart failed: %v", err)
	}
	if got := form["title"]; len(got) != 1 || got[0] != "hello" {
		t.Fatalf("form[title] = %v, want [hello]", got)
	}
	up := files["upload"]
	if len(up) != 1 {
		t.Fatalf("files[upload] = %v, want one upload", up)
	}
	if string(up[0].Bytes()) != "file contents" {
		t.Fatalf("upload contents = %q, want %q", up[0].Bytes(), "file contents")
	}
	if up[0].Filename != "a.txt" || up[0].ContentType != "text/plain" {
		t.Fatalf("upload metadata = %+v", up[0])
	}
}

func TestParseMultipartDropsUnnamedPart(t *testing.T) {
	raw := "" +
		"--B\r\n" +
		"Content-Disposition: form-data\r\n\r\n" +
		"ignored\r\n" +
		"--B\r\n" +
		"Content-Disposition: form-data; name=\"kept\"\r\n\r\n" +
		"value\r\n" +
		"--B--\r\n"

	br := bufio.NewReader(strings.NewReader(raw))
	policy := &SpillPolicy{Threshold: 1 << 20}

	form, _, err := ParseMultipart(br, "B", policy, 1<<20)
	if err != nil {
		t.Fatalf("ParseMultipart failed: %v", err)
	}
	if len(form) != 1 || form["kept"][0] != "value" {
		t.Fatalf("form = %v, want only kept=value", form)
	}
}

func TestParseMultipartSpillsPastThreshold(t *testing.T) {
	body := strings.Repeat("x", 64)
	raw := "" +
		"--B\r\n" +
		"Content-Disposition: form-data; name=\"f\"; filename=\"big.bin\"\r\n\r\n" +
		body + "\r\n" +
		"--B--\r\n"

	br := bufio.NewReader(strings.NewReader(raw))
	dir := t.TempDir()
	policy := &SpillPolicy{Threshold: 8, Dir: dir}

	_, files, err := ParseMultipart(br, "B", policy, 8)
	if err != nil {
		t.Fatalf("ParseMultipart failed: %v", err)
	}
	up := files["f"][0]
	if up.InMemory() {
		t.Fatalf("expected upload to have spilled to disk past the threshold")
	}
	rc, err := up.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != body {
		t.Fatalf("spilled contents mismatch: got %d bytes, want %d", len(data), len(body))
	}
	up.RemoveTemp()
}

func TestExtractBoundary(t *testing.T) {
	b, err := ExtractBoundary(`multipart/form-data; boundary="B123"`)
	if err != nil || b != "B123" {
		t.Fatalf("ExtractBoundary = %q, %v", b, err)
	}
	if _, err := ExtractBoundary("multipart/form-data"); err != ErrMultipartNoBoundary {
		t.Fatalf("err = %v, want ErrMultipartNoBoundary", err)
	}
}
