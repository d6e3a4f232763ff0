package ingest

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectEncoding_UTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "utf8.txt")
	writeFile(t, path, strings.Repeat("héllo wörld, grüße aus München. ", 20))

	got := DetectEncoding(path, "ascii")
	if !strings.EqualFold(got, "utf-8") {
		t.Errorf("expected utf-8, got %s", got)
	}
}

func TestDetectEncoding_FallbackOnMissingFile(t *testing.T) {
	if got := DetectEncoding("/nonexistent/file.txt", "latin-1"); got != "latin-1" {
		t.Errorf("expected fallback for missing file, got %s", got)
	}
}

func TestDetectEncoding_FallbackOnEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	writeFile(t, path, "")

	if got := DetectEncoding(path, "utf-8"); got != "utf-8" {
		t.Errorf("expected fallback for empty file, got %s", got)
	}
}

func TestDecodeReader_PassthroughForUTF8(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF-8", "utf8", "ascii", "US-ASCII", "no-such-charset"} {
		r := decodeReader(strings.NewReader("plain"), name)
		out, err := io.ReadAll(r)
		if err != nil || string(out) != "plain" {
			t.Errorf("charset %q: got %q, %v", name, out, err)
		}
	}
}

func TestDecodeReader_Latin1(t *testing.T) {
	// "café" in ISO-8859-1: é is a single 0xE9 byte.
	raw := []byte{'c', 'a', 'f', 0xE9}
	r := decodeReader(strings.NewReader(string(raw)), "ISO-8859-1")
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(out) != "café" {
		t.Errorf("got %q, want %q", out, "café")
	}
}
