package ingest

import (
	"io"
	"os"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// encodingSampleSize is how many leading bytes are read for detection.
const encodingSampleSize = 4096

// DetectEncoding samples the first bytes of the file at path and returns the
// statistically most likely charset name, or fallback when detection is
// inconclusive or the file cannot be read.
func DetectEncoding(path, fallback string) string {
	f, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer f.Close()

	sample := make([]byte, encodingSampleSize)
	n, _ := io.ReadFull(f, sample)
	if n == 0 {
		return fallback
	}
	result, err := chardet.NewTextDetector().DetectBest(sample[:n])
	if err != nil || result == nil || result.Charset == "" {
		return fallback
	}
	return result.Charset
}

// decodeReader wraps r so that reads yield UTF-8, decoding from the named
// charset. Unknown charset names and UTF-8 itself pass the reader through
// unchanged; invalid bytes are replaced rather than failing the read.
func decodeReader(r io.Reader, charsetName string) io.Reader {
	name := strings.ToLower(strings.TrimSpace(charsetName))
	if name == "" || name == "utf-8" || name == "utf8" || name == "ascii" || name == "us-ascii" {
		return r
	}
	enc, err := htmlindex.Get(name)
	if err != nil || enc == nil || enc == unicode.UTF8 {
		return r
	}
	return enc.NewDecoder().Reader(r)
}
