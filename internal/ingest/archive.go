package ingest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

// MaxArchiveSize is the extraction size cap: archives strictly larger are
// rejected with ErrOversizeArchive.
const MaxArchiveSize = 15 * 1024 * 1024

// Extractor extracts supported archives (zip, tar, tar.gz/tgz, rar, 7z) into
// a scratch directory and returns the flattened list of extracted files.
type Extractor struct {
	// MaxSize caps accepted archive sizes in bytes.
	MaxSize int64
}

// NewExtractor returns an Extractor with the default size cap.
func NewExtractor() *Extractor {
	return &Extractor{MaxSize: MaxArchiveSize}
}

// Extract detects the archive format of archivePath by content signature
// (zip, tar, gzip-compressed tar) or extension (.rar, .7z), extracts it into
// destDir, and returns the extracted regular files as a flat list. Entries
// whose paths would escape destDir are skipped. Detection order: zip
// signature, tar signature, .rar extension, .7z extension.
func (e *Extractor) Extract(archivePath, destDir string) ([]string, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if info.Size() > e.MaxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (cap %d)", ErrOversizeArchive, archivePath, info.Size(), e.MaxSize)
	}

	switch {
	case isZip(archivePath):
		err = extractZip(archivePath, destDir)
	case isTar(archivePath):
		err = extractTarFile(archivePath, destDir)
	case strings.HasSuffix(strings.ToLower(archivePath), ".rar"):
		err = extractRar(archivePath, destDir)
	case strings.HasSuffix(strings.ToLower(archivePath), ".7z"):
		err = extract7z(archivePath, destDir)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, archivePath)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", archivePath, err)
	}

	return flattenDir(destDir)
}

// isZip checks the local-file-header signature.
func isZip(path string) bool {
	sig := readPrefix(path, 4)
	return bytes.HasPrefix(sig, []byte("PK\x03\x04")) || bytes.HasPrefix(sig, []byte("PK\x05\x06"))
}

// isTar recognizes plain tar (ustar magic at offset 257) and gzip-compressed tar.
func isTar(path string) bool {
	head := readPrefix(path, 265)
	if len(head) >= 2 && head[0] == 0x1f && head[1] == 0x8b {
		// gzip: peek at the decompressed stream for the tar magic
		f, err := os.Open(path)
		if err != nil {
			return false
		}
		defer f.Close()
		gz, err := gzip.NewReader(f)
		if err != nil {
			return false
		}
		defer gz.Close()
		inner := make([]byte, 265)
		n, _ := io.ReadFull(gz, inner)
		return hasTarMagic(inner[:n])
	}
	return hasTarMagic(head)
}

func hasTarMagic(head []byte) bool {
	return len(head) >= 262 && string(head[257:262]) == "ustar"
}

func readPrefix(path string, n int) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, n)
	read, _ := io.ReadFull(f, buf)
	return buf[:read]
}

// sanitizeEntryPath resolves an archive entry name against destDir and
// rejects entries that would land outside it (zip-slip).
func sanitizeEntryPath(destDir, name string) (string, bool) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) {
		return "", false
	}
	target := filepath.Join(destDir, cleaned)
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func extractZip(path, destDir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, ok := sanitizeEntryPath(destDir, f.Name)
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarFile(path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var src io.Reader = f
	head := readPrefix(path, 2)
	if len(head) == 2 && head[0] == 0x1f && head[1] == 0x8b {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		src = gz
	}
	return extractTar(src, destDir)
}

func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		target, ok := sanitizeEntryPath(destDir, hdr.Name)
		if !ok {
			continue
		}
		if err := writeEntry(target, tr); err != nil {
			return err
		}
	}
}

func extractRar(path, destDir string) error {
	rc, err := rardecode.OpenReader(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	for {
		hdr, err := rc.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.IsDir {
			continue
		}
		target, ok := sanitizeEntryPath(destDir, hdr.Name)
		if !ok {
			continue
		}
		if err := writeEntry(target, rc); err != nil {
			return err
		}
	}
}

func extract7z(path, destDir string) error {
	rc, err := sevenzip.OpenReader(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, ok := sanitizeEntryPath(destDir, f.Name)
		if !ok {
			continue
		}
		in, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, in)
		_ = in.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// flattenDir walks dir and returns every regular file beneath it.
func flattenDir(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
