package ingest

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func buildZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	// Deterministic entry order
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func buildTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content := []byte(entries[name])
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtract_Zip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "data.zip")
	buildZip(t, archive, map[string]string{
		"a.txt":       "alpha",
		"sub/b.log":   "beta",
		"sub/c/d.csv": "x,y",
	})

	dest := t.TempDir()
	files, err := NewExtractor().Extract(archive, dest)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 extracted files, got %d: %v", len(files), files)
	}
	// Flattened list contains only files, all under dest
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			t.Errorf("extracted file missing: %s", f)
			continue
		}
		if info.IsDir() {
			t.Errorf("flattened list contains a directory: %s", f)
		}
		rel, err := filepath.Rel(dest, f)
		if err != nil || rel == ".." {
			t.Errorf("file escaped dest dir: %s", f)
		}
	}
}

func TestExtract_TarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "data.tgz")
	buildTarGz(t, archive, map[string]string{
		"one.txt":     "first",
		"sub/two.txt": "second",
	})

	dest := t.TempDir()
	files, err := NewExtractor().Extract(archive, dest)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 extracted files, got %d: %v", len(files), files)
	}
	content, err := os.ReadFile(filepath.Join(dest, "one.txt"))
	if err != nil || string(content) != "first" {
		t.Errorf("unexpected content for one.txt: %q, %v", content, err)
	}
}

func TestExtract_ZipSlipEntrySkipped(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	buildZip(t, archive, map[string]string{
		"../evil.txt": "escape",
		"ok.txt":      "fine",
	})

	dest := t.TempDir()
	files, err := NewExtractor().Extract(archive, dest)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 extracted file (traversal entry skipped), got %d: %v", len(files), files)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry was written outside the destination")
	}
}

func TestExtract_OversizeBoundary(t *testing.T) {
	dir := t.TempDir()

	// Sparse files hit the size check without writing 15 MiB of data.
	atCap := filepath.Join(dir, "atcap.zip")
	if err := os.WriteFile(atCap, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(atCap, MaxArchiveSize); err != nil {
		t.Fatal(err)
	}
	overCap := filepath.Join(dir, "overcap.zip")
	if err := os.WriteFile(overCap, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(overCap, MaxArchiveSize+1); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor()

	// Exactly at the cap passes the size check (and then fails type
	// detection, since the file is not a real archive).
	_, err := e.Extract(atCap, t.TempDir())
	if errors.Is(err, ErrOversizeArchive) {
		t.Errorf("archive at exactly the cap must not be rejected as oversize: %v", err)
	}
	if !errors.Is(err, ErrUnsupportedArchive) {
		t.Errorf("expected ErrUnsupportedArchive for zero-filled file, got %v", err)
	}

	_, err = e.Extract(overCap, t.TempDir())
	if !errors.Is(err, ErrOversizeArchive) {
		t.Errorf("expected ErrOversizeArchive one byte over the cap, got %v", err)
	}
}

func TestExtract_UnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bz2")
	writeFile(t, path, "not an archive")

	_, err := NewExtractor().Extract(path, t.TempDir())
	if !errors.Is(err, ErrUnsupportedArchive) {
		t.Errorf("expected ErrUnsupportedArchive, got %v", err)
	}
}

func TestExtract_DetectionByContentNotExtension(t *testing.T) {
	dir := t.TempDir()
	// A zip with a misleading extension is still detected by signature.
	archive := filepath.Join(dir, "data.tar")
	buildZip(t, archive, map[string]string{"a.txt": "alpha"})

	files, err := NewExtractor().Extract(archive, t.TempDir())
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 file, got %v", files)
	}
}
