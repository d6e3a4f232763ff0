package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atsume-io/atsume/internal/models"
)

func baseRequest(paths ...string) *models.IngestRequest {
	return &models.IngestRequest{
		Collection: "docs",
		Paths:      paths,
		ChunkSize:  50,
		Overlap:    10,
		Encoding:   "utf-8",
	}
}

func TestIngestFiles_MixedDirectoryRoutesByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), "some text content here\n")
	writeFile(t, filepath.Join(dir, "events.log"), "event one\nevent two\n")
	writeFile(t, filepath.Join(dir, "people.csv"), "name\nalice\nbob\n")
	writeFile(t, filepath.Join(dir, "image.bin"), "\x00\x01\x02")

	st := newFakeStore()
	result, err := NewIngestor(st).IngestFiles(context.Background(), baseRequest(dir))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	// 1 chunk each for notes.txt and events.log, 2 CSV rows.
	if result.Added != 4 {
		t.Errorf("added = %d, want 4", result.Added)
	}
	if result.Updated != 0 || len(result.Skipped) != 0 {
		t.Errorf("updated=%d skipped=%v, want 0/none", result.Updated, result.Skipped)
	}

	coll := st.collections["docs"]
	for _, id := range []string{"notes_chunk_0", "events_chunk_0", "people_row_0", "people_row_1"} {
		if _, ok := coll.docs[id]; !ok {
			t.Errorf("expected record %s in the collection", id)
		}
	}
	if _, ok := coll.docs["image_chunk_0"]; ok {
		t.Error("unrecognized extension must not be ingested")
	}
}

func TestIngestFiles_ReingestUpdatesInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	writeFile(t, path, "original content\n")

	st := newFakeStore()
	ing := NewIngestor(st)
	if _, err := ing.IngestFiles(context.Background(), baseRequest(path)); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "revised content\n")
	result, err := ing.IngestFiles(context.Background(), baseRequest(path))
	if err != nil {
		t.Fatalf("re-ingest failed: %v", err)
	}
	if result.Added != 0 || result.Updated != 1 {
		t.Errorf("added=%d updated=%d, want 0/1", result.Added, result.Updated)
	}
	if got := st.collections["docs"].docs["notes_chunk_0"]; got != "revised content\n" {
		t.Errorf("document not updated: %q", got)
	}
}

func TestIngestFiles_NoVectorizableInput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "image.png"), "binary")

	st := newFakeStore()
	_, err := NewIngestor(st).IngestFiles(context.Background(), baseRequest(dir))
	if !errors.Is(err, ErrNoVectorizableInput) {
		t.Fatalf("expected ErrNoVectorizableInput, got %v", err)
	}
	if _, ok := st.collections["docs"]; ok {
		t.Error("collection must not be created when there is nothing to ingest")
	}
}

func TestIngestFiles_InvalidChunkParamsRejectedEagerly(t *testing.T) {
	req := baseRequest("/tmp")
	req.Overlap = req.ChunkSize

	_, err := NewIngestor(newFakeStore()).IngestFiles(context.Background(), req)
	if !errors.Is(err, ErrInvalidChunkParams) {
		t.Errorf("expected ErrInvalidChunkParams, got %v", err)
	}
}

func TestIngestFiles_MissingCollectionName(t *testing.T) {
	req := baseRequest("/tmp")
	req.Collection = ""

	if _, err := NewIngestor(newFakeStore()).IngestFiles(context.Background(), req); err == nil {
		t.Error("expected an error for empty collection name")
	}
}

func TestIngestFiles_ArchiveExpandedAndCleanedUp(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.zip")
	buildZip(t, archive, map[string]string{
		"readme.txt": "archived text content\n",
		"data.csv":   "word\nhello\n",
	})

	st := newFakeStore()
	result, err := NewIngestor(st).IngestFiles(context.Background(), baseRequest(archive))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Added != 2 {
		t.Errorf("added = %d, want 2", result.Added)
	}

	coll := st.collections["docs"]
	if _, ok := coll.docs["readme_chunk_0"]; !ok {
		t.Error("expected readme_chunk_0 from the archive")
	}
	if _, ok := coll.docs["data_row_0"]; !ok {
		t.Error("expected data_row_0 from the archive")
	}

	// Scratch extraction dirs are removed after ingestion.
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "atsume-extract-") {
			t.Errorf("leftover scratch dir: %s", e.Name())
		}
	}
}

func TestIngestFiles_BrokenArchiveSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.zip")
	writeFile(t, broken, "this is not a zip file")
	good := filepath.Join(dir, "good.txt")
	writeFile(t, good, "still ingested\n")

	st := newFakeStore()
	result, err := NewIngestor(st).IngestFiles(context.Background(), baseRequest(broken, good))
	if err != nil {
		t.Fatalf("a broken archive must not abort the run: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Path != broken {
		t.Errorf("expected broken archive in skipped list, got %v", result.Skipped)
	}
	if result.Added != 1 {
		t.Errorf("added = %d, want 1", result.Added)
	}
}

func TestIngestFiles_MissingPathsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "present\n")

	st := newFakeStore()
	result, err := NewIngestor(st).IngestFiles(context.Background(),
		baseRequest(filepath.Join(dir, "a.txt"), "/nonexistent/b.txt"))
	if err != nil {
		t.Fatalf("missing paths should be silently skipped: %v", err)
	}
	if result.Added != 1 {
		t.Errorf("added = %d, want 1", result.Added)
	}
}

func TestIngestFiles_MetadataTemplateApplied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	writeFile(t, path, "tagged content\n")

	st := newFakeStore()
	req := baseRequest(path)
	req.Metadata = map[string]interface{}{"project": "atsume"}
	if _, err := NewIngestor(st).IngestFiles(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	meta := st.collections["docs"].metas["notes_chunk_0"]
	if meta["project"] != "atsume" {
		t.Errorf("request metadata missing: %v", meta)
	}
	if meta["file"] == nil || meta["chunk_index"] != 0 {
		t.Errorf("per-chunk metadata missing: %v", meta)
	}
}
