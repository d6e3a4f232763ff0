package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
debug: true
server:
  host: 0.0.0.0
  port: 9090
store:
  database_path: /tmp/atsume/docs.db
  index_path: /tmp/atsume/index.bleve
ingest:
  chunk_size: 1500
  overlap: 0
  encoding: latin-1
watch:
  directories:
    - /tmp/inbox
  collection: inbox
  extensions: [".md"]
  recursive: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.Debug {
		t.Error("debug flag lost")
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("server config: %+v", cfg.Server)
	}
	if cfg.Ingest.ChunkSize != 1500 || cfg.Ingest.Encoding != "latin-1" {
		t.Errorf("ingest config: %+v", cfg.Ingest)
	}
	// Explicit zero overlap must survive defaulting.
	if cfg.Ingest.OverlapOrDefault() != 0 {
		t.Errorf("overlap = %d, want explicit 0", cfg.Ingest.OverlapOrDefault())
	}
	if cfg.Watch.Collection != "inbox" || cfg.Watch.RecursiveOrDefault() {
		t.Errorf("watch config: %+v", cfg.Watch)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "debug: false\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Store.DatabasePath == "" || cfg.Store.IndexPath == "" {
		t.Errorf("store paths not defaulted: %+v", cfg.Store)
	}
	if cfg.Ingest.ChunkSize != 2000 {
		t.Errorf("chunk size default = %d, want 2000", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.OverlapOrDefault() != 200 {
		t.Errorf("overlap default = %d, want 200", cfg.Ingest.OverlapOrDefault())
	}
	if cfg.Ingest.Encoding != "utf-8" {
		t.Errorf("encoding default = %s", cfg.Ingest.Encoding)
	}
	if len(cfg.Watch.Extensions) != 3 {
		t.Errorf("watch extension defaults: %v", cfg.Watch.Extensions)
	}
	if !cfg.Watch.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
}

func TestLoad_RelativePathsResolveAgainstConfigDir(t *testing.T) {
	path := writeConfig(t, `
store:
  database_path: ./data/docs.db
  index_path: ./data/index.bleve
watch:
  directories:
    - ./inbox
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	dir := filepath.Dir(path)
	if cfg.Store.DatabasePath != filepath.Join(dir, "data/docs.db") {
		t.Errorf("database path = %s", cfg.Store.DatabasePath)
	}
	if cfg.Watch.Directories[0] != filepath.Join(dir, "inbox") {
		t.Errorf("watch dir = %s", cfg.Watch.Directories[0])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping\n")
	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}
