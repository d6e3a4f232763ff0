// Package models defines core data structures for ingestion requests and document records.
package models

// FileKind classifies a candidate file by how its content is produced.
type FileKind int

const (
	// KindIgnored marks files with no recognized content extension.
	KindIgnored FileKind = iota
	// KindText marks .txt and .log files, chunked incrementally.
	KindText
	// KindCSV marks .csv files, streamed in row batches.
	KindCSV
)

// CandidateFile is a resolved file discovered during path expansion or
// archive extraction.
type CandidateFile struct {
	Path    string   // absolute path
	Archive string   // origin archive path, empty when the file was given directly
	Kind    FileKind
}

// Record is one id-addressable text record destined for a collection.
// IDs are derived deterministically from the source file stem and the
// chunk or row index, so re-ingesting the same file reproduces the same ids.
type Record struct {
	ID       string                 `json:"id"`
	Document string                 `json:"document"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IngestRequest describes one bulk file ingestion call.
type IngestRequest struct {
	Collection string                 `json:"collection"`
	Paths      []string               `json:"paths"`
	ChunkSize  int                    `json:"chunk_size"`
	Overlap    int                    `json:"overlap"`
	Encoding   string                 `json:"encoding"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"` // merged into every record's metadata
}

// SkippedInput records a non-fatal per-archive or per-file failure.
type SkippedInput struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// IngestResult reports the outcome of one ingestion call. Added counts only
// newly inserted records; re-ingested records become updates and are not
// counted. When the call fails mid-run, Added still reflects the records
// committed before the failing batch.
type IngestResult struct {
	Added   int            `json:"added"`
	Updated int            `json:"updated"`
	Skipped []SkippedInput `json:"skipped,omitempty"`
}
