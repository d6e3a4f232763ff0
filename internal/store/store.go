// Package store defines the document store consumed by the ingestion
// pipeline and the HTTP API, and provides a SQLite+Bleve reference backend.
package store

import (
	"context"
	"errors"
)

var (
	// ErrCollectionNotFound is returned when a named collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when creating a collection whose name is taken.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrDuplicateID is returned by Insert when any id is already present.
	ErrDuplicateID = errors.New("document id already exists")
)

// CollectionInfo describes a collection in listings.
type CollectionInfo struct {
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// GetResult holds documents fetched by id or offset, parallel slices keyed by IDs.
type GetResult struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

// QueryResult holds per-query-text result lists, parallel slices keyed by IDs.
type QueryResult struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Scores    [][]float64                `json:"scores"`
}

// Store is a named-collection document store.
type Store interface {
	ListCollections(ctx context.Context, limit, offset int) ([]CollectionInfo, error)
	CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error
	GetCollection(ctx context.Context, name string) (Collection, error)
	GetOrCreateCollection(ctx context.Context, name string) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	Close() error
}

// Collection holds id-addressable text records.
type Collection interface {
	Name() string
	Count(ctx context.Context) (int64, error)
	Peek(ctx context.Context, limit int) (*GetResult, error)

	// ExistingIDs returns which of the given ids are present. A nil ids
	// slice returns every id in the collection (snapshot, not transactional).
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)

	// Insert adds new records and fails with ErrDuplicateID when any id is
	// already present. documents and ids must have equal length; metadatas
	// may be nil or equal length.
	Insert(ctx context.Context, ids, documents []string, metadatas []map[string]interface{}) error

	// Update replaces documents and/or metadatas for existing ids; unknown
	// ids are silently ignored. documents and metadatas may each be nil.
	Update(ctx context.Context, ids, documents []string, metadatas []map[string]interface{}) error

	// Get fetches documents by id, or in offset order when ids is empty.
	// limit and offset apply on both paths; limit <= 0 means no limit.
	Get(ctx context.Context, ids []string, limit, offset int) (*GetResult, error)
	Delete(ctx context.Context, ids []string) error

	// Query returns up to nResults records per query text, best match first.
	Query(ctx context.Context, queryTexts []string, nResults int) (*QueryResult, error)

	// Modify renames the collection and/or replaces its metadata. Empty
	// newName keeps the current name; nil metadata keeps current metadata.
	Modify(ctx context.Context, newName string, metadata map[string]interface{}) error
}
