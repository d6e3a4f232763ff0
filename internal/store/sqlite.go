package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// inClauseLimit keeps IN queries under SQLite's bound-variable ceiling.
const inClauseLimit = 500

// SQLiteStore implements Store on SQLite, with a Bleve index backing Query.
type SQLiteStore struct {
	db    *sql.DB
	index *searchIndex
}

// Open opens or creates the store database at dbPath and its search index at
// indexPath, initializing the schema. Parent directories are created if they
// do not exist.
func Open(dbPath, indexPath string) (*SQLiteStore, error) {
	for _, p := range []string{dbPath, indexPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
	}
	// foreign_keys is per-connection state, so it goes in the DSN where the
	// driver applies it to every pooled connection; journal_mode persists in
	// the database file, so a single statement is enough.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	index, err := newSearchIndex(indexPath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, index: index}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		collection_id TEXT NOT NULL,
		id TEXT NOT NULL,
		document TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection_id, id),
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database and the search index.
func (s *SQLiteStore) Close() error {
	if err := s.index.close(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

// ListCollections returns collections in creation order. limit <= 0 means no limit.
func (s *SQLiteStore) ListCollections(ctx context.Context, limit, offset int) ([]CollectionInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, metadata FROM collections ORDER BY created_at, name LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		var metadataJSON sql.NullString
		if err := rows.Scan(&info.Name, &metadataJSON); err != nil {
			return nil, err
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &info.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal collection metadata: %w", err)
			}
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// CreateCollection creates a collection; the name must be unused.
func (s *SQLiteStore) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, name).Scan(&exists)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	if err != sql.ErrNoRows {
		return err
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collections (id, name, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), name, string(metadataJSON), now, now)
	return err
}

// GetCollection returns a handle to an existing collection.
func (s *SQLiteStore) GetCollection(ctx context.Context, name string) (Collection, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM collections WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &sqliteCollection{store: s, id: id, name: name}, nil
}

// GetOrCreateCollection returns the named collection, creating it if absent.
func (s *SQLiteStore) GetOrCreateCollection(ctx context.Context, name string) (Collection, error) {
	coll, err := s.GetCollection(ctx, name)
	if err == nil {
		return coll, nil
	}
	if createErr := s.CreateCollection(ctx, name, nil); createErr != nil {
		return nil, createErr
	}
	return s.GetCollection(ctx, name)
}

// DeleteCollection removes the collection, its documents, and its index entries.
func (s *SQLiteStore) DeleteCollection(ctx context.Context, name string) error {
	coll, err := s.GetCollection(ctx, name)
	if err != nil {
		return err
	}
	sc := coll.(*sqliteCollection)
	existing, err := sc.ExistingIDs(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, sc.id); err != nil {
		return err
	}
	ids := make([]string, 0, len(existing))
	for id := range existing {
		ids = append(ids, id)
	}
	return s.index.deleteBatch(sc.id, ids)
}

// sqliteCollection is a handle to one collection's rows.
type sqliteCollection struct {
	store *SQLiteStore
	id    string
	name  string
}

func (c *sqliteCollection) Name() string { return c.name }

func (c *sqliteCollection) Count(ctx context.Context) (int64, error) {
	var count int64
	err := c.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection_id = ?`, c.id).Scan(&count)
	return count, err
}

func (c *sqliteCollection) Peek(ctx context.Context, limit int) (*GetResult, error) {
	if limit <= 0 {
		limit = 5
	}
	return c.Get(ctx, nil, limit, 0)
}

// ExistingIDs returns which of the given ids are present; nil ids returns all.
func (c *sqliteCollection) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	collect := func(rows *sql.Rows) error {
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			existing[id] = struct{}{}
		}
		return rows.Err()
	}

	if ids == nil {
		rows, err := c.store.db.QueryContext(ctx,
			`SELECT id FROM documents WHERE collection_id = ?`, c.id)
		if err != nil {
			return nil, err
		}
		if err := collect(rows); err != nil {
			return nil, err
		}
		return existing, nil
	}

	for start := 0; start < len(ids); start += inClauseLimit {
		end := start + inClauseLimit
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		query := `SELECT id FROM documents WHERE collection_id = ? AND id IN (` + placeholders(len(chunk)) + `)`
		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, c.id)
		for _, id := range chunk {
			args = append(args, id)
		}
		rows, err := c.store.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		if err := collect(rows); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Insert adds new documents; any already-present id fails the whole call.
func (c *sqliteCollection) Insert(ctx context.Context, ids, documents []string, metadatas []map[string]interface{}) error {
	if len(ids) == 0 {
		return fmt.Errorf("ids cannot be empty")
	}
	if len(ids) != len(documents) {
		return fmt.Errorf("number of ids (%d) must match number of documents (%d)", len(ids), len(documents))
	}
	if metadatas != nil && len(metadatas) != len(ids) {
		return fmt.Errorf("number of metadatas (%d) must match number of ids (%d)", len(metadatas), len(ids))
	}

	existing, err := c.ExistingIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		dups := make([]string, 0, len(existing))
		for _, id := range ids {
			if _, ok := existing[id]; ok {
				dups = append(dups, id)
			}
		}
		return fmt.Errorf("%w in collection %q: %s", ErrDuplicateID, c.name, strings.Join(dups, ", "))
	}

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now()
	for i, id := range ids {
		metadataJSON, err := marshalMetadata(metadatas, i)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection_id, id, document, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.id, id, documents[i], metadataJSON, now, now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return c.store.index.indexBatch(c.id, ids, documents)
}

// Update replaces documents and/or metadatas for the given ids. Ids not
// present in the collection are silently ignored.
func (c *sqliteCollection) Update(ctx context.Context, ids, documents []string, metadatas []map[string]interface{}) error {
	if len(ids) == 0 {
		return fmt.Errorf("ids cannot be empty")
	}
	if documents == nil && metadatas == nil {
		return fmt.Errorf("at least one of documents or metadatas must be provided")
	}
	if documents != nil && len(documents) != len(ids) {
		return fmt.Errorf("number of documents (%d) must match number of ids (%d)", len(documents), len(ids))
	}
	if metadatas != nil && len(metadatas) != len(ids) {
		return fmt.Errorf("number of metadatas (%d) must match number of ids (%d)", len(metadatas), len(ids))
	}

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now()
	var reindexIDs, reindexDocs []string
	for i, id := range ids {
		var res sql.Result
		switch {
		case documents != nil && metadatas != nil:
			metadataJSON, mErr := marshalMetadata(metadatas, i)
			if mErr != nil {
				_ = tx.Rollback()
				return mErr
			}
			res, err = tx.ExecContext(ctx,
				`UPDATE documents SET document = ?, metadata = ?, updated_at = ? WHERE collection_id = ? AND id = ?`,
				documents[i], metadataJSON, now, c.id, id)
		case documents != nil:
			res, err = tx.ExecContext(ctx,
				`UPDATE documents SET document = ?, updated_at = ? WHERE collection_id = ? AND id = ?`,
				documents[i], now, c.id, id)
		default:
			metadataJSON, mErr := marshalMetadata(metadatas, i)
			if mErr != nil {
				_ = tx.Rollback()
				return mErr
			}
			res, err = tx.ExecContext(ctx,
				`UPDATE documents SET metadata = ?, updated_at = ? WHERE collection_id = ? AND id = ?`,
				metadataJSON, now, c.id, id)
		}
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if documents != nil {
			if affected, _ := res.RowsAffected(); affected > 0 {
				reindexIDs = append(reindexIDs, id)
				reindexDocs = append(reindexDocs, documents[i])
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if len(reindexIDs) > 0 {
		return c.store.index.indexBatch(c.id, reindexIDs, reindexDocs)
	}
	return nil
}

// Get fetches documents by id, or by offset order when ids is empty. limit
// and offset apply on both paths; limit <= 0 means no limit.
func (c *sqliteCollection) Get(ctx context.Context, ids []string, limit, offset int) (*GetResult, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows *sql.Rows
	var err error
	if len(ids) == 0 {
		rows, err = c.store.db.QueryContext(ctx,
			`SELECT id, document, metadata FROM documents
			 WHERE collection_id = ? ORDER BY created_at, id LIMIT ? OFFSET ?`,
			c.id, limit, offset)
	} else {
		query := `SELECT id, document, metadata FROM documents
			 WHERE collection_id = ? AND id IN (` + placeholders(len(ids)) + `) ORDER BY created_at, id LIMIT ? OFFSET ?`
		args := make([]interface{}, 0, len(ids)+3)
		args = append(args, c.id)
		for _, id := range ids {
			args = append(args, id)
		}
		args = append(args, limit, offset)
		rows, err = c.store.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &GetResult{IDs: []string{}, Documents: []string{}, Metadatas: []map[string]interface{}{}}
	for rows.Next() {
		var id, document string
		var metadataJSON sql.NullString
		if err := rows.Scan(&id, &document, &metadataJSON); err != nil {
			return nil, err
		}
		meta, err := unmarshalMetadata(metadataJSON)
		if err != nil {
			return nil, err
		}
		result.IDs = append(result.IDs, id)
		result.Documents = append(result.Documents, document)
		result.Metadatas = append(result.Metadatas, meta)
	}
	return result, rows.Err()
}

// Delete removes documents by id; unknown ids are ignored.
func (c *sqliteCollection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("ids cannot be empty")
	}
	query := `DELETE FROM documents WHERE collection_id = ? AND id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, c.id)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := c.store.db.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return c.store.index.deleteBatch(c.id, ids)
}

// Query runs a keyword match per query text and resolves hits to documents.
func (c *sqliteCollection) Query(ctx context.Context, queryTexts []string, nResults int) (*QueryResult, error) {
	if len(queryTexts) == 0 {
		return nil, fmt.Errorf("query texts cannot be empty")
	}
	if nResults <= 0 {
		nResults = 5
	}
	result := &QueryResult{}
	for _, text := range queryTexts {
		hits, err := c.store.index.search(c.id, text, nResults)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(hits))
		scores := make([]float64, len(hits))
		for i, hit := range hits {
			ids[i] = hit.id
			scores[i] = hit.score
		}
		docs := make([]string, len(hits))
		metas := make([]map[string]interface{}, len(hits))
		if len(hits) > 0 {
			fetched, err := c.Get(ctx, ids, 0, 0)
			if err != nil {
				return nil, err
			}
			byID := make(map[string]int, len(fetched.IDs))
			for i, id := range fetched.IDs {
				byID[id] = i
			}
			for i, id := range ids {
				if j, ok := byID[id]; ok {
					docs[i] = fetched.Documents[j]
					metas[i] = fetched.Metadatas[j]
				}
			}
		}
		result.IDs = append(result.IDs, ids)
		result.Documents = append(result.Documents, docs)
		result.Metadatas = append(result.Metadatas, metas)
		result.Scores = append(result.Scores, scores)
	}
	return result, nil
}

// Modify renames the collection and/or replaces its metadata.
func (c *sqliteCollection) Modify(ctx context.Context, newName string, metadata map[string]interface{}) error {
	if newName == "" && metadata == nil {
		return fmt.Errorf("at least one of new name or metadata must be provided")
	}
	if newName != "" && newName != c.name {
		var exists int
		err := c.store.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, newName).Scan(&exists)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrCollectionExists, newName)
		}
		if err != sql.ErrNoRows {
			return err
		}
		if _, err := c.store.db.ExecContext(ctx,
			`UPDATE collections SET name = ?, updated_at = ? WHERE id = ?`, newName, time.Now(), c.id); err != nil {
			return err
		}
		c.name = newName
	}
	if metadata != nil {
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := c.store.db.ExecContext(ctx,
			`UPDATE collections SET metadata = ?, updated_at = ? WHERE id = ?`, string(metadataJSON), time.Now(), c.id); err != nil {
			return err
		}
	}
	return nil
}

func marshalMetadata(metadatas []map[string]interface{}, i int) (string, error) {
	if metadatas == nil || metadatas[i] == nil {
		return "", nil
	}
	b, err := json.Marshal(metadatas[i])
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(metadataJSON sql.NullString) (map[string]interface{}, error) {
	if !metadataJSON.Valid || metadataJSON.String == "" {
		return nil, nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(metadataJSON.String), &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return meta, nil
}
