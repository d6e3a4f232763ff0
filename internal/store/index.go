package store

import (
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// indexedDoc is the shape stored in the Bleve index. Keys are
// "<collectionID>/<documentID>" so one index serves every collection.
type indexedDoc struct {
	Collection string `json:"collection"`
	Content    string `json:"content"`
}

// searchIndex wraps the Bleve index backing Collection.Query.
type searchIndex struct {
	index bleve.Index
}

// newSearchIndex creates or opens a Bleve index at path. An existing index
// is reused; if the mapping in code changes, remove the index directory to
// force a rebuild.
func newSearchIndex(path string) (*searchIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &searchIndex{index: index}, nil
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	contentMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so query terms
	// match the exact words of the stored document.
	contentMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", contentMapping)
	docMapping.AddFieldMappingsAt("collection", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &searchIndex{index: index}, nil
}

func indexKey(collectionID, docID string) string {
	return collectionID + "/" + docID
}

func (s *searchIndex) indexBatch(collectionID string, ids, documents []string) error {
	batch := s.index.NewBatch()
	for i, id := range ids {
		if err := batch.Index(indexKey(collectionID, id), indexedDoc{Collection: collectionID, Content: documents[i]}); err != nil {
			return err
		}
	}
	return s.index.Batch(batch)
}

func (s *searchIndex) deleteBatch(collectionID string, ids []string) error {
	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(indexKey(collectionID, id))
	}
	return s.index.Batch(batch)
}

type indexHit struct {
	id    string
	score float64
}

// search runs a match query over the collection's documents and returns up
// to limit hits, best first.
func (s *searchIndex) search(collectionID, query string, limit int) ([]indexHit, error) {
	match := bleve.NewMatchQuery(query)
	match.SetField("content")
	scope := bleve.NewTermQuery(collectionID)
	scope.SetField("collection")
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(scope, match))
	req.Size = limit

	results, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	hits := make([]indexHit, 0, len(results.Hits))
	prefix := collectionID + "/"
	for _, hit := range results.Hits {
		hits = append(hits, indexHit{id: strings.TrimPrefix(hit.ID, prefix), score: hit.Score})
	}
	return hits, nil
}

func (s *searchIndex) close() error {
	return s.index.Close()
}
