package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/atsume-io/atsume/internal/store"
)

// fakeStore is an in-memory store.Store for pipeline tests. It mirrors the
// SQLite backend's contract: Insert rejects duplicate ids, Update ignores
// unknown ids, ExistingIDs(nil) returns everything.
type fakeStore struct {
	collections map[string]*fakeCollection
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: make(map[string]*fakeCollection)}
}

func (s *fakeStore) ListCollections(ctx context.Context, limit, offset int) ([]store.CollectionInfo, error) {
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	infos := make([]store.CollectionInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, store.CollectionInfo{Name: name})
	}
	return infos, nil
}

func (s *fakeStore) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	if _, ok := s.collections[name]; ok {
		return store.ErrCollectionExists
	}
	s.collections[name] = newFakeCollection(name)
	return nil
}

func (s *fakeStore) GetCollection(ctx context.Context, name string) (store.Collection, error) {
	coll, ok := s.collections[name]
	if !ok {
		return nil, store.ErrCollectionNotFound
	}
	return coll, nil
}

func (s *fakeStore) GetOrCreateCollection(ctx context.Context, name string) (store.Collection, error) {
	if coll, ok := s.collections[name]; ok {
		return coll, nil
	}
	coll := newFakeCollection(name)
	s.collections[name] = coll
	return coll, nil
}

func (s *fakeStore) DeleteCollection(ctx context.Context, name string) error {
	if _, ok := s.collections[name]; !ok {
		return store.ErrCollectionNotFound
	}
	delete(s.collections, name)
	return nil
}

func (s *fakeStore) Close() error { return nil }

type fakeCollection struct {
	name  string
	docs  map[string]string
	metas map[string]map[string]interface{}

	insertCalls int
	updateCalls int
	failInsert  error
}

func newFakeCollection(name string) *fakeCollection {
	return &fakeCollection{
		name:  name,
		docs:  make(map[string]string),
		metas: make(map[string]map[string]interface{}),
	}
}

func (c *fakeCollection) Name() string { return c.name }

func (c *fakeCollection) Count(ctx context.Context) (int64, error) {
	return int64(len(c.docs)), nil
}

func (c *fakeCollection) Peek(ctx context.Context, limit int) (*store.GetResult, error) {
	return c.Get(ctx, nil, limit, 0)
}

func (c *fakeCollection) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if ids == nil {
		for id := range c.docs {
			out[id] = struct{}{}
		}
		return out, nil
	}
	for _, id := range ids {
		if _, ok := c.docs[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (c *fakeCollection) Insert(ctx context.Context, ids, documents []string, metadatas []map[string]interface{}) error {
	c.insertCalls++
	if c.failInsert != nil {
		return c.failInsert
	}
	for _, id := range ids {
		if _, ok := c.docs[id]; ok {
			return fmt.Errorf("%w: %s", store.ErrDuplicateID, id)
		}
	}
	for i, id := range ids {
		c.docs[id] = documents[i]
		if metadatas != nil {
			c.metas[id] = metadatas[i]
		}
	}
	return nil
}

func (c *fakeCollection) Update(ctx context.Context, ids, documents []string, metadatas []map[string]interface{}) error {
	c.updateCalls++
	for i, id := range ids {
		if _, ok := c.docs[id]; !ok {
			continue
		}
		if documents != nil {
			c.docs[id] = documents[i]
		}
		if metadatas != nil {
			c.metas[id] = metadatas[i]
		}
	}
	return nil
}

func (c *fakeCollection) Get(ctx context.Context, ids []string, limit, offset int) (*store.GetResult, error) {
	res := &store.GetResult{}
	if ids == nil {
		ids = make([]string, 0, len(c.docs))
		for id := range c.docs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}
	for _, id := range ids {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		res.IDs = append(res.IDs, id)
		res.Documents = append(res.Documents, doc)
		res.Metadatas = append(res.Metadatas, c.metas[id])
	}
	if limit > 0 && len(res.IDs) > limit {
		res.IDs = res.IDs[:limit]
		res.Documents = res.Documents[:limit]
		res.Metadatas = res.Metadatas[:limit]
	}
	return res, nil
}

func (c *fakeCollection) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(c.docs, id)
		delete(c.metas, id)
	}
	return nil
}

func (c *fakeCollection) Query(ctx context.Context, queryTexts []string, nResults int) (*store.QueryResult, error) {
	res := &store.QueryResult{}
	for range queryTexts {
		res.IDs = append(res.IDs, nil)
		res.Documents = append(res.Documents, nil)
		res.Metadatas = append(res.Metadatas, nil)
		res.Scores = append(res.Scores, nil)
	}
	return res, nil
}

func (c *fakeCollection) Modify(ctx context.Context, newName string, metadata map[string]interface{}) error {
	if newName != "" {
		c.name = newName
	}
	return nil
}
