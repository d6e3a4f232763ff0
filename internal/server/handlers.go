package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atsume-io/atsume/internal/ingest"
	"github.com/atsume-io/atsume/internal/models"
	"github.com/atsume-io/atsume/internal/store"
	"go.uber.org/zap"
)

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	infos, err := s.store.ListCollections(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list collections failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if infos == nil {
		infos = []store.CollectionInfo{}
	}
	s.respondJSON(w, http.StatusOK, infos)
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string                 `json:"name"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "collection name is required")
		return
	}
	if err := s.store.CreateCollection(r.Context(), req.Name, req.Metadata); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"name": req.Name, "status": "created"})
}

func (s *Server) handleCollectionInfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	coll, err := s.store.GetCollection(r.Context(), name)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	count, err := coll.Count(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sample, err := coll.Peek(r.Context(), 3)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":             name,
		"count":            count,
		"sample_documents": sample,
	})
}

func (s *Server) handleCollectionCount(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	coll, err := s.store.GetCollection(r.Context(), name)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	count, err := coll.Count(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) handleModifyCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		NewName  string                 `json:"new_name"`
		Metadata map[string]interface{} `json:"new_metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	coll, err := s.store.GetCollection(r.Context(), name)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if err := coll.Modify(r.Context(), req.NewName, req.Metadata); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"name": coll.Name(), "status": "modified"})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteCollection(r.Context(), name); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		IDs       []string                 `json:"ids"`
		Documents []string                 `json:"documents"`
		Metadatas []map[string]interface{} `json:"metadatas"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		s.respondError(w, http.StatusBadRequest, "documents cannot be empty")
		return
	}
	if len(req.IDs) != len(req.Documents) {
		s.respondError(w, http.StatusBadRequest, "number of ids must match number of documents")
		return
	}
	for _, id := range req.IDs {
		if strings.TrimSpace(id) == "" {
			s.respondError(w, http.StatusBadRequest, "ids cannot be empty strings")
			return
		}
	}
	coll, err := s.store.GetOrCreateCollection(r.Context(), name)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if err := coll.Insert(r.Context(), req.IDs, req.Documents, req.Metadatas); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"added": len(req.IDs)})
}

func (s *Server) handleGetDocuments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	coll, err := s.store.GetCollection(r.Context(), name)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}
	result, err := coll.Get(r.Context(), ids, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateDocuments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		IDs       []string                 `json:"ids"`
		Documents []string                 `json:"documents"`
		Metadatas []map[string]interface{} `json:"metadatas"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		s.respondError(w, http.StatusBadRequest, "ids cannot be empty")
		return
	}
	if req.Documents == nil && req.Metadatas == nil {
		s.respondError(w, http.StatusBadRequest, "at least one of documents or metadatas must be provided")
		return
	}
	coll, err := s.store.GetCollection(r.Context(), name)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if err := coll.Update(r.Context(), req.IDs, req.Documents, req.Metadatas); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"updated": len(req.IDs)})
}

func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		s.respondError(w, http.StatusBadRequest, "ids cannot be empty")
		return
	}
	coll, err := s.store.GetCollection(r.Context(), name)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if err := coll.Delete(r.Context(), req.IDs); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": len(req.IDs)})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		QueryTexts []string `json:"query_texts"`
		NResults   int      `json:"n_results"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.QueryTexts) == 0 {
		s.respondError(w, http.StatusBadRequest, "query_texts cannot be empty")
		return
	}
	coll, err := s.store.GetCollection(r.Context(), name)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	result, err := coll.Query(r.Context(), req.QueryTexts, req.NResults)
	if err != nil {
		s.logger.Error("query failed", zap.String("collection", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		Paths     []string               `json:"paths"`
		ChunkSize *int                   `json:"chunk_size"`
		Overlap   *int                   `json:"overlap"`
		Encoding  string                 `json:"encoding"`
		Metadata  map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "paths cannot be empty")
		return
	}

	ingestReq := &models.IngestRequest{
		Collection: name,
		Paths:      req.Paths,
		ChunkSize:  s.config.Ingest.ChunkSize,
		Overlap:    s.config.Ingest.OverlapOrDefault(),
		Encoding:   s.config.Ingest.Encoding,
		Metadata:   req.Metadata,
	}
	if req.ChunkSize != nil {
		ingestReq.ChunkSize = *req.ChunkSize
	}
	if req.Overlap != nil {
		ingestReq.Overlap = *req.Overlap
	}
	if req.Encoding != "" {
		ingestReq.Encoding = req.Encoding
	}

	result, err := s.ingestor.IngestFiles(r.Context(), ingestReq)
	if err != nil {
		s.logger.Error("ingestion failed", zap.String("collection", name), zap.Error(err))
		switch {
		case errors.Is(err, ingest.ErrInvalidChunkParams), errors.Is(err, ingest.ErrNoVectorizableInput):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrCollectionNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrCollectionExists), errors.Is(err, store.ErrDuplicateID):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("store error", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
