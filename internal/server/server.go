// Package server provides the HTTP API for Atsume.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atsume-io/atsume/internal/config"
	"github.com/atsume-io/atsume/internal/ingest"
	"github.com/atsume-io/atsume/internal/store"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Atsume API.
type Server struct {
	store    store.Store
	ingestor *ingest.Ingestor
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(st store.Store, ingestor *ingest.Ingestor, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		store:    st,
		ingestor: ingestor,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Route("/api/v1/collections", func(r chi.Router) {
		r.Get("/", s.handleListCollections)
		r.Post("/", s.handleCreateCollection)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleCollectionInfo)
			r.Patch("/", s.handleModifyCollection)
			r.Delete("/", s.handleDeleteCollection)
			r.Get("/count", s.handleCollectionCount)
			r.Post("/documents", s.handleAddDocuments)
			r.Get("/documents", s.handleGetDocuments)
			r.Put("/documents", s.handleUpdateDocuments)
			r.Post("/documents/delete", s.handleDeleteDocuments)
			r.Post("/query", s.handleQuery)
			r.Post("/ingest", s.handleIngest)
		})
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
