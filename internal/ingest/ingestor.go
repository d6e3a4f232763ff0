package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atsume-io/atsume/internal/models"
	"github.com/atsume-io/atsume/internal/store"
	"go.uber.org/zap"
)

// Ingestor coordinates the ingestion pipeline: it expands input paths,
// extracts archive inputs into scratch directories, routes files by
// extension to the CSV or text path, and drives batched insert-vs-update
// reconciliation against one collection. The pipeline is sequential: one
// file, one batch, one store call at a time.
type Ingestor struct {
	store     store.Store
	extractor *Extractor
	batchSize int
	csvRows   int
	logger    *zap.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets a logger for per-file and per-archive events.
func WithLogger(l *zap.Logger) IngestorOption {
	return func(ing *Ingestor) { ing.logger = l }
}

// WithBatchSize overrides the reconciliation sub-batch ceiling.
func WithBatchSize(n int) IngestorOption {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.batchSize = n
		}
	}
}

// NewIngestor creates an ingestor writing to st.
func NewIngestor(st store.Store, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		store:     st,
		extractor: NewExtractor(),
		batchSize: DefaultBatchSize,
		csvRows:   DefaultCSVBatchRows,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestFiles resolves req.Paths into candidate files, extracts archive
// inputs, and upserts chunked records into req.Collection. Oversize,
// unsupported, or broken archives are skipped and reported in the result;
// a store failure aborts the call, returning the counts committed so far
// alongside the error. Scratch directories created for extraction are
// removed on every exit path.
func (ing *Ingestor) IngestFiles(ctx context.Context, req *models.IngestRequest) (*models.IngestResult, error) {
	if req.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if err := ValidateChunkParams(req.ChunkSize, req.Overlap); err != nil {
		return nil, err
	}

	result := &models.IngestResult{}

	var scratchDirs []string
	defer func() {
		for _, dir := range scratchDirs {
			if err := os.RemoveAll(dir); err != nil {
				ing.logger.Warn("failed to remove scratch dir", zap.String("dir", dir), zap.Error(err))
			}
		}
	}()

	// Discovery: expand paths, extracting archives into scratch dirs.
	var candidates []models.CandidateFile
	for _, path := range req.Paths {
		abs, err := filepath.Abs(expandUser(path))
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			continue // missing paths yield zero matches
		}
		switch {
		case !info.IsDir() && IsArchivePath(abs):
			dir, err := os.MkdirTemp("", "atsume-extract-")
			if err != nil {
				return result, fmt.Errorf("create scratch dir: %w", err)
			}
			scratchDirs = append(scratchDirs, dir)
			extracted, err := ing.extractor.Extract(abs, dir)
			if err != nil {
				ing.logger.Warn("skipping archive", zap.String("archive", abs), zap.Error(err))
				result.Skipped = append(result.Skipped, models.SkippedInput{Path: abs, Reason: err.Error()})
				continue
			}
			for _, f := range extracted {
				candidates = append(candidates, models.CandidateFile{Path: f, Archive: abs, Kind: KindForPath(f)})
			}
		case !info.IsDir():
			candidates = append(candidates, models.CandidateFile{Path: abs, Kind: KindForPath(abs)})
		default:
			for _, f := range ExpandPaths([]string{abs}, nil) {
				candidates = append(candidates, models.CandidateFile{Path: f, Kind: KindForPath(f)})
			}
		}
	}

	// Routing: keep only recognized content files.
	eligible := candidates[:0:0]
	for _, c := range candidates {
		if c.Kind != models.KindIgnored {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return result, fmt.Errorf("%w (collection %q)", ErrNoVectorizableInput, req.Collection)
	}

	coll, err := ing.store.GetOrCreateCollection(ctx, req.Collection)
	if err != nil {
		return result, fmt.Errorf("get or create collection %q: %w", req.Collection, err)
	}

	// Stems seed deterministic ids; two files sharing a stem would
	// reconcile into each other's records.
	stems := make(map[string]string)

	for _, cand := range eligible {
		stem := FileStem(cand.Path)
		if prev, ok := stems[stem]; ok && prev != cand.Path {
			ing.logger.Warn("file stem collision, records will overwrite",
				zap.String("stem", stem), zap.String("first", prev), zap.String("second", cand.Path))
		}
		stems[stem] = cand.Path

		switch cand.Kind {
		case models.KindCSV:
			err = ing.ingestCSV(ctx, coll, cand.Path, stem, req, result)
		case models.KindText:
			err = ing.ingestText(ctx, coll, cand.Path, stem, req, result)
		}
		if err != nil {
			return result, fmt.Errorf("ingest %s into %q: %w", cand.Path, req.Collection, err)
		}
		ing.logger.Debug("file ingested", zap.String("file", cand.Path), zap.String("collection", req.Collection))
	}

	ing.logger.Info("ingestion complete",
		zap.String("collection", req.Collection),
		zap.Int("files", len(eligible)),
		zap.Int("added", result.Added),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// ingestCSV streams row batches and reconciles each one as it is produced.
func (ing *Ingestor) ingestCSV(ctx context.Context, coll store.Collection, path, stem string, req *models.IngestRequest, result *models.IngestResult) error {
	return streamCSV(path, req.Encoding, stem, req.Metadata, ing.csvRows, func(records []models.Record) error {
		added, updated, err := Reconcile(ctx, coll, records, ing.batchSize)
		result.Added += added
		result.Updated += updated
		return err
	})
}

// ingestText detects the file encoding, chunks incrementally, and flushes
// accumulated records at the batch ceiling and at end of file.
func (ing *Ingestor) ingestText(ctx context.Context, coll store.Collection, path, stem string, req *models.IngestRequest, result *models.IngestResult) error {
	charsetName := DetectEncoding(path, req.Encoding)

	var pending []models.Record
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		added, updated, err := Reconcile(ctx, coll, pending, ing.batchSize)
		result.Added += added
		result.Updated += updated
		pending = pending[:0]
		return err
	}

	err := streamText(path, charsetName, stem, req.Metadata, req.ChunkSize, req.Overlap, func(rec models.Record) error {
		pending = append(pending, rec)
		if len(pending) >= ing.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}
