package ingest

import "errors"

var (
	// ErrInvalidChunkParams is returned when chunk size or overlap would not
	// make forward progress (size <= 0, overlap < 0, or overlap >= size).
	ErrInvalidChunkParams = errors.New("invalid chunk parameters")

	// ErrOversizeArchive is returned for archives larger than the size cap.
	ErrOversizeArchive = errors.New("archive too large")

	// ErrUnsupportedArchive is returned for files that match no supported
	// archive format.
	ErrUnsupportedArchive = errors.New("unsupported archive type")

	// ErrNoVectorizableInput is returned when discovery, extraction, and
	// routing leave zero eligible files.
	ErrNoVectorizableInput = errors.New("no .csv, .txt, or .log files found in provided paths or extracted archives")
)
