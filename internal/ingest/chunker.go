// Package ingest implements the file ingestion pipeline: path expansion,
// bounded archive extraction, encoding detection, CSV row streaming,
// overlapping text chunking, and insert-vs-update reconciliation against a
// document store collection.
package ingest

import "fmt"

// ValidateChunkParams rejects parameter combinations that would produce
// degenerate chunk sequences. overlap == size would stall the cursor, so it
// is rejected along with non-positive sizes and negative overlaps.
func ValidateChunkParams(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkParams, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidChunkParams, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: overlap (%d) must be smaller than chunk size (%d)", ErrInvalidChunkParams, overlap, size)
	}
	return nil
}

// Chunk splits text into ordered windows of at most size runes, each window
// after the first starting overlap runes before the previous window's end.
// The result depends only on the inputs. An empty text yields no chunks.
func Chunk(text string, size, overlap int) ([]string, error) {
	if err := ValidateChunkParams(size, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	length := len(runes)
	var chunks []string
	start := 0
	for start < length {
		end := start + size
		if end > length {
			end = length
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == length {
			break
		}
		start = end - overlap
	}
	return chunks, nil
}
