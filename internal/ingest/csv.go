package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/atsume-io/atsume/internal/models"
)

// streamCSV reads the CSV at path in batches of batchRows data rows (the
// first row is treated as a header and skipped). Within each batch a column
// is considered textual when at least one of its non-empty values does not
// parse as a number; each row's textual column values are space-joined into
// one record, and rows whose blob comes out empty are dropped. Record ids use
// the row's index within the whole file, so re-reading the file reproduces
// the same ids. emit is called once per batch, in file order.
func streamCSV(path, charsetName, stem string, baseMeta map[string]interface{}, batchRows int, emit func([]models.Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	if batchRows <= 0 {
		batchRows = DefaultCSVBatchRows
	}

	cr := csv.NewReader(decodeReader(f, charsetName))
	cr.FieldsPerRecord = -1

	// Header row
	if _, err := cr.Read(); err == io.EOF {
		return nil
	} else if err != nil {
		return fmt.Errorf("read csv header %s: %w", path, err)
	}

	rowIdx := 0
	for {
		rows := make([][]string, 0, batchRows)
		for len(rows) < batchRows {
			row, err := cr.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("read csv %s: %w", path, err)
			}
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			return nil
		}

		textCols := textualColumns(rows)
		records := make([]models.Record, 0, len(rows))
		for _, row := range rows {
			idx := rowIdx
			rowIdx++
			blob := joinTextColumns(row, textCols)
			if blob == "" {
				continue
			}
			meta := mergeMetadata(baseMeta, map[string]interface{}{"file": path, "row": idx})
			records = append(records, models.Record{
				ID:       fmt.Sprintf("%s_row_%d", stem, idx),
				Document: blob,
				Metadata: meta,
			})
		}
		if len(records) > 0 {
			if err := emit(records); err != nil {
				return err
			}
		}
		if len(rows) < batchRows {
			return nil
		}
	}
}

// textualColumns reports, per column index, whether the column holds text:
// a column is textual when any non-empty value in the batch fails numeric
// parsing. Columns that are entirely empty or entirely numeric are excluded.
func textualColumns(rows [][]string) map[int]bool {
	cols := make(map[int]bool)
	for _, row := range rows {
		for i, val := range row {
			v := strings.TrimSpace(val)
			if v == "" {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				cols[i] = true
			}
		}
	}
	return cols
}

func joinTextColumns(row []string, textCols map[int]bool) string {
	var parts []string
	for i, val := range row {
		if !textCols[i] {
			continue
		}
		v := strings.TrimSpace(val)
		if v == "" {
			continue
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

// mergeMetadata overlays extra onto a copy of base; extra keys win.
func mergeMetadata(base, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
