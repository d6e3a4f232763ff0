package ingest

import (
	"context"
	"fmt"

	"github.com/atsume-io/atsume/internal/models"
	"github.com/atsume-io/atsume/internal/store"
)

const (
	// DefaultBatchSize caps how many records go into one store call.
	DefaultBatchSize = 5000
	// DefaultCSVBatchRows is how many CSV rows are read per batch.
	DefaultCSVBatchRows = 1000
)

// upsertPlan partitions a batch against a snapshot of ids already present.
type upsertPlan struct {
	toInsert []models.Record
	toUpdate []models.Record
}

func partitionRecords(records []models.Record, existing map[string]struct{}) upsertPlan {
	var plan upsertPlan
	for _, rec := range records {
		if _, ok := existing[rec.ID]; ok {
			plan.toUpdate = append(plan.toUpdate, rec)
		} else {
			plan.toInsert = append(plan.toInsert, rec)
		}
	}
	return plan
}

// Reconcile splits records into sub-batches of at most batchSize, and for
// each one issues a single existence query, inserts the absent ids, and
// updates the present ones. The existence check covers exactly the batch's
// ids; it is a snapshot read, so concurrent ingestion of the same ids can
// race. Returns how many records were inserted and updated; on error the
// counts cover the batches committed before the failure.
func Reconcile(ctx context.Context, coll store.Collection, records []models.Record, batchSize int) (added, updated int, err error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		ids := make([]string, len(batch))
		for i, rec := range batch {
			ids[i] = rec.ID
		}
		existing, err := coll.ExistingIDs(ctx, ids)
		if err != nil {
			return added, updated, fmt.Errorf("existence check failed: %w", err)
		}

		plan := partitionRecords(batch, existing)
		if len(plan.toInsert) > 0 {
			insIDs, insDocs, insMetas := splitRecords(plan.toInsert)
			if err := coll.Insert(ctx, insIDs, insDocs, insMetas); err != nil {
				return added, updated, fmt.Errorf("insert failed: %w", err)
			}
			added += len(plan.toInsert)
		}
		if len(plan.toUpdate) > 0 {
			updIDs, updDocs, updMetas := splitRecords(plan.toUpdate)
			if err := coll.Update(ctx, updIDs, updDocs, updMetas); err != nil {
				return added, updated, fmt.Errorf("update failed: %w", err)
			}
			updated += len(plan.toUpdate)
		}
	}
	return added, updated, nil
}

func splitRecords(records []models.Record) (ids, docs []string, metas []map[string]interface{}) {
	ids = make([]string, len(records))
	docs = make([]string, len(records))
	metas = make([]map[string]interface{}, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		docs[i] = rec.Document
		metas[i] = rec.Metadata
	}
	return ids, docs, metas
}
