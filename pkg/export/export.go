// Package export writes point-in-time snapshots of a group's graph to
// Parquet files, one directory per record kind, for downstream analytics.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/reconcile/pkg/types"
)

// GraphSource provides the listings a snapshot exports. store.Store
// satisfies it.
type GraphSource interface {
	ListEntities(ctx context.Context, groupID, entityType string) ([]*types.Entity, error)
	ListFacts(ctx context.Context, groupID string) ([]*types.Fact, error)
	ListTriplets(ctx context.Context, groupID string) ([]*types.Triplet, error)
}

// SnapshotWriter writes entities, facts and triplets to Parquet files under
// a base directory. Each call produces a new timestamped file, so repeated
// snapshots never overwrite earlier ones.
type SnapshotWriter struct {
	baseDir string
}

// NewSnapshotWriter creates a writer and ensures the per-kind directories
// exist under baseDir.
func NewSnapshotWriter(baseDir string) (*SnapshotWriter, error) {
	for _, d := range []string{"entities", "facts", "triplets"} {
		if err := os.MkdirAll(filepath.Join(baseDir, d), 0o755); err != nil {
			return nil, fmt.Errorf("creating export directory %s: %w", d, err)
		}
	}
	return &SnapshotWriter{baseDir: baseDir}, nil
}

type parquetEntity struct {
	ID            int64      `parquet:"id"`
	Name          string     `parquet:"name"`
	CanonicalSlug string     `parquet:"canonical_slug"`
	EntityType    string     `parquet:"entity_type"`
	Description   string     `parquet:"description"`
	ResolvedID    *int64     `parquet:"resolved_id"`
	GroupID       string     `parquet:"group_id"`
	CreatedAt     *time.Time `parquet:"created_at"`
	UpdatedAt     *time.Time `parquet:"updated_at"`
}

type parquetFact struct {
	ID             int64      `parquet:"id"`
	Text           string     `parquet:"text"`
	Classification string     `parquet:"classification"`
	TemporalClass  string     `parquet:"temporal_class"`
	ValidAt        *time.Time `parquet:"valid_at"`
	InvalidAt      *time.Time `parquet:"invalid_at"`
	InvalidatedBy  *int64     `parquet:"invalidated_by"`
	Embedding      []float32  `parquet:"embedding"`
	TripletIDs     []int64    `parquet:"triplet_ids"`
	GroupID        string     `parquet:"group_id"`
	CreatedAt      *time.Time `parquet:"created_at"`
	UpdatedAt      *time.Time `parquet:"updated_at"`
}

type parquetTriplet struct {
	ID        int64    `parquet:"id"`
	SubjectID int64    `parquet:"subject_id"`
	Predicate string   `parquet:"predicate"`
	ObjectID  int64    `parquet:"object_id"`
	FactID    int64    `parquet:"fact_id"`
	Value     *float64 `parquet:"value"`
	GroupID   string   `parquet:"group_id"`
}

// WriteEntities writes the entities to a single timestamped Parquet file.
// Nothing is written for an empty slice.
func (w *SnapshotWriter) WriteEntities(ctx context.Context, entities []*types.Entity, groupID string) error {
	if len(entities) == 0 {
		return nil
	}

	records := make([]parquetEntity, 0, len(entities))
	for _, e := range entities {
		pe := parquetEntity{
			ID:            e.ID,
			Name:          e.Name,
			CanonicalSlug: e.CanonicalSlug,
			EntityType:    e.Type,
			Description:   e.Description,
			ResolvedID:    e.ResolvedID,
			GroupID:       e.GroupID,
		}
		if !e.CreatedAt.IsZero() {
			t := e.CreatedAt
			pe.CreatedAt = &t
		}
		if !e.UpdatedAt.IsZero() {
			t := e.UpdatedAt
			pe.UpdatedAt = &t
		}
		records = append(records, pe)
	}

	return parquet.WriteFile(w.path("entities", groupID), records)
}

// WriteFacts writes the facts to a single timestamped Parquet file. Nothing
// is written for an empty slice.
func (w *SnapshotWriter) WriteFacts(ctx context.Context, facts []*types.Fact, groupID string) error {
	if len(facts) == 0 {
		return nil
	}

	records := make([]parquetFact, 0, len(facts))
	for _, f := range facts {
		pf := parquetFact{
			ID:             f.ID,
			Text:           f.Text,
			Classification: string(f.Classification),
			TemporalClass:  string(f.TemporalClass),
			ValidAt:        f.ValidAt,
			InvalidAt:      f.InvalidAt,
			InvalidatedBy:  f.InvalidatedBy,
			Embedding:      f.Embedding,
			TripletIDs:     f.TripletIDs,
			GroupID:        f.GroupID,
		}
		if !f.CreatedAt.IsZero() {
			t := f.CreatedAt
			pf.CreatedAt = &t
		}
		if !f.UpdatedAt.IsZero() {
			t := f.UpdatedAt
			pf.UpdatedAt = &t
		}
		records = append(records, pf)
	}

	return parquet.WriteFile(w.path("facts", groupID), records)
}

// WriteTriplets writes the triplets to a single timestamped Parquet file.
// Nothing is written for an empty slice.
func (w *SnapshotWriter) WriteTriplets(ctx context.Context, triplets []*types.Triplet, groupID string) error {
	if len(triplets) == 0 {
		return nil
	}

	records := make([]parquetTriplet, 0, len(triplets))
	for _, t := range triplets {
		records = append(records, parquetTriplet{
			ID:        t.ID,
			SubjectID: t.SubjectID,
			Predicate: t.Predicate,
			ObjectID:  t.ObjectID,
			FactID:    t.FactID,
			Value:     t.Value,
			GroupID:   t.GroupID,
		})
	}

	return parquet.WriteFile(w.path("triplets", groupID), records)
}

// Snapshot lists a group's entities, facts and triplets from the source and
// writes all three kinds. Files already written stay on disk if a later
// kind fails.
func (w *SnapshotWriter) Snapshot(ctx context.Context, source GraphSource, groupID string) error {
	entities, err := source.ListEntities(ctx, groupID, "")
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	if err := w.WriteEntities(ctx, entities, groupID); err != nil {
		return fmt.Errorf("writing entities: %w", err)
	}

	facts, err := source.ListFacts(ctx, groupID)
	if err != nil {
		return fmt.Errorf("listing facts: %w", err)
	}
	if err := w.WriteFacts(ctx, facts, groupID); err != nil {
		return fmt.Errorf("writing facts: %w", err)
	}

	triplets, err := source.ListTriplets(ctx, groupID)
	if err != nil {
		return fmt.Errorf("listing triplets: %w", err)
	}
	if err := w.WriteTriplets(ctx, triplets, groupID); err != nil {
		return fmt.Errorf("writing triplets: %w", err)
	}

	return nil
}

func (w *SnapshotWriter) path(kind, groupID string) string {
	filename := fmt.Sprintf("%s_%s_%d.parquet", kind, groupID, time.Now().UnixNano())
	return filepath.Join(w.baseDir, kind, filename)
}

// Close implements a closer interface, currently no-op as we write
// file-per-call.
func (w *SnapshotWriter) Close() error {
	return nil
}
