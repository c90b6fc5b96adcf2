package export_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/reconcile/pkg/export"
	"github.com/soundprediction/reconcile/pkg/store"
	"github.com/soundprediction/reconcile/pkg/types"
)

func filesIn(t *testing.T, dir, pattern string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)
	return matches
}

func TestNewSnapshotWriterCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	_, err := export.NewSnapshotWriter(dir)
	require.NoError(t, err)

	for _, sub := range []string{"entities", "facts", "triplets"} {
		assert.DirExists(t, filepath.Join(dir, sub))
	}
}

func TestWriteFactsProducesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	w, err := export.NewSnapshotWriter(dir)
	require.NoError(t, err)

	validAt := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	invalidatedBy := int64(3)
	facts := []*types.Fact{
		{
			ID:             1,
			Text:           "Maria works at Globex",
			Classification: types.ClassificationFact,
			TemporalClass:  types.TemporalDynamic,
			ValidAt:        &validAt,
			InvalidatedBy:  &invalidatedBy,
			Embedding:      []float32{0.1, 0.2},
			TripletIDs:     []int64{10},
			GroupID:        "g1",
			CreatedAt:      time.Now().UTC(),
		},
		{
			ID:             2,
			Text:           "Water boils at 100C",
			Classification: types.ClassificationFact,
			TemporalClass:  types.TemporalAtemporal,
			GroupID:        "g1",
		},
	}

	require.NoError(t, w.WriteFacts(context.Background(), facts, "g1"))

	files := filesIn(t, filepath.Join(dir, "facts"), "facts_g1_*.parquet")
	require.Len(t, files, 1)

	// A second write lands in a new file.
	require.NoError(t, w.WriteFacts(context.Background(), facts, "g1"))
	files = filesIn(t, filepath.Join(dir, "facts"), "facts_g1_*.parquet")
	assert.Len(t, files, 2)
}

func TestWriteSkipsEmptySlices(t *testing.T) {
	dir := t.TempDir()
	w, err := export.NewSnapshotWriter(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.WriteEntities(ctx, nil, "g1"))
	require.NoError(t, w.WriteFacts(ctx, nil, "g1"))
	require.NoError(t, w.WriteTriplets(ctx, nil, "g1"))

	assert.Empty(t, filesIn(t, dir, "*/*.parquet"))
}

func TestSnapshotExportsWholeGroup(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	entity := &types.Entity{Name: "Maria", CanonicalSlug: "maria", Type: "Person", GroupID: "g1"}
	require.NoError(t, s.Create(ctx, entity))
	other := &types.Entity{Name: "Globex", CanonicalSlug: "globex", Type: "Organization", GroupID: "g1"}
	require.NoError(t, s.Create(ctx, other))

	factIDs, tripletIDs, err := s.AllocateIDs(ctx, 1, 1)
	require.NoError(t, err)

	validAt := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	fact := &types.Fact{
		ID:             factIDs[0],
		Text:           "Maria works at Globex",
		Classification: types.ClassificationFact,
		TemporalClass:  types.TemporalDynamic,
		ValidAt:        &validAt,
		TripletIDs:     tripletIDs,
		GroupID:        "g1",
	}
	triplet := &types.Triplet{
		ID:        tripletIDs[0],
		SubjectID: entity.ID,
		Predicate: "WORKS_AT",
		ObjectID:  other.ID,
		FactID:    fact.ID,
		GroupID:   "g1",
	}
	require.NoError(t, s.ApplyReconciliation(ctx, []*types.Fact{fact}, []*types.Triplet{triplet}, nil))

	dir := t.TempDir()
	w, err := export.NewSnapshotWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w.Snapshot(ctx, s, "g1"))

	assert.Len(t, filesIn(t, filepath.Join(dir, "entities"), "*.parquet"), 1)
	assert.Len(t, filesIn(t, filepath.Join(dir, "facts"), "*.parquet"), 1)
	assert.Len(t, filesIn(t, filepath.Join(dir, "triplets"), "*.parquet"), 1)
}
