package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/reconcile/pkg/store"
	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

func timePtr(t time.Time) *time.Time { return &t }

// runStoreContract exercises the Store behavior every backend has to share.
// Backend test files call it with a fresh store and a unique group id, so
// reruns against persistent servers never collide.
func runStoreContract(t *testing.T, s store.Store) {
	ctx := context.Background()
	group := "contract-" + utils.GenerateUUID()

	require.NoError(t, s.Initialize(ctx))

	var alice, acme *types.Entity

	t.Run("create and look up entities", func(t *testing.T) {
		alice = &types.Entity{
			Name:          "Alice Mercer",
			CanonicalSlug: "alice-mercer",
			Type:          "person",
			GroupID:       group,
		}
		acme = &types.Entity{
			Name:          "Acme Corp",
			CanonicalSlug: "acme-corp",
			Type:          "organization",
			Description:   "industrial supplier",
			GroupID:       group,
		}
		require.NoError(t, s.Create(ctx, alice))
		require.NoError(t, s.Create(ctx, acme))
		require.NotZero(t, alice.ID)
		require.NotZero(t, acme.ID)
		require.NotEqual(t, alice.ID, acme.ID)

		got, err := s.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice Mercer", got.Name)
		assert.Equal(t, "alice-mercer", got.CanonicalSlug)

		got, err = s.GetByCanonical(ctx, group, "person", "alice-mercer")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)

		got, err = s.GetByName(ctx, group, "organization", "Acme Corp")
		require.NoError(t, err)
		assert.Equal(t, acme.ID, got.ID)
		assert.Equal(t, "industrial supplier", got.Description)

		_, err = s.GetByCanonical(ctx, group, "person", "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("live slug uniqueness", func(t *testing.T) {
		dup := &types.Entity{
			Name:          "Alice M.",
			CanonicalSlug: "alice-mercer",
			Type:          "person",
			GroupID:       group,
		}
		err := s.Create(ctx, dup)
		assert.ErrorIs(t, err, store.ErrDuplicateSlug)

		// Same slug in a different type is fine.
		other := &types.Entity{
			Name:          "Alice Mercer LLC",
			CanonicalSlug: "alice-mercer",
			Type:          "organization",
			GroupID:       group,
		}
		assert.NoError(t, s.Create(ctx, other))
	})

	t.Run("aliases do not claim slugs", func(t *testing.T) {
		alias := &types.Entity{
			Name:          "A. Mercer",
			CanonicalSlug: "alice-mercer",
			Type:          "person",
			ResolvedID:    &alice.ID,
			GroupID:       group,
		}
		require.NoError(t, s.Create(ctx, alias))

		got, err := s.GetByCanonical(ctx, group, "person", "alice-mercer")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID, "live owner keeps the slug")

		got, err = s.GetByName(ctx, group, "person", "A. Mercer")
		require.NoError(t, err)
		require.NotNil(t, got.ResolvedID)
		assert.Equal(t, alice.ID, *got.ResolvedID)
	})

	t.Run("update moves the slug claim", func(t *testing.T) {
		renamed := alice.Clone()
		renamed.CanonicalSlug = "alice-q-mercer"
		require.NoError(t, s.Update(ctx, renamed))

		_, err := s.GetByCanonical(ctx, group, "person", "alice-mercer")
		assert.ErrorIs(t, err, store.ErrNotFound, "old slug has no live owner")

		got, err := s.GetByCanonical(ctx, group, "person", "alice-q-mercer")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		alice = got
	})

	t.Run("allocate ids", func(t *testing.T) {
		factIDs, tripletIDs, err := s.AllocateIDs(ctx, 2, 3)
		require.NoError(t, err)
		require.Len(t, factIDs, 2)
		require.Len(t, tripletIDs, 3)
		assert.Less(t, factIDs[0], factIDs[1])

		moreFacts, _, err := s.AllocateIDs(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, moreFacts, 1)
		assert.Greater(t, moreFacts[0], factIDs[1])
	})

	validAt := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	var fact1, fact2 *types.Fact

	t.Run("apply reconciliation persists facts and triplets", func(t *testing.T) {
		factIDs, tripletIDs, err := s.AllocateIDs(ctx, 2, 2)
		require.NoError(t, err)

		fact1 = &types.Fact{
			ID:             factIDs[0],
			Text:           "Alice works at Acme Corp",
			Classification: types.ClassificationFact,
			TemporalClass:  types.TemporalDynamic,
			ValidAt:        timePtr(validAt),
			Embedding:      []float32{1, 0},
			TripletIDs:     []int64{tripletIDs[0]},
			GroupID:        group,
		}
		fact2 = &types.Fact{
			ID:             factIDs[1],
			Text:           "Acme Corp is probably overvalued",
			Classification: types.ClassificationOpinion,
			TemporalClass:  types.TemporalStatic,
			ValidAt:        timePtr(validAt.AddDate(0, 1, 0)),
			Embedding:      []float32{0, 1},
			TripletIDs:     []int64{tripletIDs[1]},
			GroupID:        group,
		}
		triplets := []*types.Triplet{
			{ID: tripletIDs[0], SubjectID: alice.ID, Predicate: "works_at", ObjectID: acme.ID, FactID: factIDs[0], GroupID: group},
			{ID: tripletIDs[1], SubjectID: acme.ID, Predicate: "valued_at", ObjectID: alice.ID, FactID: factIDs[1], GroupID: group},
		}

		require.NoError(t, s.ApplyReconciliation(ctx, []*types.Fact{fact1, fact2}, triplets, nil))

		got, err := s.GetFact(ctx, fact1.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice works at Acme Corp", got.Text)
		assert.Equal(t, types.ClassificationFact, got.Classification)
		assert.Equal(t, types.TemporalDynamic, got.TemporalClass)
		require.NotNil(t, got.ValidAt)
		assert.True(t, got.ValidAt.Equal(validAt), "valid_at round trip")
		assert.Nil(t, got.InvalidAt)
		assert.Equal(t, []float32{1, 0}, got.Embedding)
		assert.Equal(t, []int64{tripletIDs[0]}, got.TripletIDs)
	})

	t.Run("list related by entities", func(t *testing.T) {
		related, err := s.ListRelatedByEntities(ctx, group, []int64{alice.ID},
			[]types.Classification{types.ClassificationFact})
		require.NoError(t, err)
		require.Len(t, related, 1, "opinion filtered out")
		assert.Equal(t, fact1.ID, related[0].Fact.ID)
		assert.Equal(t, "works_at", related[0].Triplet.Predicate)

		related, err = s.ListRelatedByEntities(ctx, group, []int64{alice.ID}, nil)
		require.NoError(t, err)
		assert.Len(t, related, 2, "no classification filter")

		related, err = s.ListRelatedByEntities(ctx, group, []int64{-1}, nil)
		require.NoError(t, err)
		assert.Empty(t, related)
	})

	t.Run("nearest by embedding", func(t *testing.T) {
		related, err := s.NearestByEmbedding(ctx, group, []float32{1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, related, 1)
		assert.Equal(t, fact1.ID, related[0].Fact.ID)

		related, err = s.NearestByEmbedding(ctx, group, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, related, 2)
		assert.Equal(t, fact1.ID, related[0].Fact.ID, "closest first")
		assert.Equal(t, fact2.ID, related[1].Fact.ID)

		related, err = s.NearestByEmbedding(ctx, group, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, related)
	})

	t.Run("update invalidation", func(t *testing.T) {
		invalidAt := validAt.AddDate(0, 2, 0)
		require.NoError(t, s.UpdateInvalidation(ctx, fact1.ID, &invalidAt, &fact2.ID))

		got, err := s.GetFact(ctx, fact1.ID)
		require.NoError(t, err)
		require.NotNil(t, got.InvalidAt)
		assert.True(t, got.InvalidAt.Equal(invalidAt))
		require.NotNil(t, got.InvalidatedBy)
		assert.Equal(t, fact2.ID, *got.InvalidatedBy)

		require.NoError(t, s.UpdateInvalidation(ctx, fact1.ID, nil, nil))
		got, err = s.GetFact(ctx, fact1.ID)
		require.NoError(t, err)
		assert.Nil(t, got.InvalidAt)
		assert.Nil(t, got.InvalidatedBy)

		err = s.UpdateInvalidation(ctx, int64(999999123), &invalidAt, nil)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("outcomes update stored facts in the same transaction", func(t *testing.T) {
		factIDs, tripletIDs, err := s.AllocateIDs(ctx, 1, 1)
		require.NoError(t, err)

		newValid := validAt.AddDate(1, 0, 0)
		fact3 := &types.Fact{
			ID:             factIDs[0],
			Text:           "Alice works at Initech",
			Classification: types.ClassificationFact,
			TemporalClass:  types.TemporalDynamic,
			ValidAt:        timePtr(newValid),
			TripletIDs:     []int64{tripletIDs[0]},
			GroupID:        group,
		}
		triplet := &types.Triplet{
			ID: tripletIDs[0], SubjectID: alice.ID, Predicate: "works_at",
			ObjectID: acme.ID, FactID: factIDs[0], GroupID: group,
		}
		outcome := types.InvalidationOutcome{
			FactID:        fact1.ID,
			NewInvalidAt:  timePtr(newValid),
			InvalidatedBy: &factIDs[0],
		}

		require.NoError(t, s.ApplyReconciliation(ctx,
			[]*types.Fact{fact3}, []*types.Triplet{triplet}, []types.InvalidationOutcome{outcome}))

		got, err := s.GetFact(ctx, fact1.ID)
		require.NoError(t, err)
		require.NotNil(t, got.InvalidAt)
		assert.True(t, got.InvalidAt.Equal(newValid))
		require.NotNil(t, got.InvalidatedBy)
		assert.Equal(t, factIDs[0], *got.InvalidatedBy)
	})

	t.Run("dangling references abort the whole batch", func(t *testing.T) {
		factIDs, tripletIDs, err := s.AllocateIDs(ctx, 1, 1)
		require.NoError(t, err)

		fact := &types.Fact{
			ID:             factIDs[0],
			Text:           "orphaned statement",
			Classification: types.ClassificationFact,
			TemporalClass:  types.TemporalAtemporal,
			TripletIDs:     []int64{tripletIDs[0]},
			GroupID:        group,
		}
		triplet := &types.Triplet{
			ID: tripletIDs[0], SubjectID: int64(999999456), Predicate: "works_at",
			ObjectID: acme.ID, FactID: factIDs[0], GroupID: group,
		}

		err = s.ApplyReconciliation(ctx, []*types.Fact{fact}, []*types.Triplet{triplet}, nil)
		require.Error(t, err)

		_, err = s.GetFact(ctx, factIDs[0])
		assert.ErrorIs(t, err, store.ErrNotFound, "fact insert rolled back")
	})

	t.Run("snapshot listings ordered by id", func(t *testing.T) {
		facts, err := s.ListFacts(ctx, group)
		require.NoError(t, err)
		require.Len(t, facts, 3)
		for i := 1; i < len(facts); i++ {
			assert.Less(t, facts[i-1].ID, facts[i].ID)
		}

		triplets, err := s.ListTriplets(ctx, group)
		require.NoError(t, err)
		require.Len(t, triplets, 3)
		for i := 1; i < len(triplets); i++ {
			assert.Less(t, triplets[i-1].ID, triplets[i].ID)
		}

		entities, err := s.ListEntities(ctx, group, "person")
		require.NoError(t, err)
		require.Len(t, entities, 2, "live entity plus alias")

		entities, err = s.ListEntities(ctx, group, "")
		require.NoError(t, err)
		assert.Len(t, entities, 4)
	})
}
