package invalidation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/reconcile/pkg/invalidation"
	"github.com/soundprediction/reconcile/pkg/types"
)

func TestResolveConflictsKeepsEarliestBound(t *testing.T) {
	march := makeFact(5, "Maria works at Globex", ts("2024-01-01T00:00:00Z"))
	march.InvalidAt = ts("2024-03-01T00:00:00Z")
	february := makeFact(5, "Maria works at Globex", ts("2024-01-01T00:00:00Z"))
	february.InvalidAt = ts("2024-02-01T00:00:00Z")

	resolved := invalidation.ResolveConflicts([]*types.Fact{march, february})
	require.Len(t, resolved, 1)
	assert.True(t, resolved[0].InvalidAt.Equal(*february.InvalidAt))
}

func TestResolveConflictsSetBoundBeatsNil(t *testing.T) {
	open := makeFact(5, "Maria works at Globex", ts("2024-01-01T00:00:00Z"))
	closed := makeFact(5, "Maria works at Globex", ts("2024-01-01T00:00:00Z"))
	closed.InvalidAt = ts("2024-02-01T00:00:00Z")

	resolved := invalidation.ResolveConflicts([]*types.Fact{open, closed})
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].InvalidAt)
	assert.True(t, resolved[0].InvalidAt.Equal(*closed.InvalidAt))

	resolved = invalidation.ResolveConflicts([]*types.Fact{closed, open})
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].InvalidAt, "a nil bound never displaces a set one")
}

func TestResolveConflictsTieKeepsFirstOccurrence(t *testing.T) {
	byThree := int64(3)
	bySeven := int64(7)
	first := makeFact(5, "Maria works at Globex", ts("2024-01-01T00:00:00Z"))
	first.InvalidAt = ts("2024-02-01T00:00:00Z")
	first.InvalidatedBy = &byThree
	second := makeFact(5, "Maria works at Globex", ts("2024-01-01T00:00:00Z"))
	second.InvalidAt = ts("2024-02-01T00:00:00Z")
	second.InvalidatedBy = &bySeven

	resolved := invalidation.ResolveConflicts([]*types.Fact{first, second})
	require.Len(t, resolved, 1)
	assert.Equal(t, byThree, *resolved[0].InvalidatedBy)
}

func TestResolveConflictsPreservesFirstOccurrenceOrder(t *testing.T) {
	a := makeFact(1, "a", nil)
	b := makeFact(2, "b", nil)
	c := makeFact(3, "c", nil)
	bAgain := makeFact(2, "b", nil)
	bAgain.InvalidAt = ts("2024-02-01T00:00:00Z")

	resolved := invalidation.ResolveConflicts([]*types.Fact{a, b, c, bAgain})
	require.Len(t, resolved, 3)
	assert.Equal(t, int64(1), resolved[0].ID)
	assert.Equal(t, int64(2), resolved[1].ID)
	assert.Equal(t, int64(3), resolved[2].ID)
	require.NotNil(t, resolved[1].InvalidAt, "the winning copy replaces the first in place")
}

func TestResolveConflictsPassesSmallInputsThrough(t *testing.T) {
	assert.Nil(t, invalidation.ResolveConflicts(nil))

	one := []*types.Fact{makeFact(1, "a", nil)}
	assert.Equal(t, one, invalidation.ResolveConflicts(one))
}
