package invalidation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/reconcile/pkg/candidates"
	"github.com/soundprediction/reconcile/pkg/invalidation"
	"github.com/soundprediction/reconcile/pkg/oracle"
	"github.com/soundprediction/reconcile/pkg/types"
)

// mapSource serves candidates keyed by the incoming fact's id, so each task
// in a run sees its own slice of the graph.
type mapSource struct {
	byFact map[int64][]candidates.Candidate
	errFor map[int64]error
}

func (m *mapSource) Select(ctx context.Context, fact *types.Fact, triplets []*types.Triplet) ([]candidates.Candidate, error) {
	if err := m.errFor[fact.ID]; err != nil {
		return nil, err
	}
	return m.byFact[fact.ID], nil
}

type deciderFunc func(ctx context.Context, primary, secondary oracle.Summary) (bool, error)

func (f deciderFunc) Decide(ctx context.Context, primary, secondary oracle.Summary) (bool, error) {
	return f(ctx, primary, secondary)
}

func newOrchestrator(source invalidation.CandidateSource, decider invalidation.Decider, config invalidation.Config) *invalidation.Orchestrator {
	engine := invalidation.NewEngine(source, decider, nil)
	return invalidation.NewOrchestrator(engine, config, nil)
}

func TestRunMergesIndependentTasks(t *testing.T) {
	ctx := context.Background()
	storedA := makeFact(1, "Maria works at Initech", ts("2024-01-15T00:00:00Z"))
	storedB := makeFact(2, "Jeff lives in Austin", ts("2024-01-20T00:00:00Z"))
	incomingA := makeFact(10, "Maria works at Globex", ts("2024-03-10T00:00:00Z"))
	incomingB := makeFact(11, "Jeff lives in Denver", ts("2024-04-01T00:00:00Z"))

	source := &mapSource{byFact: map[int64][]candidates.Candidate{
		incomingA.ID: {makeCandidate(storedA)},
		incomingB.ID: {makeCandidate(storedB)},
	}}
	decider := newScriptedDecider()
	decider.answer(storedA.ID, incomingA.ID, true)
	decider.answer(storedB.ID, incomingB.ID, true)

	orch := newOrchestrator(source, decider, invalidation.Config{})
	result, err := orch.Run(ctx, []invalidation.Task{
		{Fact: incomingA},
		{Fact: incomingB},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.Tasks)
	assert.Zero(t, result.Stats.FailedTasks)
	assert.Len(t, result.UpdatedIncoming, 2)
	require.Len(t, result.ChangedExisting, 2)
	assert.Equal(t, 2, result.Stats.ExistingInvalidated)
	assert.Positive(t, result.Stats.Duration)
}

func TestRunResolvesCrossTaskConflicts(t *testing.T) {
	ctx := context.Background()
	stored := makeFact(1, "Maria works at Initech", ts("2024-01-01T00:00:00Z"))
	march := makeFact(10, "Maria works at Globex", ts("2024-03-01T00:00:00Z"))
	february := makeFact(11, "Maria works at Hooli", ts("2024-02-01T00:00:00Z"))

	source := &mapSource{byFact: map[int64][]candidates.Candidate{
		march.ID:    {makeCandidate(stored)},
		february.ID: {makeCandidate(stored)},
	}}
	decider := newScriptedDecider()
	decider.answer(stored.ID, march.ID, true)
	decider.answer(stored.ID, february.ID, true)

	orch := newOrchestrator(source, decider, invalidation.Config{})
	result, err := orch.Run(ctx, []invalidation.Task{
		{Fact: march},
		{Fact: february},
	})
	require.NoError(t, err)

	require.Len(t, result.ChangedExisting, 1,
		"both tasks touched the same stored fact; one record survives")
	changed := result.ChangedExisting[0]
	assert.Equal(t, stored.ID, changed.ID)
	assert.True(t, changed.InvalidAt.Equal(*february.ValidAt),
		"the earliest superseding bound wins across tasks")
	assert.Equal(t, february.ID, *changed.InvalidatedBy)
}

func TestRunIsolatesTaskFailures(t *testing.T) {
	ctx := context.Background()
	stored := makeFact(1, "Maria works at Initech", ts("2024-01-15T00:00:00Z"))
	healthy := makeFact(10, "Maria works at Globex", ts("2024-03-10T00:00:00Z"))
	doomed := makeFact(11, "Jeff lives in Denver", ts("2024-04-01T00:00:00Z"))

	source := &mapSource{
		byFact: map[int64][]candidates.Candidate{healthy.ID: {makeCandidate(stored)}},
		errFor: map[int64]error{doomed.ID: errors.New("store unavailable")},
	}
	decider := newScriptedDecider()
	decider.answer(stored.ID, healthy.ID, true)

	orch := newOrchestrator(source, decider, invalidation.Config{})
	result, err := orch.Run(ctx, []invalidation.Task{
		{Fact: healthy},
		{Fact: doomed},
	})
	require.NoError(t, err, "task failures are isolated, not propagated")

	assert.Equal(t, 1, result.Stats.FailedTasks)
	require.Len(t, result.UpdatedIncoming, 1)
	assert.Equal(t, healthy.ID, result.UpdatedIncoming[0].ID)
	assert.Len(t, result.ChangedExisting, 1)
}

func TestRunIsolatesPanics(t *testing.T) {
	ctx := context.Background()
	stored := makeFact(1, "Maria works at Initech", ts("2024-01-15T00:00:00Z"))
	healthy := makeFact(10, "Maria works at Globex", ts("2024-03-10T00:00:00Z"))
	doomed := makeFact(11, "Jeff lives in Denver", ts("2024-04-01T00:00:00Z"))

	source := &mapSource{byFact: map[int64][]candidates.Candidate{
		healthy.ID: {makeCandidate(stored)},
		doomed.ID:  {makeCandidate(stored)},
	}}
	decider := deciderFunc(func(ctx context.Context, primary, secondary oracle.Summary) (bool, error) {
		if secondary.FactID == doomed.ID || primary.FactID == doomed.ID {
			panic("judgment backend corrupted response")
		}
		return true, nil
	})

	orch := newOrchestrator(source, decider, invalidation.Config{})
	result, err := orch.Run(ctx, []invalidation.Task{
		{Fact: healthy},
		{Fact: doomed},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.FailedTasks, "a panicking task is contained")
	require.Len(t, result.UpdatedIncoming, 1)
	assert.Equal(t, healthy.ID, result.UpdatedIncoming[0].ID)
}

func TestRunWithNoTasks(t *testing.T) {
	orch := newOrchestrator(&mapSource{}, newScriptedDecider(), invalidation.Config{})
	result, err := orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Stats.Tasks)
	assert.Empty(t, result.UpdatedIncoming)
	assert.Empty(t, result.ChangedExisting)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	incoming := makeFact(10, "Maria works at Globex", ts("2024-03-10T00:00:00Z"))
	orch := newOrchestrator(&mapSource{}, newScriptedDecider(), invalidation.Config{})

	_, err := orch.Run(ctx, []invalidation.Task{{Fact: incoming}})
	require.ErrorIs(t, err, context.Canceled)
}
