package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/reconcile"
	"github.com/soundprediction/reconcile/pkg/oracle"
	"github.com/soundprediction/reconcile/pkg/store"
	"github.com/soundprediction/reconcile/pkg/types"
)

// textOracle judges by statement text, the way tests can predict, and
// records every consultation.
type textOracle struct {
	mu      sync.Mutex
	verdict func(primary, secondary oracle.Summary) string
	asked   [][2]string
}

func newTextOracle(verdict func(primary, secondary oracle.Summary) string) *textOracle {
	if verdict == nil {
		verdict = func(oracle.Summary, oracle.Summary) string { return "false" }
	}
	return &textOracle{verdict: verdict}
}

func (o *textOracle) Judge(ctx context.Context, primary, secondary oracle.Summary) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.asked = append(o.asked, [2]string{primary.Text, secondary.Text})
	return o.verdict(primary, secondary), nil
}

func (o *textOracle) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.asked)
}

func newTestClient(t *testing.T, judge oracle.Oracle) (*reconcile.Client, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	client, err := reconcile.NewClient(s, judge, nil, &reconcile.Config{GroupID: "g1"}, nil)
	require.NoError(t, err)
	return client, s
}

func date(value string) *time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return &t
}

func employmentBatch(docID, person, company string, validAt *time.Time) types.ExtractionBatch {
	return types.ExtractionBatch{
		DocumentID: docID,
		GroupID:    "g1",
		Entities: []types.ExtractedEntity{
			{Name: person, Type: "Person"},
			{Name: company, Type: "Organization"},
		},
		Facts: []types.ExtractedFact{
			{
				Text:           person + " works at " + company,
				Classification: types.ClassificationFact,
				TemporalClass:  types.TemporalDynamic,
				ValidAt:        validAt,
				Triplets: []types.ExtractedTriplet{
					{SubjectName: person, Predicate: "WORKS_AT", ObjectName: company},
				},
			},
		},
	}
}

func TestNewClientValidation(t *testing.T) {
	s := store.NewMemoryStore()
	judge := newTextOracle(nil)

	_, err := reconcile.NewClient(nil, judge, nil, nil, nil)
	require.ErrorIs(t, err, reconcile.ErrNoStore)

	_, err = reconcile.NewClient(s, nil, nil, nil, nil)
	require.ErrorIs(t, err, reconcile.ErrNoOracle)

	_, err = reconcile.NewClient(s, judge, nil, &reconcile.Config{GroupID: "has spaces"}, nil)
	require.Error(t, err)

	client, err := reconcile.NewClient(s, judge, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", client.GroupID())
}

func TestProcessSupersedesStoredFact(t *testing.T) {
	ctx := context.Background()
	judge := newTextOracle(func(primary, secondary oracle.Summary) string {
		if primary.Text == "Maria works at Initech" && secondary.Text == "Maria works at Globex" {
			return "true"
		}
		return "false"
	})
	client, _ := newTestClient(t, judge)

	first, err := client.Process(ctx, employmentBatch("d1", "Maria", "Initech", date("2024-01-15T00:00:00Z")), nil)
	require.NoError(t, err)
	require.Len(t, first.Facts, 1)
	storedID := first.Facts[0].ID
	assert.Empty(t, first.Outcomes, "an empty graph offers nothing to invalidate")

	second, err := client.Process(ctx, employmentBatch("d2", "Maria", "Globex", date("2024-03-10T00:00:00Z")), nil)
	require.NoError(t, err)

	require.Len(t, second.Outcomes, 1)
	assert.Equal(t, storedID, second.Outcomes[0].FactID)

	superseded, err := client.GetFact(ctx, storedID)
	require.NoError(t, err)
	require.NotNil(t, superseded.InvalidAt)
	assert.True(t, superseded.InvalidAt.Equal(*date("2024-03-10T00:00:00Z")))
	require.NotNil(t, superseded.InvalidatedBy)
	assert.Equal(t, second.Facts[0].ID, *superseded.InvalidatedBy)

	incoming, err := client.GetFact(ctx, second.Facts[0].ID)
	require.NoError(t, err)
	assert.Nil(t, incoming.InvalidAt, "the superseding fact stays open")

	// Both mentions of Maria resolved to the same canonical entity.
	assert.Equal(t, first.Entities["Maria"].ID, second.Entities["Maria"].ID)
}

func TestProcessClosesIncomingAgainstNewerStoredFact(t *testing.T) {
	ctx := context.Background()
	judge := newTextOracle(func(primary, secondary oracle.Summary) string {
		if primary.Text == "Maria works at Globex" && secondary.Text == "Maria works at Hooli" {
			return "true"
		}
		return "false"
	})
	client, _ := newTestClient(t, judge)

	newer, err := client.Process(ctx, employmentBatch("d1", "Maria", "Hooli", date("2024-06-01T00:00:00Z")), nil)
	require.NoError(t, err)

	older, err := client.Process(ctx, employmentBatch("d2", "Maria", "Globex", date("2024-03-10T00:00:00Z")), nil)
	require.NoError(t, err)

	assert.Empty(t, older.Outcomes, "the stored fact postdates the incoming one and stays open")

	arrived, err := client.GetFact(ctx, older.Facts[0].ID)
	require.NoError(t, err)
	require.NotNil(t, arrived.InvalidAt, "the graph already knows what superseded this fact")
	assert.True(t, arrived.InvalidAt.Equal(*date("2024-06-01T00:00:00Z")))
	assert.Equal(t, newer.Facts[0].ID, *arrived.InvalidatedBy)

	untouched, err := client.GetFact(ctx, newer.Facts[0].ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.InvalidAt)
}

func TestProcessLeavesOpinionsAlone(t *testing.T) {
	ctx := context.Background()
	judge := newTextOracle(func(oracle.Summary, oracle.Summary) string { return "true" })
	client, _ := newTestClient(t, judge)

	_, err := client.Process(ctx, employmentBatch("d1", "Maria", "Initech", date("2024-01-15T00:00:00Z")), nil)
	require.NoError(t, err)

	opinion := employmentBatch("d2", "Maria", "Globex", date("2024-03-10T00:00:00Z"))
	opinion.Facts[0].Classification = types.ClassificationOpinion
	opinion.Facts[0].Text = "I think Maria works at Globex"

	result, err := client.Process(ctx, opinion, nil)
	require.NoError(t, err)

	assert.Zero(t, judge.calls(), "opinions take no part in invalidation")
	assert.Empty(t, result.Outcomes)

	persisted, err := client.GetFact(ctx, result.Facts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ClassificationOpinion, persisted.Classification)
}

func TestProcessDropsAtemporalWindow(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, newTextOracle(nil))

	batch := types.ExtractionBatch{
		DocumentID: "d1",
		GroupID:    "g1",
		Entities:   []types.ExtractedEntity{{Name: "Water", Type: "Substance"}},
		Facts: []types.ExtractedFact{
			{
				Text:           "Water boils at 100C",
				Classification: types.ClassificationFact,
				TemporalClass:  types.TemporalAtemporal,
				ValidAt:        date("2024-01-01T00:00:00Z"),
			},
		},
	}

	result, err := client.Process(ctx, batch, nil)
	require.NoError(t, err)

	persisted, err := client.GetFact(ctx, result.Facts[0].ID)
	require.NoError(t, err)
	assert.Nil(t, persisted.ValidAt, "atemporal facts never carry a window")
	assert.Nil(t, persisted.InvalidAt)
}

func TestProcessSkipInvalidation(t *testing.T) {
	ctx := context.Background()
	judge := newTextOracle(func(oracle.Summary, oracle.Summary) string { return "true" })
	client, _ := newTestClient(t, judge)

	_, err := client.Process(ctx, employmentBatch("d1", "Maria", "Initech", date("2024-01-15T00:00:00Z")), nil)
	require.NoError(t, err)

	result, err := client.Process(ctx,
		employmentBatch("d2", "Maria", "Globex", date("2024-03-10T00:00:00Z")),
		&reconcile.ProcessOptions{SkipInvalidation: true})
	require.NoError(t, err)

	assert.Zero(t, judge.calls())
	assert.Empty(t, result.Outcomes)

	facts, err := client.Facts(ctx)
	require.NoError(t, err)
	assert.Len(t, facts, 2, "skipping invalidation still persists the batch")
}

func TestProcessRejectsInvalidBatch(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, newTextOracle(nil))

	batch := employmentBatch("d1", "Maria", "Initech", nil)
	batch.Facts[0].Triplets[0].ObjectName = "Unknown Corp"

	_, err := client.Process(ctx, batch, nil)
	require.ErrorIs(t, err, reconcile.ErrInvalidBatch)

	facts, err := client.Facts(ctx)
	require.NoError(t, err)
	assert.Empty(t, facts, "a rejected batch persists nothing")
}

func TestProcessEmptyBatch(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, newTextOracle(nil))

	result, err := client.Process(ctx, types.ExtractionBatch{DocumentID: "d1", GroupID: "g1"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.Facts)
}

func TestProcessDefaultsGroupID(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, newTextOracle(nil))

	batch := employmentBatch("d1", "Maria", "Initech", date("2024-01-15T00:00:00Z"))
	batch.GroupID = ""

	result, err := client.Process(ctx, batch, nil)
	require.NoError(t, err)
	assert.Equal(t, "g1", result.GroupID)

	facts, err := client.Facts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "g1", facts[0].GroupID)
}

func TestProcessAllStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, newTextOracle(nil))

	good := employmentBatch("d1", "Maria", "Initech", date("2024-01-15T00:00:00Z"))
	bad := employmentBatch("d2", "Jeff", "Globex", nil)
	bad.Facts[0].Triplets[0].SubjectName = "Nobody"
	never := employmentBatch("d3", "Olga", "Hooli", nil)

	results, err := client.ProcessAll(ctx, []types.ExtractionBatch{good, bad, never}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "d2")
	assert.Len(t, results, 1, "batches before the failure stay committed")

	facts, err := client.Facts(ctx)
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestOracleStatsAccumulate(t *testing.T) {
	ctx := context.Background()
	judge := newTextOracle(func(oracle.Summary, oracle.Summary) string { return "false" })
	client, _ := newTestClient(t, judge)

	_, err := client.Process(ctx, employmentBatch("d1", "Maria", "Initech", date("2024-01-15T00:00:00Z")), nil)
	require.NoError(t, err)
	_, err = client.Process(ctx, employmentBatch("d2", "Maria", "Globex", date("2024-03-10T00:00:00Z")), nil)
	require.NoError(t, err)

	stats := client.OracleStats()
	assert.Equal(t, int64(1), stats.Calls, "one eligible pair, one judgment")
	assert.Zero(t, stats.Failures)
}
