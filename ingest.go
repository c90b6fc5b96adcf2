package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/soundprediction/reconcile/pkg/invalidation"
	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

// ProcessOptions holds options for processing a single extraction batch.
type ProcessOptions struct {
	// GenerateEmbeddings backfills missing fact embeddings before
	// invalidation so new facts participate in similarity retrieval.
	GenerateEmbeddings bool

	// SkipInvalidation persists the batch without judging it against the
	// stored graph. Useful for seeding a fresh graph or debugging.
	SkipInvalidation bool
}

// Result reports what one batch changed.
type Result struct {
	// RunID correlates every log line and record of this batch's run.
	RunID string

	// DocumentID echoes the batch's source document.
	DocumentID string

	// GroupID is the partition the batch was reconciled into.
	GroupID string

	// Entities maps each mention name from the batch to the canonical
	// entity it resolved to.
	Entities map[string]*types.Entity

	// Facts are the persisted incoming facts, invalidation folded in.
	Facts []*types.Fact

	// Triplets are the persisted incoming triplets.
	Triplets []*types.Triplet

	// Outcomes are the invalidation updates applied to stored facts.
	Outcomes []types.InvalidationOutcome

	// Stats aggregates the invalidation run's counters.
	Stats invalidation.Stats
}

// Process reconciles one extraction batch against the stored graph: entity
// mentions are canonicalized, facts and triplets are given persistent ids,
// the invalidation engine judges the batch against stored facts, and
// everything is persisted in a single transaction. On error nothing is
// persisted.
func (c *Client) Process(ctx context.Context, batch types.ExtractionBatch, options *ProcessOptions) (*Result, error) {
	if options == nil {
		options = &ProcessOptions{GenerateEmbeddings: c.config.GenerateEmbeddings}
	}

	if batch.GroupID == "" {
		batch.GroupID = c.config.GroupID
	}
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}

	runID := utils.GenerateUUID()
	logger := c.logger.With("run_id", runID, "document_id", batch.DocumentID, "group_id", batch.GroupID)

	result := &Result{
		RunID:      runID,
		DocumentID: batch.DocumentID,
		GroupID:    batch.GroupID,
	}
	if batch.IsEmpty() {
		logger.Info("batch is empty; nothing to reconcile")
		return result, nil
	}

	logger.Info("processing extraction batch",
		"entities", len(batch.Entities),
		"facts", batch.FactCount(),
		"triplets", batch.TripletCount())

	entities, err := c.canonicalize.Canonicalize(ctx, batch.GroupID, batch.Entities)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing entities: %w", err)
	}
	result.Entities = entities

	facts, triplets, err := c.buildRecords(ctx, batch, entities, logger)
	if err != nil {
		return nil, err
	}
	result.Facts = facts
	result.Triplets = triplets

	if options.GenerateEmbeddings {
		c.backfillEmbeddings(ctx, facts, logger)
	}

	var outcomes []types.InvalidationOutcome
	if !options.SkipInvalidation {
		tasks := buildTasks(facts, triplets)
		runResult, err := c.orchestrator.Run(ctx, tasks)
		if err != nil {
			return nil, fmt.Errorf("running invalidation: %w", err)
		}
		foldIncoming(facts, runResult.UpdatedIncoming)
		outcomes = outcomesFrom(runResult.ChangedExisting)
		result.Stats = runResult.Stats
	}

	if err := c.store.ApplyReconciliation(ctx, facts, triplets, outcomes); err != nil {
		return nil, fmt.Errorf("applying reconciliation: %w", err)
	}
	result.Outcomes = outcomes

	logger.Info("batch reconciled",
		"facts", len(facts),
		"triplets", len(triplets),
		"existing_invalidated", len(outcomes),
		"incoming_invalidated", result.Stats.IncomingInvalidated,
		"failed_tasks", result.Stats.FailedTasks)

	return result, nil
}

// ProcessAll reconciles batches in order. Processing stops at the first
// failing batch; earlier batches stay persisted because each one commits
// its own transaction.
func (c *Client) ProcessAll(ctx context.Context, batches []types.ExtractionBatch, options *ProcessOptions) ([]*Result, error) {
	results := make([]*Result, 0, len(batches))
	for _, batch := range batches {
		result, err := c.Process(ctx, batch, options)
		if err != nil {
			return results, fmt.Errorf("failed to process document %s: %w", batch.DocumentID, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// buildRecords turns extracted facts and triplets into persistable records
// with pre-allocated ids. Triplets whose entities did not resolve are
// dropped with a warning rather than failing the batch; a malformed
// validity window fails it.
func (c *Client) buildRecords(ctx context.Context, batch types.ExtractionBatch, entities map[string]*types.Entity, logger *slog.Logger) ([]*types.Fact, []*types.Triplet, error) {
	factIDs, tripletIDs, err := c.store.AllocateIDs(ctx, len(batch.Facts), batch.TripletCount())
	if err != nil {
		return nil, nil, fmt.Errorf("allocating ids: %w", err)
	}

	now := time.Now().UTC()
	facts := make([]*types.Fact, 0, len(batch.Facts))
	triplets := make([]*types.Triplet, 0, batch.TripletCount())
	next := 0
	for i, extracted := range batch.Facts {
		fact := &types.Fact{
			ID:             factIDs[i],
			Text:           extracted.Text,
			Classification: extracted.Classification,
			TemporalClass:  extracted.TemporalClass,
			ValidAt:        toUTC(extracted.ValidAt),
			InvalidAt:      toUTC(extracted.InvalidAt),
			Embedding:      extracted.Embedding,
			GroupID:        batch.GroupID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if fact.TemporalClass == types.TemporalAtemporal && (fact.ValidAt != nil || fact.InvalidAt != nil) {
			logger.Warn("dropping validity window on atemporal fact", "fact", fact.ID, "text", fact.Text)
			fact.ValidAt = nil
			fact.InvalidAt = nil
		}

		for _, et := range extracted.Triplets {
			id := tripletIDs[next]
			next++

			subject, object := entities[et.SubjectName], entities[et.ObjectName]
			if subject == nil || object == nil {
				logger.Warn("dropping triplet with unresolved entity",
					"fact", fact.ID, "subject", et.SubjectName, "object", et.ObjectName)
				continue
			}
			triplet := &types.Triplet{
				ID:        id,
				SubjectID: subject.ID,
				Predicate: et.Predicate,
				ObjectID:  object.ID,
				FactID:    fact.ID,
				Value:     et.Value,
				GroupID:   batch.GroupID,
			}
			fact.TripletIDs = append(fact.TripletIDs, triplet.ID)
			triplets = append(triplets, triplet)
		}

		if err := fact.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%w: fact %d (%q): %v", ErrInvalidBatch, i, fact.Text, err)
		}
		facts = append(facts, fact)
	}
	return facts, triplets, nil
}

// backfillEmbeddings fills missing fact embeddings in one call. Failure
// degrades retrieval for the affected facts instead of failing the batch.
func (c *Client) backfillEmbeddings(ctx context.Context, facts []*types.Fact, logger *slog.Logger) {
	if c.embedder == nil {
		return
	}

	var missing []*types.Fact
	var texts []string
	for _, f := range facts {
		if len(f.Embedding) == 0 {
			missing = append(missing, f)
			texts = append(texts, f.Text)
		}
	}
	if len(missing) == 0 {
		return
	}

	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		logger.Warn("embedding backfill failed; similarity retrieval will skip these facts",
			"count", len(missing), "error", err)
		return
	}
	if len(vectors) != len(missing) {
		logger.Warn("embedding backfill returned a short batch; skipping",
			"want", len(missing), "got", len(vectors))
		return
	}
	for i, f := range missing {
		f.Embedding = vectors[i]
	}
}

// buildTasks fans a batch out into one task per (fact, triplet) pair.
// Statements that never participate in invalidation, opinions, predictions
// and atemporal facts, are persisted without tasks. Facts extracted without
// structure run as a single bare task.
func buildTasks(facts []*types.Fact, triplets []*types.Triplet) []invalidation.Task {
	byFact := make(map[int64][]*types.Triplet, len(facts))
	for _, t := range triplets {
		byFact[t.FactID] = append(byFact[t.FactID], t)
	}

	var tasks []invalidation.Task
	for _, f := range facts {
		if f.Classification != types.ClassificationFact || f.TemporalClass == types.TemporalAtemporal {
			continue
		}
		owned := byFact[f.ID]
		if len(owned) == 0 {
			tasks = append(tasks, invalidation.Task{Fact: f})
			continue
		}
		for _, t := range owned {
			tasks = append(tasks, invalidation.Task{Fact: f, Triplet: t})
		}
	}
	return tasks
}

// foldIncoming copies reconciled invalidation bounds back onto the records
// that will be persisted. Facts without an update (atemporal, opinions,
// failed tasks) keep their extracted state.
func foldIncoming(facts []*types.Fact, updated []*types.Fact) {
	byID := make(map[int64]*types.Fact, len(updated))
	for _, u := range updated {
		byID[u.ID] = u
	}
	for _, f := range facts {
		if u, ok := byID[f.ID]; ok {
			f.InvalidAt = u.InvalidAt
			f.InvalidatedBy = u.InvalidatedBy
		}
	}
}

// outcomesFrom flattens changed stored facts into the write-set applied by
// the store.
func outcomesFrom(changed []*types.Fact) []types.InvalidationOutcome {
	if len(changed) == 0 {
		return nil
	}
	outcomes := make([]types.InvalidationOutcome, 0, len(changed))
	for _, f := range changed {
		outcomes = append(outcomes, types.InvalidationOutcome{
			FactID:        f.ID,
			NewInvalidAt:  f.InvalidAt,
			InvalidatedBy: f.InvalidatedBy,
		})
	}
	return outcomes
}

// toUTC normalizes an optional timestamp to UTC.
func toUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// LoadBatchesFile reads extraction batches from a YAML file holding a list
// of batch documents. Items that fail to decode are skipped; the error is
// non-nil only when the file is unreadable or nothing decodes.
func LoadBatchesFile(path string) ([]*types.ExtractionBatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batches file: %w", err)
	}
	batches, err := utils.UnmarshalYAMLList[types.ExtractionBatch](data)
	if err != nil {
		return nil, fmt.Errorf("parsing batches file %s: %w", path, err)
	}
	return batches, nil
}
