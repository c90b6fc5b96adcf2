package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soundprediction/reconcile/pkg/candidates"
	"github.com/soundprediction/reconcile/pkg/oracle"
	"github.com/soundprediction/reconcile/pkg/types"
)

// Task is one unit of invalidation work: an incoming fact paired with one of
// its triplets. Facts extracted without structure run as a single task with a
// nil triplet.
type Task struct {
	Fact    *types.Fact
	Triplet *types.Triplet
}

// Decider answers whether the secondary statement invalidates the primary
// one. oracle.Adapter satisfies this; tests substitute recorders.
type Decider interface {
	Decide(ctx context.Context, primary, secondary oracle.Summary) (bool, error)
}

// CandidateSource retrieves the stored pairs worth judging against an
// incoming fact. candidates.Selector satisfies this.
type CandidateSource interface {
	Select(ctx context.Context, fact *types.Fact, triplets []*types.Triplet) ([]candidates.Candidate, error)
}

// TaskStats counts the work one task performed.
type TaskStats struct {
	Candidates          int
	SkippedComparisons  int
	ExistingInvalidated int
	IncomingInvalidated int
}

// TaskResult is the outcome of a single task. UpdatedIncoming is a copy of
// the task's fact with any invalidation folded in; ChangedExisting holds
// copies of stored facts whose invalidation state differs from what the
// store currently records. Stored records are never mutated here.
type TaskResult struct {
	UpdatedIncoming *types.Fact
	ChangedExisting []*types.Fact
	Stats           TaskStats
}

// Engine runs bi-directional temporal invalidation for one task at a time.
//
// Direction one asks whether the incoming fact invalidates each stored
// candidate; direction two asks whether a stored candidate invalidates the
// incoming fact. Both directions gate on temporal causality before the
// decider is consulted: a fact can only be invalidated by one that became
// valid strictly later, and a fact with no validity start can neither
// invalidate nor be invalidated.
type Engine struct {
	source  CandidateSource
	decider Decider
	logger  *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(source CandidateSource, decider Decider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{source: source, decider: decider, logger: logger}
}

// Invalidate runs both directions for one task. Candidate retrieval failures
// abort the task; decider failures skip only the comparison that failed, so
// one bad judgment never voids the rest of the task's work.
func (e *Engine) Invalidate(ctx context.Context, task Task) (*TaskResult, error) {
	incoming := task.Fact
	result := &TaskResult{UpdatedIncoming: incoming.Clone()}

	if incoming.TemporalClass == types.TemporalAtemporal {
		return result, nil
	}

	var triplets []*types.Triplet
	if task.Triplet != nil {
		triplets = []*types.Triplet{task.Triplet}
	}
	cands, err := e.source.Select(ctx, incoming, triplets)
	if err != nil {
		return nil, fmt.Errorf("selecting candidates for fact %d: %w", incoming.ID, err)
	}
	result.Stats.Candidates = len(cands)
	if len(cands) == 0 {
		return result, nil
	}

	incomingSummary := oracle.BuildSummary(incoming, task.Triplet)

	e.invalidateExisting(ctx, incoming, incomingSummary, cands, result)
	e.invalidateIncoming(ctx, incoming, incomingSummary, cands, result)

	return result, nil
}

// invalidateExisting is direction one: the incoming fact against each stored
// candidate. Only candidates that became valid strictly before the incoming
// fact are eligible; a true judgment closes the candidate's window at the
// incoming fact's validity start.
func (e *Engine) invalidateExisting(ctx context.Context, incoming *types.Fact, incomingSummary oracle.Summary, cands []candidates.Candidate, result *TaskResult) {
	if incoming.ValidAt == nil {
		return
	}
	for _, cand := range cands {
		if cand.Fact.ValidAt == nil || !cand.Fact.ValidAt.Before(*incoming.ValidAt) {
			continue
		}

		invalidates, err := e.decider.Decide(ctx, oracle.BuildSummary(cand.Fact, cand.Triplet), incomingSummary)
		if err != nil {
			result.Stats.SkippedComparisons++
			e.logger.Warn("judgment unavailable; comparison skipped",
				"incoming", incoming.ID, "existing", cand.Fact.ID, "error", err)
			continue
		}
		if !invalidates {
			continue
		}

		if updated := applyInvalidation(cand.Fact, incoming.ValidAt, incoming.ID); updated != nil {
			result.ChangedExisting = append(result.ChangedExisting, updated)
			result.Stats.ExistingInvalidated++
		}
	}
}

// invalidateIncoming is direction two: stored candidates against the incoming
// fact. It runs only while the incoming fact is still considered valid, and
// only candidates that became valid strictly after it are eligible. When
// several candidates invalidate it, the earliest validity start wins.
func (e *Engine) invalidateIncoming(ctx context.Context, incoming *types.Fact, incomingSummary oracle.Summary, cands []candidates.Candidate, result *TaskResult) {
	if incoming.ValidAt == nil || result.UpdatedIncoming.InvalidAt != nil {
		return
	}

	var (
		earliest   *time.Time
		earliestBy int64
	)
	for _, cand := range cands {
		if cand.Fact.ValidAt == nil || !cand.Fact.ValidAt.After(*incoming.ValidAt) {
			continue
		}

		invalidates, err := e.decider.Decide(ctx, incomingSummary, oracle.BuildSummary(cand.Fact, cand.Triplet))
		if err != nil {
			result.Stats.SkippedComparisons++
			e.logger.Warn("judgment unavailable; comparison skipped",
				"incoming", incoming.ID, "existing", cand.Fact.ID, "error", err)
			continue
		}
		if !invalidates {
			continue
		}
		if earliest == nil || cand.Fact.ValidAt.Before(*earliest) {
			earliest = cand.Fact.ValidAt
			earliestBy = cand.Fact.ID
		}
	}

	if earliest != nil {
		t := earliest.UTC()
		result.UpdatedIncoming.InvalidAt = &t
		result.UpdatedIncoming.InvalidatedBy = &earliestBy
		result.Stats.IncomingInvalidated = 1
	}
}

// applyInvalidation folds a true judgment into a copy of victim. The window
// only ever tightens: a victim already invalid at an earlier time keeps its
// current bound. Returns nil when the stored state already records the
// outcome, so untouched facts never reach the write path.
func applyInvalidation(victim *types.Fact, invalidAt *time.Time, byID int64) *types.Fact {
	if invalidAt == nil {
		return nil
	}
	if victim.InvalidAt != nil && victim.InvalidAt.Before(*invalidAt) {
		return nil
	}
	if victim.InvalidAt != nil && victim.InvalidAt.Equal(*invalidAt) &&
		victim.InvalidatedBy != nil && *victim.InvalidatedBy == byID {
		return nil
	}

	out := victim.Clone()
	t := invalidAt.UTC()
	out.InvalidAt = &t
	out.InvalidatedBy = &byID
	return out
}
