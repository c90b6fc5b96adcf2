package invalidation

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

const (
	// DefaultMaxWorkers is the fallback concurrency knob when the caller
	// leaves Config.MaxWorkers unset.
	DefaultMaxWorkers = 5

	// DefaultBatchSize is the fallback number of tasks dispatched between
	// pauses.
	DefaultBatchSize = 10

	// DefaultBatchPause is the fallback breather between batches, giving
	// rate-limited oracle backends room to recover.
	DefaultBatchPause = 200 * time.Millisecond

	// MaxPoolSize caps the worker pool no matter how high MaxWorkers is
	// set. Each worker can hold an oracle call in flight, and judgment
	// backends throttle well before ten concurrent requests.
	MaxPoolSize = 10
)

// Config controls how the orchestrator fans tasks out.
type Config struct {
	MaxWorkers int
	BatchSize  int
	BatchPause time.Duration
}

// Stats aggregates the counters of every task in a run.
type Stats struct {
	Tasks               int
	FailedTasks         int
	Candidates          int
	SkippedComparisons  int
	ExistingInvalidated int
	IncomingInvalidated int
	Duration            time.Duration
}

func (s *Stats) add(ts TaskStats) {
	s.Candidates += ts.Candidates
	s.SkippedComparisons += ts.SkippedComparisons
	s.ExistingInvalidated += ts.ExistingInvalidated
	s.IncomingInvalidated += ts.IncomingInvalidated
}

// Result is the merged outcome of a run. UpdatedIncoming holds one record
// per incoming fact that completed its task; ChangedExisting holds one
// record per stored fact whose invalidation state must be rewritten. Both
// are conflict-resolved, so a fact appears at most once.
type Result struct {
	UpdatedIncoming []*types.Fact
	ChangedExisting []*types.Fact
	Stats           Stats
}

// Orchestrator fans invalidation tasks out over a bounded worker pool in
// fixed-size batches. Tasks are independent: a panic or error in one is
// logged and excluded without disturbing its siblings. Aggregation happens
// after the pool drains, on a single goroutine, so no locking is needed on
// the result.
type Orchestrator struct {
	engine *Engine
	config Config
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator, filling unset config fields with
// defaults.
func NewOrchestrator(engine *Engine, config Config, logger *slog.Logger) *Orchestrator {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultMaxWorkers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BatchPause < 0 {
		config.BatchPause = DefaultBatchPause
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{engine: engine, config: config, logger: logger}
}

// poolSize doubles MaxWorkers because tasks spend most of their time parked
// on oracle round-trips, then clamps to MaxPoolSize.
func (o *Orchestrator) poolSize() int {
	size := 2 * o.config.MaxWorkers
	if size > MaxPoolSize {
		size = MaxPoolSize
	}
	return size
}

// Run executes every task and merges the results. Per-task failures are
// counted and logged, not returned; the only errors Run itself reports are
// context cancellation between batches.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task) (*Result, error) {
	start := time.Now()
	result := &Result{Stats: Stats{Tasks: len(tasks)}}
	if len(tasks) == 0 {
		result.Stats.Duration = time.Since(start)
		return result, nil
	}

	pool := utils.NewWorkerPool(o.poolSize(), func(ctx context.Context, task Task) (*TaskResult, error) {
		return o.engine.Invalidate(ctx, task)
	})

	for i, batch := range utils.Batch(tasks, o.config.BatchSize) {
		if i > 0 && o.config.BatchPause > 0 {
			select {
			case <-time.After(o.config.BatchPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		taskResults, errs := pool.ProcessItems(ctx, batch)
		for j, task := range batch {
			tr := taskResults[j]
			if errs[j] != nil || tr == nil {
				// A nil result with a nil error means the pool shut down
				// before the task ran, which only happens on cancellation.
				err := errs[j]
				if err == nil {
					err = ctx.Err()
				}
				result.Stats.FailedTasks++
				o.logger.Warn("invalidation task failed; its fact is left unreconciled",
					"fact", task.Fact.ID, "error", err)
				continue
			}
			result.Stats.add(tr.Stats)
			result.UpdatedIncoming = append(result.UpdatedIncoming, tr.UpdatedIncoming)
			result.ChangedExisting = append(result.ChangedExisting, tr.ChangedExisting...)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	result.UpdatedIncoming = ResolveConflicts(result.UpdatedIncoming)
	result.ChangedExisting = ResolveConflicts(result.ChangedExisting)
	result.Stats.Duration = time.Since(start)

	o.logger.Debug("invalidation run complete",
		"tasks", result.Stats.Tasks,
		"failed", result.Stats.FailedTasks,
		"candidates", result.Stats.Candidates,
		"existing_invalidated", result.Stats.ExistingInvalidated,
		"incoming_invalidated", result.Stats.IncomingInvalidated,
		"duration", result.Stats.Duration)

	return result, nil
}
