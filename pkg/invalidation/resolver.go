package invalidation

import "github.com/soundprediction/reconcile/pkg/types"

// ResolveConflicts collapses per-task fact copies into one record per fact
// ID. Tasks run independently, so a fact that appears in several tasks may
// come back with conflicting invalidation bounds; the earliest non-nil
// InvalidAt wins because a fact stops being true the first time something
// supersedes it. Input order is preserved by first occurrence, and on equal
// bounds the earlier occurrence is kept, so resolution is deterministic for
// a given input order.
func ResolveConflicts(facts []*types.Fact) []*types.Fact {
	if len(facts) <= 1 {
		return facts
	}

	order := make([]int64, 0, len(facts))
	best := make(map[int64]*types.Fact, len(facts))
	for _, f := range facts {
		current, seen := best[f.ID]
		if !seen {
			best[f.ID] = f
			order = append(order, f.ID)
			continue
		}
		if supersedes(f, current) {
			best[f.ID] = f
		}
	}

	resolved := make([]*types.Fact, 0, len(order))
	for _, id := range order {
		resolved = append(resolved, best[id])
	}
	return resolved
}

// supersedes reports whether candidate should replace current: it must carry
// a strictly earlier InvalidAt. A nil bound never beats a set one, and a set
// bound always beats nil.
func supersedes(candidate, current *types.Fact) bool {
	if candidate.InvalidAt == nil {
		return false
	}
	if current.InvalidAt == nil {
		return true
	}
	return candidate.InvalidAt.Before(*current.InvalidAt)
}
