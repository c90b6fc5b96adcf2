package canonical

import (
	"sort"

	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

// member is one batch entity taking part in clustering. The index is the
// entity's first position in the batch and breaks every tie deterministically.
type member struct {
	index  int
	entity *types.Entity
	clean  string
}

// cluster groups batch members believed to name the same real-world thing.
type cluster struct {
	members []member
	medoid  member
}

// buildClusters single-links members whose cleaned names reach
// FuzzyMatchThreshold under partial-ratio similarity. Members that fail the
// fuzzy-eligibility gate never pair up and come out as singletons; short
// names are handled later through the acronym path instead.
//
// The pairwise comparison is quadratic in the number of batch members. The
// batch is one document's mentions, so the bound is small; a bucketing
// pre-filter by first token would cut it down if that ever changes.
func buildClusters(members []member) []cluster {
	parent := make([]int, len(members))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	for i := 0; i < len(members); i++ {
		if !utils.FuzzyEligible(members[i].entity.Name) {
			continue
		}
		for j := i + 1; j < len(members); j++ {
			if !utils.FuzzyEligible(members[j].entity.Name) {
				continue
			}
			if utils.PartialRatio(members[i].clean, members[j].clean) >= FuzzyMatchThreshold {
				union(i, j)
			}
		}
	}

	grouped := make(map[int][]member)
	roots := make([]int, 0)
	for i, m := range members {
		root := find(i)
		if _, seen := grouped[root]; !seen {
			roots = append(roots, root)
		}
		grouped[root] = append(grouped[root], m)
	}
	sort.Ints(roots)

	clusters := make([]cluster, 0, len(roots))
	for _, root := range roots {
		ms := grouped[root]
		sort.Slice(ms, func(a, b int) bool { return ms[a].index < ms[b].index })
		clusters = append(clusters, cluster{members: ms, medoid: pickMedoid(ms)})
	}
	return clusters
}

// pickMedoid returns the member with the highest total partial-ratio
// similarity to the rest of the cluster. Ties go to the lowest batch index,
// which sort order already guarantees.
func pickMedoid(members []member) member {
	if len(members) == 1 {
		return members[0]
	}

	best := 0
	bestTotal := -1.0
	for i := range members {
		total := 0.0
		for j := range members {
			if i == j {
				continue
			}
			total += utils.PartialRatio(members[i].clean, members[j].clean)
		}
		if total > bestTotal {
			bestTotal = total
			best = i
		}
	}
	return members[best]
}
