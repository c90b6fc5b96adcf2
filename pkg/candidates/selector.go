// Package candidates narrows the set of stored facts an incoming fact is
// compared against, bounding oracle call volume.
//
// Selection combines two retrieval paths: triplets sharing an entity with
// the incoming fact, and nearest neighbours of the incoming fact's
// embedding. Both feed a temporal-window filter keyed on the incoming
// fact's temporal class, and the survivors are capped by cosine similarity.
package candidates

import (
	"context"
	"log/slog"
	"sort"

	"github.com/soundprediction/reconcile/pkg/embedder"
	"github.com/soundprediction/reconcile/pkg/store"
	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

const (
	// EmbeddingNeighborK is how many nearest neighbours augment the
	// entity-overlap candidates.
	EmbeddingNeighborK = 5

	// MaxCandidates caps the final candidate list. Every survivor costs up
	// to two oracle calls, so the cap directly bounds judgment volume.
	MaxCandidates = 10
)

// Candidate pairs an existing triplet with its owning fact. Score is the
// cosine similarity to the incoming fact, zero when either side has no
// embedding.
type Candidate struct {
	Triplet *types.Triplet
	Fact    *types.Fact
	Score   float64
}

// Selector retrieves invalidation candidates for incoming facts. The
// embedder is optional: without one, facts that carry no embedding skip the
// nearest-neighbour augmentation and rely on entity overlap alone.
type Selector struct {
	facts    store.FactStore
	embedder embedder.Client
	logger   *slog.Logger
}

// NewSelector creates a Selector. embedderClient may be nil.
func NewSelector(facts store.FactStore, embedderClient embedder.Client, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{facts: facts, embedder: embedderClient, logger: logger}
}

// Select returns the stored (triplet, fact) pairs worth judging against the
// incoming fact. Only statements classified as facts are considered;
// atemporal facts never appear on either side. Store lookup failures abort
// selection, embedding failures only degrade it.
func (s *Selector) Select(ctx context.Context, fact *types.Fact, triplets []*types.Triplet) ([]Candidate, error) {
	if fact.TemporalClass == types.TemporalAtemporal {
		return nil, nil
	}

	related, err := s.facts.ListRelatedByEntities(ctx, fact.GroupID, entityIDs(triplets), []types.Classification{types.ClassificationFact})
	if err != nil {
		return nil, err
	}

	queryVec := s.queryVector(ctx, fact)
	if len(queryVec) > 0 {
		neighbors, err := s.facts.NearestByEmbedding(ctx, fact.GroupID, queryVec, EmbeddingNeighborK)
		if err != nil {
			// Augmentation is best-effort; entity overlap already found the
			// structurally related facts.
			s.logger.Warn("nearest-neighbour lookup failed; continuing with entity overlap only",
				"fact", fact.ID, "error", err)
		} else {
			related = append(related, neighbors...)
		}
	}

	candidates := make([]Candidate, 0, len(related))
	seen := make(map[int64]bool)
	for _, r := range related {
		if r.Fact == nil || r.Triplet == nil {
			continue
		}
		// One pair per stored fact: extra triplets of the same fact would
		// repeat the same judgment and eat into the cap.
		if r.Fact.ID == fact.ID || seen[r.Fact.ID] {
			continue
		}
		seen[r.Fact.ID] = true

		if r.Fact.Classification != types.ClassificationFact {
			continue
		}
		if r.Fact.TemporalClass == types.TemporalAtemporal {
			continue
		}
		if !s.inWindow(fact, r.Fact) {
			continue
		}
		candidates = append(candidates, Candidate{Triplet: r.Triplet, Fact: r.Fact})
	}

	return capBySimilarity(candidates, queryVec, MaxCandidates), nil
}

// queryVector returns the vector used for neighbour lookup and ranking: the
// fact's own embedding, or one derived from its text when an embedder is
// configured. The fact itself is never mutated here.
func (s *Selector) queryVector(ctx context.Context, fact *types.Fact) []float32 {
	if len(fact.Embedding) > 0 {
		return fact.Embedding
	}
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.EmbedSingle(ctx, fact.Text)
	if err != nil {
		s.logger.Warn("embedding incoming fact failed; skipping similarity augmentation",
			"fact", fact.ID, "error", err)
		return nil
	}
	return vec
}

// inWindow applies the temporal-window rules keyed on the incoming fact's
// temporal class.
func (s *Selector) inWindow(incoming, existing *types.Fact) bool {
	switch incoming.TemporalClass {
	case types.TemporalAtemporal:
		return false

	case types.TemporalDynamic:
		// Intervals overlap unless one ends before the other starts; a nil
		// InvalidAt is open-ended and a nil ValidAt is unbounded on the left.
		if existing.InvalidAt != nil && incoming.ValidAt != nil && existing.InvalidAt.Before(*incoming.ValidAt) {
			return false
		}
		if incoming.InvalidAt != nil && existing.ValidAt != nil && incoming.InvalidAt.Before(*existing.ValidAt) {
			return false
		}
		return true

	case types.TemporalStatic:
		// A static comparison needs a real interval on the incoming side and
		// a timestamp inside it on the existing side.
		if incoming.ValidAt == nil || incoming.InvalidAt == nil || !incoming.ValidAt.Before(*incoming.InvalidAt) {
			return false
		}
		if existing.ValidAt == nil {
			return false
		}
		return !existing.ValidAt.Before(*incoming.ValidAt) && !existing.ValidAt.After(*incoming.InvalidAt)

	default:
		return false
	}
}

// entityIDs collects the distinct entity ids referenced by the triplets.
func entityIDs(triplets []*types.Triplet) []int64 {
	set := make(map[int64]struct{}, 2*len(triplets))
	for _, t := range triplets {
		if t == nil {
			continue
		}
		set[t.SubjectID] = struct{}{}
		set[t.ObjectID] = struct{}{}
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// capBySimilarity keeps the k candidates most similar to the query vector.
// Candidates without a comparable embedding rank below every scored one,
// and ties keep their retrieval order, so selection is deterministic.
func capBySimilarity(candidates []Candidate, queryVec []float32, k int) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	scored := make([]utils.ScoredItem[Candidate], 0, len(candidates))
	for _, c := range candidates {
		rank := -2.0 // below any real cosine
		if len(queryVec) > 0 && len(c.Fact.Embedding) > 0 {
			c.Score = utils.CosineSimilarity(queryVec, c.Fact.Embedding)
			rank = c.Score
		}
		scored = append(scored, utils.ScoredItem[Candidate]{Item: c, Score: rank})
	}

	top := utils.TopKByScore(scored, k)
	out := make([]Candidate, 0, len(top))
	for _, s := range top {
		out = append(out, s.Item)
	}
	return out
}
