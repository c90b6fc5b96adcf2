package oracle

import (
	"time"

	"github.com/soundprediction/reconcile/pkg/types"
)

// UnknownTime is the placeholder used when a fact has no bound on one side of
// its validity window.
const UnknownTime = "unknown"

// Summary is the flattened view of a (fact, triplet) pair handed to the
// oracle. Validity bounds are RFC 3339 strings so the judgment prompt never
// carries a zero time that could be mistaken for a real date.
type Summary struct {
	FactID    int64  `json:"fact_id"`
	Text      string `json:"text"`
	Predicate string `json:"predicate"`
	ValidAt   string `json:"valid_at"`
	InvalidAt string `json:"invalid_at"`
}

// BuildSummary flattens a fact and its triplet into a Summary. A nil triplet
// leaves the predicate empty; nil validity bounds become "unknown".
func BuildSummary(fact *types.Fact, triplet *types.Triplet) Summary {
	s := Summary{
		FactID:    fact.ID,
		Text:      fact.Text,
		ValidAt:   formatBound(fact.ValidAt),
		InvalidAt: formatBound(fact.InvalidAt),
	}
	if triplet != nil {
		s.Predicate = triplet.Predicate
	}
	return s
}

func formatBound(t *time.Time) string {
	if t == nil {
		return UnknownTime
	}
	return t.UTC().Format(time.RFC3339)
}
