package types

import (
	"fmt"
	"time"
)

// ExtractedEntity is an entity mention as produced by an upstream extraction
// pipeline, before canonicalization has assigned it a persistent identity.
type ExtractedEntity struct {
	// Name is the surface form of the mention, verbatim from the source.
	Name string `json:"name" yaml:"name"`

	// Type is the entity type tag assigned by the extractor.
	Type string `json:"type" yaml:"type"`

	// Description is an optional short gloss of the entity.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ExtractedTriplet references entities by surface name; names are resolved
// to canonical ids during ingestion.
type ExtractedTriplet struct {
	SubjectName string   `json:"subject" yaml:"subject"`
	Predicate   string   `json:"predicate" yaml:"predicate"`
	ObjectName  string   `json:"object" yaml:"object"`
	Value       *float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// ExtractedFact is a statement as produced by extraction, together with the
// triplets that express it structurally.
type ExtractedFact struct {
	Text           string             `json:"text" yaml:"text"`
	Classification Classification     `json:"classification" yaml:"classification"`
	TemporalClass  TemporalClass      `json:"temporal_class" yaml:"temporal_class"`
	ValidAt        *time.Time         `json:"valid_at,omitempty" yaml:"valid_at,omitempty"`
	InvalidAt      *time.Time         `json:"invalid_at,omitempty" yaml:"invalid_at,omitempty"`
	Embedding      []float32          `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	Triplets       []ExtractedTriplet `json:"triplets" yaml:"triplets"`
}

// ExtractionBatch is one ingestion unit: the entities and facts extracted
// from a single document. Reconciliation and persistence treat the batch as
// one transaction boundary.
type ExtractionBatch struct {
	// DocumentID correlates the batch with its source document.
	DocumentID string `json:"document_id" yaml:"document_id"`

	// GroupID scopes every record created from this batch.
	GroupID string `json:"group_id" yaml:"group_id"`

	Entities []ExtractedEntity `json:"entities" yaml:"entities"`
	Facts    []ExtractedFact   `json:"facts" yaml:"facts"`
}

// Validate checks the batch before ingestion. Entity names referenced by
// triplets must appear in the batch's entity list.
func (b *ExtractionBatch) Validate() error {
	if b.GroupID == "" {
		return ErrEmptyGroupID
	}
	known := make(map[string]struct{}, len(b.Entities))
	for i, e := range b.Entities {
		if e.Name == "" {
			return fmt.Errorf("entity %d: %w", i, ErrEmptyName)
		}
		if e.Type == "" {
			return fmt.Errorf("entity %d (%s): %w", i, e.Name, ErrEmptyType)
		}
		known[e.Name] = struct{}{}
	}
	for i, f := range b.Facts {
		if f.Text == "" {
			return fmt.Errorf("fact %d: %w", i, ErrEmptyText)
		}
		if _, err := ParseClassification(string(f.Classification)); err != nil {
			return fmt.Errorf("fact %d: %w", i, err)
		}
		if _, err := ParseTemporalClass(string(f.TemporalClass)); err != nil {
			return fmt.Errorf("fact %d: %w", i, err)
		}
		for j, t := range f.Triplets {
			if t.Predicate == "" {
				return fmt.Errorf("fact %d triplet %d: %w", i, j, ErrEmptyPredicate)
			}
			if _, ok := known[t.SubjectName]; !ok {
				return fmt.Errorf("fact %d triplet %d: subject %q not in batch entities", i, j, t.SubjectName)
			}
			if _, ok := known[t.ObjectName]; !ok {
				return fmt.Errorf("fact %d triplet %d: object %q not in batch entities", i, j, t.ObjectName)
			}
		}
	}
	return nil
}

// FactCount returns the number of facts in the batch.
func (b *ExtractionBatch) FactCount() int {
	if b == nil {
		return 0
	}
	return len(b.Facts)
}

// TripletCount returns the total number of triplets across all facts.
func (b *ExtractionBatch) TripletCount() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, f := range b.Facts {
		n += len(f.Triplets)
	}
	return n
}

// IsEmpty reports whether the batch carries no entities and no facts.
func (b *ExtractionBatch) IsEmpty() bool {
	return b == nil || (len(b.Entities) == 0 && len(b.Facts) == 0)
}
