// Package types defines the core data structures for the reconciliation
// engine: canonical entities, temporal facts, triplets linking them, and the
// ephemeral outcome records produced by invalidation. It also carries the
// chat interchange types shared by the nlp and oracle packages.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation errors
var (
	ErrEmptyName             = errors.New("name cannot be empty")
	ErrEmptyType             = errors.New("entity type cannot be empty")
	ErrEmptyText             = errors.New("fact text cannot be empty")
	ErrEmptyPredicate        = errors.New("predicate cannot be empty")
	ErrEmptyGroupID          = errors.New("group_id cannot be empty")
	ErrUnknownClassification = errors.New("unknown classification")
	ErrUnknownTemporalClass  = errors.New("unknown temporal class")
	ErrAtemporalWindow       = errors.New("atemporal facts cannot carry a validity window")
	ErrInvalidWindow         = errors.New("invalid_at cannot precede valid_at")
)

// Classification categorizes a statement by its epistemic status. Only
// statements classified as facts take part in invalidation.
type Classification string

const (
	ClassificationFact       Classification = "fact"
	ClassificationOpinion    Classification = "opinion"
	ClassificationPrediction Classification = "prediction"
)

// ParseClassification converts free text into a Classification.
func ParseClassification(s string) (Classification, error) {
	c := Classification(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ClassificationFact, ClassificationOpinion, ClassificationPrediction:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownClassification, s)
	}
}

// TemporalClass describes how a fact relates to time. The set is closed;
// consumers switch exhaustively over these three values.
type TemporalClass string

const (
	// TemporalAtemporal marks facts that hold independent of time. They
	// never carry a validity window and never take part in invalidation.
	TemporalAtemporal TemporalClass = "atemporal"
	// TemporalStatic marks facts true at a single point in time.
	TemporalStatic TemporalClass = "static"
	// TemporalDynamic marks facts that hold over an interval and may stop
	// holding when contradicted.
	TemporalDynamic TemporalClass = "dynamic"
)

// ParseTemporalClass converts free text into a TemporalClass.
func ParseTemporalClass(s string) (TemporalClass, error) {
	tc := TemporalClass(strings.ToLower(strings.TrimSpace(s)))
	switch tc {
	case TemporalAtemporal, TemporalStatic, TemporalDynamic:
		return tc, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTemporalClass, s)
	}
}

// Entity is a canonical node in the knowledge graph. The canonical slug is
// unique per (group, type) among live entities; a merged duplicate keeps its
// record but points at the survivor through ResolvedID.
type Entity struct {
	ID            int64     `json:"id" mapstructure:"id"`
	Name          string    `json:"name" mapstructure:"name"`
	CanonicalSlug string    `json:"canonical_slug" mapstructure:"canonical_slug"`
	Type          string    `json:"type" mapstructure:"type"`
	Description   string    `json:"description,omitempty" mapstructure:"description"`
	ResolvedID    *int64    `json:"resolved_id,omitempty" mapstructure:"resolved_id"`
	GroupID       string    `json:"group_id" mapstructure:"group_id"`
	CreatedAt     time.Time `json:"created_at" mapstructure:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" mapstructure:"updated_at"`
}

// IsAlias reports whether the entity has been merged into another canonical.
func (e *Entity) IsAlias() bool {
	return e.ResolvedID != nil
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	c := *e
	if e.ResolvedID != nil {
		id := *e.ResolvedID
		c.ResolvedID = &id
	}
	return &c
}

// Validate checks the fields required before persisting an entity.
func (e *Entity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(e.Type) == "" {
		return ErrEmptyType
	}
	if e.GroupID == "" {
		return ErrEmptyGroupID
	}
	return nil
}

// Fact is a time-bounded statement extracted from a document. The engine
// only ever mutates InvalidAt and InvalidatedBy; facts are never deleted,
// only marked invalid, so history stays queryable.
type Fact struct {
	ID             int64          `json:"id" mapstructure:"id"`
	Text           string         `json:"text" mapstructure:"text"`
	Classification Classification `json:"classification" mapstructure:"classification"`
	TemporalClass  TemporalClass  `json:"temporal_class" mapstructure:"temporal_class"`
	ValidAt        *time.Time     `json:"valid_at,omitempty" mapstructure:"valid_at"`
	InvalidAt      *time.Time     `json:"invalid_at,omitempty" mapstructure:"invalid_at"`
	Embedding      []float32      `json:"embedding,omitempty" mapstructure:"embedding"`
	TripletIDs     []int64        `json:"triplet_ids,omitempty" mapstructure:"triplet_ids"`
	InvalidatedBy  *int64         `json:"invalidated_by,omitempty" mapstructure:"invalidated_by"`
	GroupID        string         `json:"group_id" mapstructure:"group_id"`
	CreatedAt      time.Time      `json:"created_at" mapstructure:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" mapstructure:"updated_at"`
}

// Validate checks internal consistency of a fact record.
func (f *Fact) Validate() error {
	if strings.TrimSpace(f.Text) == "" {
		return ErrEmptyText
	}
	if f.GroupID == "" {
		return ErrEmptyGroupID
	}
	if _, err := ParseClassification(string(f.Classification)); err != nil {
		return err
	}
	if _, err := ParseTemporalClass(string(f.TemporalClass)); err != nil {
		return err
	}
	if f.TemporalClass == TemporalAtemporal && (f.ValidAt != nil || f.InvalidAt != nil) {
		return ErrAtemporalWindow
	}
	if f.ValidAt != nil && f.InvalidAt != nil && f.InvalidAt.Before(*f.ValidAt) {
		return fmt.Errorf("%w: valid_at=%v invalid_at=%v", ErrInvalidWindow, *f.ValidAt, *f.InvalidAt)
	}
	return nil
}

// Clone returns a deep copy of the fact. The engine works on copies so that
// stored records stay untouched until outcomes are applied transactionally.
func (f *Fact) Clone() *Fact {
	c := *f
	if f.ValidAt != nil {
		t := *f.ValidAt
		c.ValidAt = &t
	}
	if f.InvalidAt != nil {
		t := *f.InvalidAt
		c.InvalidAt = &t
	}
	if f.InvalidatedBy != nil {
		id := *f.InvalidatedBy
		c.InvalidatedBy = &id
	}
	c.Embedding = append([]float32(nil), f.Embedding...)
	c.TripletIDs = append([]int64(nil), f.TripletIDs...)
	return &c
}

// Triplet links a subject and an object entity through a predicate. Each
// triplet belongs to exactly one fact and shares its lifecycle; the engine
// never mutates triplets.
type Triplet struct {
	ID        int64    `json:"id" mapstructure:"id"`
	SubjectID int64    `json:"subject_id" mapstructure:"subject_id"`
	Predicate string   `json:"predicate" mapstructure:"predicate"`
	ObjectID  int64    `json:"object_id" mapstructure:"object_id"`
	FactID    int64    `json:"fact_id" mapstructure:"fact_id"`
	Value     *float64 `json:"value,omitempty" mapstructure:"value"`
	GroupID   string   `json:"group_id" mapstructure:"group_id"`
}

// Clone returns a copy of the triplet.
func (t *Triplet) Clone() *Triplet {
	c := *t
	if t.Value != nil {
		v := *t.Value
		c.Value = &v
	}
	return &c
}

// Validate checks the fields required before persisting a triplet.
func (t *Triplet) Validate() error {
	if strings.TrimSpace(t.Predicate) == "" {
		return ErrEmptyPredicate
	}
	if t.GroupID == "" {
		return ErrEmptyGroupID
	}
	return nil
}

// InvalidationOutcome is the result of a single invalidation decision. It is
// ephemeral: outcomes are folded into fact updates after conflict resolution
// and never stored as records of their own.
type InvalidationOutcome struct {
	FactID        int64      `json:"fact_id"`
	NewInvalidAt  *time.Time `json:"new_invalid_at,omitempty"`
	InvalidatedBy *int64     `json:"invalidated_by,omitempty"`
}
