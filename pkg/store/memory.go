package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

// MemoryStore is the in-process reference implementation of Store. Records
// are deep-copied on the way in and out so callers can never alias stored
// state. Safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	entities map[int64]*types.Entity
	facts    map[int64]*types.Fact
	triplets map[int64]*types.Triplet

	// live (group, type, slug) -> entity id
	slugIndex map[string]int64

	entitySeq  int64
	factSeq    int64
	tripletSeq int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:  make(map[int64]*types.Entity),
		facts:     make(map[int64]*types.Fact),
		triplets:  make(map[int64]*types.Triplet),
		slugIndex: make(map[string]int64),
	}
}

func slugKey(groupID, entityType, slug string) string {
	return groupID + "\x00" + entityType + "\x00" + slug
}

// Initialize is a no-op for the memory backend.
func (m *MemoryStore) Initialize(ctx context.Context) error { return nil }

// Close is a no-op for the memory backend.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetByCanonical(ctx context.Context, groupID, entityType, slug string) (*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.slugIndex[slugKey(groupID, entityType, slug)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.entities[id].Clone(), nil
}

func (m *MemoryStore) GetByName(ctx context.Context, groupID, entityType, name string) (*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *types.Entity
	for _, e := range m.entities {
		if e.GroupID != groupID || e.Type != entityType || e.Name != name {
			continue
		}
		if best == nil || preferEntity(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best.Clone(), nil
}

// preferEntity orders name-lookup hits: live records before aliases, then
// lower ids. Keeps lookups deterministic when a name survives a merge.
func preferEntity(e, over *types.Entity) bool {
	if e.IsAlias() != over.IsAlias() {
		return !e.IsAlias()
	}
	return e.ID < over.ID
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %d: %w", id, ErrNotFound)
	}
	return e.Clone(), nil
}

func (m *MemoryStore) ListEntities(ctx context.Context, groupID, entityType string) ([]*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Entity
	for _, e := range m.entities {
		if e.GroupID != groupID {
			continue
		}
		if entityType != "" && e.Type != entityType {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Create(ctx context.Context, entity *types.Entity) error {
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !entity.IsAlias() && entity.CanonicalSlug != "" {
		if _, taken := m.slugIndex[slugKey(entity.GroupID, entity.Type, entity.CanonicalSlug)]; taken {
			return fmt.Errorf("%w: %q", ErrDuplicateSlug, entity.CanonicalSlug)
		}
	}

	m.entitySeq++
	entity.ID = m.entitySeq
	now := time.Now().UTC()
	entity.CreatedAt = now
	entity.UpdatedAt = now

	m.entities[entity.ID] = entity.Clone()
	if !entity.IsAlias() && entity.CanonicalSlug != "" {
		m.slugIndex[slugKey(entity.GroupID, entity.Type, entity.CanonicalSlug)] = entity.ID
	}
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, entity *types.Entity) error {
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.entities[entity.ID]
	if !ok {
		return fmt.Errorf("entity %d: %w", entity.ID, ErrNotFound)
	}

	if !entity.IsAlias() && entity.CanonicalSlug != "" {
		key := slugKey(entity.GroupID, entity.Type, entity.CanonicalSlug)
		if ownerID, taken := m.slugIndex[key]; taken && ownerID != entity.ID {
			return fmt.Errorf("%w: %q", ErrDuplicateSlug, entity.CanonicalSlug)
		}
	}

	if !old.IsAlias() && old.CanonicalSlug != "" {
		oldKey := slugKey(old.GroupID, old.Type, old.CanonicalSlug)
		if m.slugIndex[oldKey] == old.ID {
			delete(m.slugIndex, oldKey)
		}
	}

	entity.CreatedAt = old.CreatedAt
	entity.UpdatedAt = time.Now().UTC()
	m.entities[entity.ID] = entity.Clone()
	if !entity.IsAlias() && entity.CanonicalSlug != "" {
		m.slugIndex[slugKey(entity.GroupID, entity.Type, entity.CanonicalSlug)] = entity.ID
	}
	return nil
}

func (m *MemoryStore) AllocateIDs(ctx context.Context, factCount, tripletCount int) ([]int64, []int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	factIDs := make([]int64, 0, factCount)
	for i := 0; i < factCount; i++ {
		m.factSeq++
		factIDs = append(factIDs, m.factSeq)
	}
	tripletIDs := make([]int64, 0, tripletCount)
	for i := 0; i < tripletCount; i++ {
		m.tripletSeq++
		tripletIDs = append(tripletIDs, m.tripletSeq)
	}
	return factIDs, tripletIDs, nil
}

func (m *MemoryStore) ListRelatedByEntities(ctx context.Context, groupID string, entityIDs []int64, classifications []types.Classification) ([]Related, error) {
	wanted := make(map[int64]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = struct{}{}
	}
	allowed := make(map[types.Classification]struct{}, len(classifications))
	for _, c := range classifications {
		allowed[c] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var related []Related
	for _, t := range m.triplets {
		if t.GroupID != groupID {
			continue
		}
		if _, subj := wanted[t.SubjectID]; !subj {
			if _, obj := wanted[t.ObjectID]; !obj {
				continue
			}
		}
		fact, ok := m.facts[t.FactID]
		if !ok {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[fact.Classification]; !ok {
				continue
			}
		}
		related = append(related, Related{Triplet: t.Clone(), Fact: fact.Clone()})
	}
	sort.Slice(related, func(i, j int) bool { return related[i].Triplet.ID < related[j].Triplet.ID })
	return related, nil
}

func (m *MemoryStore) NearestByEmbedding(ctx context.Context, groupID string, vector []float32, k int) ([]Related, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.facts))
	for id := range m.facts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var scored []utils.ScoredItem[Related]
	for _, id := range ids {
		fact := m.facts[id]
		if fact.GroupID != groupID || len(fact.Embedding) == 0 || len(fact.TripletIDs) == 0 {
			continue
		}
		triplet, ok := m.triplets[fact.TripletIDs[0]]
		if !ok {
			continue
		}
		scored = append(scored, utils.ScoredItem[Related]{
			Item:  Related{Triplet: triplet, Fact: fact},
			Score: utils.CosineSimilarity(vector, fact.Embedding),
		})
	}

	top := utils.TopKByScore(scored, k)
	related := make([]Related, 0, len(top))
	for _, s := range top {
		related = append(related, Related{Triplet: s.Item.Triplet.Clone(), Fact: s.Item.Fact.Clone()})
	}
	return related, nil
}

func (m *MemoryStore) GetFact(ctx context.Context, id int64) (*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.facts[id]
	if !ok {
		return nil, fmt.Errorf("fact %d: %w", id, ErrNotFound)
	}
	return f.Clone(), nil
}

func (m *MemoryStore) UpdateInvalidation(ctx context.Context, factID int64, invalidAt *time.Time, invalidatedBy *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateInvalidationLocked(factID, invalidAt, invalidatedBy)
}

func (m *MemoryStore) updateInvalidationLocked(factID int64, invalidAt *time.Time, invalidatedBy *int64) error {
	fact, ok := m.facts[factID]
	if !ok {
		return fmt.Errorf("fact %d: %w", factID, ErrNotFound)
	}
	if invalidAt != nil {
		t := *invalidAt
		fact.InvalidAt = &t
	} else {
		fact.InvalidAt = nil
	}
	if invalidatedBy != nil {
		id := *invalidatedBy
		fact.InvalidatedBy = &id
	} else {
		fact.InvalidatedBy = nil
	}
	fact.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ApplyReconciliation(ctx context.Context, facts []*types.Fact, triplets []*types.Triplet, outcomes []types.InvalidationOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the whole write before touching state so a failure leaves
	// the store unchanged.
	incoming := make(map[int64]struct{}, len(facts))
	for _, f := range facts {
		if f.ID == 0 {
			return fmt.Errorf("fact %q: %w", f.Text, ErrMissingID)
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("fact %d: %w", f.ID, err)
		}
		incoming[f.ID] = struct{}{}
	}
	for _, t := range triplets {
		if t.ID == 0 {
			return fmt.Errorf("triplet %q: %w", t.Predicate, ErrMissingID)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("triplet %d: %w", t.ID, err)
		}
		if _, ok := incoming[t.FactID]; !ok {
			if _, stored := m.facts[t.FactID]; !stored {
				return fmt.Errorf("triplet %d references fact %d: %w", t.ID, t.FactID, ErrDanglingReference)
			}
		}
		if _, ok := m.entities[t.SubjectID]; !ok {
			return fmt.Errorf("triplet %d references subject %d: %w", t.ID, t.SubjectID, ErrDanglingReference)
		}
		if _, ok := m.entities[t.ObjectID]; !ok {
			return fmt.Errorf("triplet %d references object %d: %w", t.ID, t.ObjectID, ErrDanglingReference)
		}
	}
	for _, o := range outcomes {
		if _, ok := m.facts[o.FactID]; !ok {
			return fmt.Errorf("outcome references fact %d: %w", o.FactID, ErrDanglingReference)
		}
	}

	now := time.Now().UTC()
	for _, f := range facts {
		c := f.Clone()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		m.facts[c.ID] = c
	}
	for _, t := range triplets {
		m.triplets[t.ID] = t.Clone()
	}
	for _, o := range outcomes {
		if err := m.updateInvalidationLocked(o.FactID, o.NewInvalidAt, o.InvalidatedBy); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) ListFacts(ctx context.Context, groupID string) ([]*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Fact
	for _, f := range m.facts {
		if f.GroupID == groupID {
			out = append(out, f.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListTriplets(ctx context.Context, groupID string) ([]*types.Triplet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Triplet
	for _, t := range m.triplets {
		if t.GroupID == groupID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
