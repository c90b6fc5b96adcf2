package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

// idBandwidth is the lease size for badger sequences. Ids may skip numbers
// across restarts; only uniqueness and monotonicity matter.
const idBandwidth = 128

// Key layout:
//   e:<id>                      -> JSON(Entity)
//   f:<id>                      -> JSON(Fact)
//   t:<id>                      -> JSON(Triplet)
//   se:<group>\x00<type>\x00<slug> -> entity key (live entities only)
//
// Ids are zero-padded so lexicographic iteration order matches numeric id
// order. Scans filter by group in process; reconciliation batches are small.
func entityKey(id int64) []byte  { return []byte(fmt.Sprintf("e:%020d", id)) }
func factKey(id int64) []byte    { return []byte(fmt.Sprintf("f:%020d", id)) }
func tripletKey(id int64) []byte { return []byte(fmt.Sprintf("t:%020d", id)) }

func entitySlugKey(groupID, entityType, slug string) []byte {
	return []byte("se:" + groupID + "\x00" + entityType + "\x00" + slug)
}

// BadgerStore implements Store on an embedded BadgerDB directory. All writes
// of a reconciliation batch share one transaction, so a crash never leaves a
// half-applied batch behind.
type BadgerStore struct {
	db         *badger.DB
	entitySeq  *badger.Sequence
	factSeq    *badger.Sequence
	tripletSeq *badger.Sequence
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a badger database under dataDir.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dataDir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dataDir, err)
	}

	s := &BadgerStore{db: db}
	for _, seq := range []struct {
		key  string
		dest **badger.Sequence
	}{
		{"seq:entity", &s.entitySeq},
		{"seq:fact", &s.factSeq},
		{"seq:triplet", &s.tripletSeq},
	} {
		sq, err := db.GetSequence([]byte(seq.key), idBandwidth)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to open sequence %s: %w", seq.key, err)
		}
		*seq.dest = sq
	}
	return s, nil
}

// Initialize is a no-op; badger needs no schema.
func (b *BadgerStore) Initialize(ctx context.Context) error { return nil }

// Close releases the id sequences and closes the database.
func (b *BadgerStore) Close() error {
	for _, seq := range []*badger.Sequence{b.entitySeq, b.factSeq, b.tripletSeq} {
		if seq != nil {
			_ = seq.Release()
		}
	}
	return b.db.Close()
}

func nextID(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// Sequences start at 0; ids start at 1.
	return int64(n) + 1, nil
}

func badgerGet[T any](txn *badger.Txn, key []byte) (*T, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var v T
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	}); err != nil {
		return nil, err
	}
	return &v, nil
}

func badgerSetJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func (b *BadgerStore) GetByCanonical(ctx context.Context, groupID, entityType, slug string) (*types.Entity, error) {
	var entity *types.Entity
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entitySlugKey(groupID, entityType, slug))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		ref, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		entity, err = badgerGet[types.Entity](txn, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (b *BadgerStore) GetByName(ctx context.Context, groupID, entityType, name string) (*types.Entity, error) {
	var best *types.Entity
	err := b.db.View(func(txn *badger.Txn) error {
		return iterateJSON[types.Entity](txn, []byte("e:"), func(e *types.Entity) error {
			if e.GroupID != groupID || e.Type != entityType || e.Name != name {
				return nil
			}
			if best == nil || preferEntity(e, best) {
				best = e
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (b *BadgerStore) GetByID(ctx context.Context, id int64) (*types.Entity, error) {
	var entity *types.Entity
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		entity, err = badgerGet[types.Entity](txn, entityKey(id))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("entity %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return entity, nil
}

func (b *BadgerStore) ListEntities(ctx context.Context, groupID, entityType string) ([]*types.Entity, error) {
	var out []*types.Entity
	err := b.db.View(func(txn *badger.Txn) error {
		return iterateJSON[types.Entity](txn, []byte("e:"), func(e *types.Entity) error {
			if e.GroupID != groupID {
				return nil
			}
			if entityType != "" && e.Type != entityType {
				return nil
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BadgerStore) Create(ctx context.Context, entity *types.Entity) error {
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	id, err := nextID(b.entitySeq)
	if err != nil {
		return fmt.Errorf("failed to allocate entity id: %w", err)
	}

	now := time.Now().UTC()
	entity.ID = id
	entity.CreatedAt = now
	entity.UpdatedAt = now

	return b.db.Update(func(txn *badger.Txn) error {
		if !entity.IsAlias() && entity.CanonicalSlug != "" {
			key := entitySlugKey(entity.GroupID, entity.Type, entity.CanonicalSlug)
			if _, err := txn.Get(key); err == nil {
				return fmt.Errorf("%w: %q", ErrDuplicateSlug, entity.CanonicalSlug)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(key, entityKey(entity.ID)); err != nil {
				return err
			}
		}
		return badgerSetJSON(txn, entityKey(entity.ID), entity)
	})
}

func (b *BadgerStore) Update(ctx context.Context, entity *types.Entity) error {
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		old, err := badgerGet[types.Entity](txn, entityKey(entity.ID))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("entity %d: %w", entity.ID, ErrNotFound)
			}
			return err
		}

		if !entity.IsAlias() && entity.CanonicalSlug != "" {
			key := entitySlugKey(entity.GroupID, entity.Type, entity.CanonicalSlug)
			item, err := txn.Get(key)
			if err == nil {
				ref, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if string(ref) != string(entityKey(entity.ID)) {
					return fmt.Errorf("%w: %q", ErrDuplicateSlug, entity.CanonicalSlug)
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		if !old.IsAlias() && old.CanonicalSlug != "" {
			if err := txn.Delete(entitySlugKey(old.GroupID, old.Type, old.CanonicalSlug)); err != nil {
				return err
			}
		}

		entity.CreatedAt = old.CreatedAt
		entity.UpdatedAt = time.Now().UTC()
		if !entity.IsAlias() && entity.CanonicalSlug != "" {
			if err := txn.Set(entitySlugKey(entity.GroupID, entity.Type, entity.CanonicalSlug), entityKey(entity.ID)); err != nil {
				return err
			}
		}
		return badgerSetJSON(txn, entityKey(entity.ID), entity)
	})
}

func (b *BadgerStore) AllocateIDs(ctx context.Context, factCount, tripletCount int) ([]int64, []int64, error) {
	factIDs := make([]int64, 0, factCount)
	for i := 0; i < factCount; i++ {
		id, err := nextID(b.factSeq)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to allocate fact id: %w", err)
		}
		factIDs = append(factIDs, id)
	}
	tripletIDs := make([]int64, 0, tripletCount)
	for i := 0; i < tripletCount; i++ {
		id, err := nextID(b.tripletSeq)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to allocate triplet id: %w", err)
		}
		tripletIDs = append(tripletIDs, id)
	}
	return factIDs, tripletIDs, nil
}

func (b *BadgerStore) ListRelatedByEntities(ctx context.Context, groupID string, entityIDs []int64, classifications []types.Classification) ([]Related, error) {
	wanted := make(map[int64]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = struct{}{}
	}
	allowed := make(map[types.Classification]struct{}, len(classifications))
	for _, c := range classifications {
		allowed[c] = struct{}{}
	}

	var related []Related
	err := b.db.View(func(txn *badger.Txn) error {
		return iterateJSON[types.Triplet](txn, []byte("t:"), func(t *types.Triplet) error {
			if t.GroupID != groupID {
				return nil
			}
			if _, subj := wanted[t.SubjectID]; !subj {
				if _, obj := wanted[t.ObjectID]; !obj {
					return nil
				}
			}
			fact, err := badgerGet[types.Fact](txn, factKey(t.FactID))
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return err
			}
			if len(allowed) > 0 {
				if _, ok := allowed[fact.Classification]; !ok {
					return nil
				}
			}
			related = append(related, Related{Triplet: t, Fact: fact})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return related, nil
}

func (b *BadgerStore) NearestByEmbedding(ctx context.Context, groupID string, vector []float32, k int) ([]Related, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	var related []Related
	err := b.db.View(func(txn *badger.Txn) error {
		var scored []utils.ScoredItem[*types.Fact]
		err := iterateJSON[types.Fact](txn, []byte("f:"), func(f *types.Fact) error {
			if f.GroupID != groupID || len(f.Embedding) == 0 || len(f.TripletIDs) == 0 {
				return nil
			}
			scored = append(scored, utils.ScoredItem[*types.Fact]{
				Item:  f,
				Score: utils.CosineSimilarity(vector, f.Embedding),
			})
			return nil
		})
		if err != nil {
			return err
		}
		for _, s := range utils.TopKByScore(scored, k) {
			triplet, err := badgerGet[types.Triplet](txn, tripletKey(s.Item.TripletIDs[0]))
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			related = append(related, Related{Triplet: triplet, Fact: s.Item})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return related, nil
}

func (b *BadgerStore) GetFact(ctx context.Context, id int64) (*types.Fact, error) {
	var fact *types.Fact
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		fact, err = badgerGet[types.Fact](txn, factKey(id))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("fact %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return fact, nil
}

func (b *BadgerStore) UpdateInvalidation(ctx context.Context, factID int64, invalidAt *time.Time, invalidatedBy *int64) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return updateInvalidationTxn(txn, factID, invalidAt, invalidatedBy)
	})
}

func updateInvalidationTxn(txn *badger.Txn, factID int64, invalidAt *time.Time, invalidatedBy *int64) error {
	fact, err := badgerGet[types.Fact](txn, factKey(factID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("fact %d: %w", factID, ErrNotFound)
		}
		return err
	}
	fact.InvalidAt = invalidAt
	fact.InvalidatedBy = invalidatedBy
	fact.UpdatedAt = time.Now().UTC()
	return badgerSetJSON(txn, factKey(factID), fact)
}

func (b *BadgerStore) ApplyReconciliation(ctx context.Context, facts []*types.Fact, triplets []*types.Triplet, outcomes []types.InvalidationOutcome) error {
	return b.db.Update(func(txn *badger.Txn) error {
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
				if _, err := txn.Get(factKey(t.FactID)); err != nil {
					return fmt.Errorf("triplet %d references fact %d: %w", t.ID, t.FactID, ErrDanglingReference)
				}
			}
			for _, entityID := range []int64{t.SubjectID, t.ObjectID} {
				if _, err := txn.Get(entityKey(entityID)); err != nil {
					return fmt.Errorf("triplet %d references entity %d: %w", t.ID, entityID, ErrDanglingReference)
				}
			}
		}
		for _, o := range outcomes {
			if _, err := txn.Get(factKey(o.FactID)); err != nil {
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
			if err := badgerSetJSON(txn, factKey(c.ID), c); err != nil {
				return err
			}
		}
		for _, t := range triplets {
			if err := badgerSetJSON(txn, tripletKey(t.ID), t); err != nil {
				return err
			}
		}
		for _, o := range outcomes {
			if err := updateInvalidationTxn(txn, o.FactID, o.NewInvalidAt, o.InvalidatedBy); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) ListFacts(ctx context.Context, groupID string) ([]*types.Fact, error) {
	var out []*types.Fact
	err := b.db.View(func(txn *badger.Txn) error {
		return iterateJSON[types.Fact](txn, []byte("f:"), func(f *types.Fact) error {
			if f.GroupID == groupID {
				out = append(out, f)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BadgerStore) ListTriplets(ctx context.Context, groupID string) ([]*types.Triplet, error) {
	var out []*types.Triplet
	err := b.db.View(func(txn *badger.Txn) error {
		return iterateJSON[types.Triplet](txn, []byte("t:"), func(t *types.Triplet) error {
			if t.GroupID == groupID {
				out = append(out, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// iterateJSON walks every record under prefix in key order and passes the
// decoded value to fn.
func iterateJSON[T any](txn *badger.Txn, prefix []byte, fn func(*T) error) error {
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var v T
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			return err
		}
		if err := fn(&v); err != nil {
			return err
		}
	}
	return nil
}
