package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

// Neo4jStore implements Store on a Neo4j server. Entities and facts are
// nodes; each triplet is an ASSERTS relationship between its subject and
// object entity. Ids are allocated from Sequence nodes incremented inside
// write transactions, and timestamps are stored as RFC3339 strings.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

var _ Store = (*Neo4jStore)(nil)

// NewNeo4jStore connects to a Neo4j server, e.g. uri "bolt://localhost:7687".
// An empty database name defaults to "neo4j".
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{client: driver, database: database}, nil
}

func (n *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
}

// Initialize creates the uniqueness constraints and lookup indexes.
func (n *Neo4jStore) Initialize(ctx context.Context) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE CONSTRAINT fact_id IF NOT EXISTS FOR (f:Fact) REQUIRE f.id IS UNIQUE`,
		`CREATE INDEX entity_slug IF NOT EXISTS FOR (e:Entity) ON (e.group_id, e.type, e.canonical_slug)`,
		`CREATE INDEX entity_name IF NOT EXISTS FOR (e:Entity) ON (e.group_id, e.type, e.name)`,
		`CREATE INDEX fact_group IF NOT EXISTS FOR (f:Fact) ON (f.group_id)`,
	}
	for _, stmt := range statements {
		if _, err := neo4j.ExecuteQuery(ctx, n.client, stmt, nil,
			neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(n.database)); err != nil {
			return fmt.Errorf("failed to initialize neo4j schema: %w", err)
		}
	}
	return nil
}

// Close shuts down the underlying driver.
func (n *Neo4jStore) Close() error {
	return n.client.Close(context.Background())
}

// --- property conversion -------------------------------------------------

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func propInt64(props map[string]any, key string) int64 {
	i, _ := props[key].(int64)
	return i
}

func propTime(props map[string]any, key string) *time.Time {
	v, ok := props[key]
	if !ok {
		return nil
	}
	t, err := utils.ParseDBTime(v)
	if err != nil {
		return nil
	}
	return t
}

func entityProps(e *types.Entity) map[string]any {
	props := map[string]any{
		"id":             e.ID,
		"name":           e.Name,
		"canonical_slug": e.CanonicalSlug,
		"type":           e.Type,
		"description":    e.Description,
		"group_id":       e.GroupID,
		"created_at":     e.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if e.ResolvedID != nil {
		props["resolved_id"] = *e.ResolvedID
	}
	return props
}

func entityFromNode(node dbtype.Node) *types.Entity {
	props := node.Props
	e := &types.Entity{
		ID:            propInt64(props, "id"),
		Name:          propString(props, "name"),
		CanonicalSlug: propString(props, "canonical_slug"),
		Type:          propString(props, "type"),
		Description:   propString(props, "description"),
		GroupID:       propString(props, "group_id"),
	}
	if id, ok := props["resolved_id"].(int64); ok {
		e.ResolvedID = &id
	}
	if t := propTime(props, "created_at"); t != nil {
		e.CreatedAt = *t
	}
	if t := propTime(props, "updated_at"); t != nil {
		e.UpdatedAt = *t
	}
	return e
}

func factProps(f *types.Fact) map[string]any {
	props := map[string]any{
		"id":             f.ID,
		"text":           f.Text,
		"classification": string(f.Classification),
		"temporal_class": string(f.TemporalClass),
		"group_id":       f.GroupID,
		"created_at":     f.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":     f.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if f.ValidAt != nil {
		props["valid_at"] = f.ValidAt.UTC().Format(time.RFC3339)
	}
	if f.InvalidAt != nil {
		props["invalid_at"] = f.InvalidAt.UTC().Format(time.RFC3339)
	}
	if f.InvalidatedBy != nil {
		props["invalidated_by"] = *f.InvalidatedBy
	}
	if len(f.Embedding) > 0 {
		embedding := make([]float64, len(f.Embedding))
		for i, v := range f.Embedding {
			embedding[i] = float64(v)
		}
		props["embedding"] = embedding
	}
	if len(f.TripletIDs) > 0 {
		props["triplet_ids"] = f.TripletIDs
	}
	return props
}

func factFromNode(node dbtype.Node) *types.Fact {
	props := node.Props
	f := &types.Fact{
		ID:             propInt64(props, "id"),
		Text:           propString(props, "text"),
		Classification: types.Classification(propString(props, "classification")),
		TemporalClass:  types.TemporalClass(propString(props, "temporal_class")),
		GroupID:        propString(props, "group_id"),
		ValidAt:        propTime(props, "valid_at"),
		InvalidAt:      propTime(props, "invalid_at"),
	}
	if id, ok := props["invalidated_by"].(int64); ok {
		f.InvalidatedBy = &id
	}
	if t := propTime(props, "created_at"); t != nil {
		f.CreatedAt = *t
	}
	if t := propTime(props, "updated_at"); t != nil {
		f.UpdatedAt = *t
	}
	if values, ok := props["embedding"].([]any); ok {
		embedding := make([]float32, 0, len(values))
		for _, v := range values {
			if fv, ok := v.(float64); ok {
				embedding = append(embedding, float32(fv))
			}
		}
		f.Embedding = embedding
	}
	if values, ok := props["triplet_ids"].([]any); ok {
		ids := make([]int64, 0, len(values))
		for _, v := range values {
			if iv, ok := v.(int64); ok {
				ids = append(ids, iv)
			}
		}
		f.TripletIDs = ids
	}
	return f
}

func tripletProps(t *types.Triplet) map[string]any {
	props := map[string]any{
		"id":         t.ID,
		"subject_id": t.SubjectID,
		"predicate":  t.Predicate,
		"object_id":  t.ObjectID,
		"fact_id":    t.FactID,
		"group_id":   t.GroupID,
	}
	if t.Value != nil {
		props["value"] = *t.Value
	}
	return props
}

func tripletFromRelationship(rel dbtype.Relationship) *types.Triplet {
	props := rel.Props
	t := &types.Triplet{
		ID:        propInt64(props, "id"),
		SubjectID: propInt64(props, "subject_id"),
		Predicate: propString(props, "predicate"),
		ObjectID:  propInt64(props, "object_id"),
		FactID:    propInt64(props, "fact_id"),
		GroupID:   propString(props, "group_id"),
	}
	if v, ok := props["value"].(float64); ok {
		t.Value = &v
	}
	return t
}

// --- sequences -----------------------------------------------------------

// nextSequenceBlock reserves count ids from the named sequence node and
// returns them in ascending order.
func nextSequenceBlock(ctx context.Context, tx neo4j.ManagedTransaction, name string, count int) ([]int64, error) {
	ids := make([]int64, 0, count)
	if count <= 0 {
		return ids, nil
	}

	res, err := tx.Run(ctx, `
		MERGE (s:Sequence {name: $name})
		ON CREATE SET s.value = 0
		SET s.value = s.value + $count
		RETURN s.value AS value`,
		map[string]any{"name": name, "count": count})
	if err != nil {
		return nil, err
	}
	record, err := res.Single(ctx)
	if err != nil {
		return nil, err
	}
	value, _ := record.Get("value")
	high, ok := value.(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected sequence value type %T", value)
	}
	for id := high - int64(count) + 1; id <= high; id++ {
		ids = append(ids, id)
	}
	return ids, nil
}

func slugTaken(ctx context.Context, tx neo4j.ManagedTransaction, groupID, entityType, slug string, excludeID int64) (bool, error) {
	res, err := tx.Run(ctx, `
		MATCH (e:Entity {group_id: $group_id, type: $type, canonical_slug: $slug})
		WHERE e.resolved_id IS NULL AND e.id <> $exclude
		RETURN e.id LIMIT 1`,
		map[string]any{"group_id": groupID, "type": entityType, "slug": slug, "exclude": excludeID})
	if err != nil {
		return false, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// --- entity operations ---------------------------------------------------

// readEntities runs a query expected to return entity nodes under alias "e".
func (n *Neo4jStore) readEntities(ctx context.Context, query string, params map[string]any) ([]*types.Entity, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records, _ := result.([]*db.Record)
	entities := make([]*types.Entity, 0, len(records))
	for _, record := range records {
		value, found := record.Get("e")
		if !found {
			continue
		}
		node, ok := value.(dbtype.Node)
		if !ok {
			return nil, fmt.Errorf("unexpected entity record type %T", value)
		}
		entities = append(entities, entityFromNode(node))
	}
	return entities, nil
}

func (n *Neo4jStore) GetByCanonical(ctx context.Context, groupID, entityType, slug string) (*types.Entity, error) {
	entities, err := n.readEntities(ctx, `
		MATCH (e:Entity {group_id: $group_id, type: $type, canonical_slug: $slug})
		WHERE e.resolved_id IS NULL
		RETURN e LIMIT 1`,
		map[string]any{"group_id": groupID, "type": entityType, "slug": slug})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, ErrNotFound
	}
	return entities[0], nil
}

func (n *Neo4jStore) GetByName(ctx context.Context, groupID, entityType, name string) (*types.Entity, error) {
	// Live records sort before aliases, then lowest id.
	entities, err := n.readEntities(ctx, `
		MATCH (e:Entity {group_id: $group_id, type: $type, name: $name})
		RETURN e
		ORDER BY (CASE WHEN e.resolved_id IS NULL THEN 0 ELSE 1 END), e.id
		LIMIT 1`,
		map[string]any{"group_id": groupID, "type": entityType, "name": name})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, ErrNotFound
	}
	return entities[0], nil
}

func (n *Neo4jStore) GetByID(ctx context.Context, id int64) (*types.Entity, error) {
	entities, err := n.readEntities(ctx,
		`MATCH (e:Entity {id: $id}) RETURN e LIMIT 1`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("entity %d: %w", id, ErrNotFound)
	}
	return entities[0], nil
}

func (n *Neo4jStore) ListEntities(ctx context.Context, groupID, entityType string) ([]*types.Entity, error) {
	return n.readEntities(ctx, `
		MATCH (e:Entity {group_id: $group_id})
		WHERE $type = '' OR e.type = $type
		RETURN e ORDER BY e.id`,
		map[string]any{"group_id": groupID, "type": entityType})
}

func (n *Neo4jStore) Create(ctx context.Context, entity *types.Entity) error {
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if !entity.IsAlias() && entity.CanonicalSlug != "" {
			taken, err := slugTaken(ctx, tx, entity.GroupID, entity.Type, entity.CanonicalSlug, 0)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateSlug, entity.CanonicalSlug)
			}
		}

		ids, err := nextSequenceBlock(ctx, tx, "entity", 1)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		entity.ID = ids[0]
		entity.CreatedAt = now
		entity.UpdatedAt = now

		_, err = tx.Run(ctx, `CREATE (e:Entity) SET e = $props`,
			map[string]any{"props": entityProps(entity)})
		return nil, err
	})
	return err
}

func (n *Neo4jStore) Update(ctx context.Context, entity *types.Entity) error {
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {id: $id}) RETURN e LIMIT 1`,
			map[string]any{"id": entity.ID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("entity %d: %w", entity.ID, ErrNotFound)
		}
		if value, found := records[0].Get("e"); found {
			if node, ok := value.(dbtype.Node); ok {
				if t := propTime(node.Props, "created_at"); t != nil {
					entity.CreatedAt = *t
				}
			}
		}

		if !entity.IsAlias() && entity.CanonicalSlug != "" {
			taken, err := slugTaken(ctx, tx, entity.GroupID, entity.Type, entity.CanonicalSlug, entity.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateSlug, entity.CanonicalSlug)
			}
		}

		entity.UpdatedAt = time.Now().UTC()
		_, err = tx.Run(ctx, `MATCH (e:Entity {id: $id}) SET e = $props`,
			map[string]any{"id": entity.ID, "props": entityProps(entity)})
		return nil, err
	})
	return err
}

// --- fact operations -----------------------------------------------------

func (n *Neo4jStore) AllocateIDs(ctx context.Context, factCount, tripletCount int) ([]int64, []int64, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	var factIDs, tripletIDs []int64
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var err error
		if factIDs, err = nextSequenceBlock(ctx, tx, "fact", factCount); err != nil {
			return nil, err
		}
		if tripletIDs, err = nextSequenceBlock(ctx, tx, "triplet", tripletCount); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to allocate ids: %w", err)
	}
	return factIDs, tripletIDs, nil
}

func (n *Neo4jStore) ListRelatedByEntities(ctx context.Context, groupID string, entityIDs []int64, classifications []types.Classification) ([]Related, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	classes := make([]string, len(classifications))
	for i, c := range classifications {
		classes[i] = string(c)
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:Entity)-[r:ASSERTS]->(o:Entity)
			WHERE r.group_id = $group_id AND (s.id IN $entity_ids OR o.id IN $entity_ids)
			MATCH (f:Fact {id: r.fact_id})
			WHERE size($classifications) = 0 OR f.classification IN $classifications
			RETURN r, f ORDER BY r.id`,
			map[string]any{
				"group_id":        groupID,
				"entity_ids":      entityIDs,
				"classifications": classes,
			})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records, _ := result.([]*db.Record)
	related := make([]Related, 0, len(records))
	for _, record := range records {
		relValue, _ := record.Get("r")
		factValue, _ := record.Get("f")
		rel, relOK := relValue.(dbtype.Relationship)
		node, nodeOK := factValue.(dbtype.Node)
		if !relOK || !nodeOK {
			return nil, fmt.Errorf("unexpected related record types %T, %T", relValue, factValue)
		}
		related = append(related, Related{Triplet: tripletFromRelationship(rel), Fact: factFromNode(node)})
	}
	return related, nil
}

// NearestByEmbedding loads the group's embedded facts and ranks them in
// process, matching the other backends.
func (n *Neo4jStore) NearestByEmbedding(ctx context.Context, groupID string, vector []float32, k int) ([]Related, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (f:Fact {group_id: $group_id})
			WHERE f.embedding IS NOT NULL
			RETURN f ORDER BY f.id`,
			map[string]any{"group_id": groupID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		var scored []utils.ScoredItem[*types.Fact]
		for _, record := range records {
			value, found := record.Get("f")
			if !found {
				continue
			}
			node, ok := value.(dbtype.Node)
			if !ok {
				return nil, fmt.Errorf("unexpected fact record type %T", value)
			}
			fact := factFromNode(node)
			if len(fact.Embedding) == 0 || len(fact.TripletIDs) == 0 {
				continue
			}
			scored = append(scored, utils.ScoredItem[*types.Fact]{
				Item:  fact,
				Score: utils.CosineSimilarity(vector, fact.Embedding),
			})
		}

		var related []Related
		for _, s := range utils.TopKByScore(scored, k) {
			res, err := tx.Run(ctx, `MATCH ()-[r:ASSERTS {id: $id}]->() RETURN r LIMIT 1`,
				map[string]any{"id": s.Item.TripletIDs[0]})
			if err != nil {
				return nil, err
			}
			tripletRecords, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			if len(tripletRecords) == 0 {
				continue
			}
			relValue, _ := tripletRecords[0].Get("r")
			rel, ok := relValue.(dbtype.Relationship)
			if !ok {
				return nil, fmt.Errorf("unexpected triplet record type %T", relValue)
			}
			related = append(related, Related{Triplet: tripletFromRelationship(rel), Fact: s.Item})
		}
		return related, nil
	})
	if err != nil {
		return nil, err
	}
	related, _ := result.([]Related)
	return related, nil
}

func (n *Neo4jStore) GetFact(ctx context.Context, id int64) (*types.Fact, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (f:Fact {id: $id}) RETURN f LIMIT 1`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records, _ := result.([]*db.Record)
	if len(records) == 0 {
		return nil, fmt.Errorf("fact %d: %w", id, ErrNotFound)
	}
	value, _ := records[0].Get("f")
	node, ok := value.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected fact record type %T", value)
	}
	return factFromNode(node), nil
}

func (n *Neo4jStore) UpdateInvalidation(ctx context.Context, factID int64, invalidAt *time.Time, invalidatedBy *int64) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, applyOutcomeTx(ctx, tx, factID, invalidAt, invalidatedBy, false)
	})
	return err
}

// applyOutcomeTx rewrites a fact's invalidation marker. Cypher removes a
// property when it is set to null, so nil pointers map straight through.
func applyOutcomeTx(ctx context.Context, tx neo4j.ManagedTransaction, factID int64, invalidAt *time.Time, invalidatedBy *int64, dangling bool) error {
	params := map[string]any{
		"id":             factID,
		"invalid_at":     nil,
		"invalidated_by": nil,
		"updated_at":     time.Now().UTC().Format(time.RFC3339),
	}
	if invalidAt != nil {
		params["invalid_at"] = invalidAt.UTC().Format(time.RFC3339)
	}
	if invalidatedBy != nil {
		params["invalidated_by"] = *invalidatedBy
	}

	res, err := tx.Run(ctx, `
		MATCH (f:Fact {id: $id})
		SET f.invalid_at = $invalid_at,
		    f.invalidated_by = $invalidated_by,
		    f.updated_at = $updated_at
		RETURN f.id`, params)
	if err != nil {
		return err
	}
	if _, err := res.Single(ctx); err != nil {
		if dangling {
			return fmt.Errorf("outcome references fact %d: %w", factID, ErrDanglingReference)
		}
		return fmt.Errorf("fact %d: %w", factID, ErrNotFound)
	}
	return nil
}

func (n *Neo4jStore) ApplyReconciliation(ctx context.Context, facts []*types.Fact, triplets []*types.Triplet, outcomes []types.InvalidationOutcome) error {
	now := time.Now().UTC()
	for _, f := range facts {
		if f.ID == 0 {
			return fmt.Errorf("fact %q: %w", f.Text, ErrMissingID)
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("fact %d: %w", f.ID, err)
		}
	}
	for _, t := range triplets {
		if t.ID == 0 {
			return fmt.Errorf("triplet %q: %w", t.Predicate, ErrMissingID)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("triplet %d: %w", t.ID, err)
		}
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, f := range facts {
			c := f.Clone()
			if c.CreatedAt.IsZero() {
				c.CreatedAt = now
			}
			c.UpdatedAt = now
			if _, err := tx.Run(ctx, `CREATE (f:Fact) SET f = $props`,
				map[string]any{"props": factProps(c)}); err != nil {
				return nil, fmt.Errorf("failed to create fact %d: %w", c.ID, err)
			}
		}
		for _, t := range triplets {
			res, err := tx.Run(ctx, `
				MATCH (s:Entity {id: $subject_id})
				MATCH (o:Entity {id: $object_id})
				CREATE (s)-[r:ASSERTS]->(o)
				SET r = $props
				RETURN r.id`,
				map[string]any{
					"subject_id": t.SubjectID,
					"object_id":  t.ObjectID,
					"props":      tripletProps(t),
				})
			if err != nil {
				return nil, fmt.Errorf("failed to create triplet %d: %w", t.ID, err)
			}
			if _, err := res.Single(ctx); err != nil {
				return nil, fmt.Errorf("triplet %d references entities %d, %d: %w",
					t.ID, t.SubjectID, t.ObjectID, ErrDanglingReference)
			}
		}
		for _, o := range outcomes {
			if err := applyOutcomeTx(ctx, tx, o.FactID, o.NewInvalidAt, o.InvalidatedBy, true); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (n *Neo4jStore) ListFacts(ctx context.Context, groupID string) ([]*types.Fact, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (f:Fact {group_id: $group_id}) RETURN f ORDER BY f.id`,
			map[string]any{"group_id": groupID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records, _ := result.([]*db.Record)
	facts := make([]*types.Fact, 0, len(records))
	for _, record := range records {
		value, found := record.Get("f")
		if !found {
			continue
		}
		node, ok := value.(dbtype.Node)
		if !ok {
			return nil, fmt.Errorf("unexpected fact record type %T", value)
		}
		facts = append(facts, factFromNode(node))
	}
	return facts, nil
}

func (n *Neo4jStore) ListTriplets(ctx context.Context, groupID string) ([]*types.Triplet, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH ()-[r:ASSERTS]->()
			WHERE r.group_id = $group_id
			RETURN r ORDER BY r.id`,
			map[string]any{"group_id": groupID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records, _ := result.([]*db.Record)
	triplets := make([]*types.Triplet, 0, len(records))
	for _, record := range records {
		value, found := record.Get("r")
		if !found {
			continue
		}
		rel, ok := value.(dbtype.Relationship)
		if !ok {
			return nil, fmt.Errorf("unexpected triplet record type %T", value)
		}
		triplets = append(triplets, tripletFromRelationship(rel))
	}
	return triplets, nil
}
