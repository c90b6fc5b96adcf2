// Package canonical resolves entity mentions to canonical entity records.
//
// Resolution is group- and type-scoped. Exact matches go through normalized
// slugs, near matches through fuzzy name clustering, and abbreviations
// through acronym comparison. Losing records are kept and aliased via
// ResolvedID so existing references never break.
package canonical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/soundprediction/reconcile/pkg/normalize"
	"github.com/soundprediction/reconcile/pkg/store"
	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

const (
	// FuzzyMatchThreshold is the minimum partial-ratio score for two names
	// to be considered the same entity.
	FuzzyMatchThreshold = 80.0

	// AcronymMatchThreshold is the minimum score for an abbreviation to
	// match a full name's acronym. Near-equality is required because
	// acronyms carry so little signal.
	AcronymMatchThreshold = 98.0
)

// maxAliasHops bounds ResolvedID chain walks.
const maxAliasHops = 16

// Canonicalizer maps entity mentions onto stored canonical entities. Merges
// never delete records; the losing entity keeps its row and points at the
// survivor through ResolvedID.
type Canonicalizer struct {
	entities store.EntityStore
	logger   *slog.Logger
}

// NewCanonicalizer returns a Canonicalizer backed by the given entity store.
func NewCanonicalizer(entities store.EntityStore, logger *slog.Logger) *Canonicalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Canonicalizer{entities: entities, logger: logger}
}

// SetLogger replaces the canonicalizer's logger.
func (c *Canonicalizer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Canonicalize upserts every mention in the batch and merges mentions that
// name the same real-world entity. It returns a map from mention name to the
// surviving canonical entity, so triplet references can be rewritten to
// canonical ids.
//
// Mentions are resolved in three steps: exact canonical-slug lookup, exact
// name lookup, then creation. Newly created and existing entities of the same
// type are then clustered by name similarity; each cluster elects a medoid,
// settles on one canonical record, and aliases the rest to it. Running the
// same batch twice yields the same map and leaves slugs untouched.
func (c *Canonicalizer) Canonicalize(ctx context.Context, groupID string, batch []types.ExtractedEntity) (map[string]*types.Entity, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}
	if err := utils.ValidateGroupID(groupID); err != nil {
		return nil, err
	}

	resolved := make(map[string]*types.Entity, len(batch))
	byType := make(map[string][]member)
	seen := make(map[int64]bool)

	for i, mention := range batch {
		name := strings.TrimSpace(mention.Name)
		entityType := strings.TrimSpace(mention.Type)
		if name == "" || entityType == "" {
			c.logger.Warn("skipping unusable entity mention",
				"index", i, "name", mention.Name, "type", mention.Type)
			continue
		}
		if prev, ok := resolved[name]; ok {
			if prev.Type != entityType {
				c.logger.Warn("mention name repeats with a different type; keeping first",
					"name", name, "first_type", prev.Type, "second_type", entityType)
			}
			continue
		}

		entity, err := c.resolveMention(ctx, groupID, name, entityType, mention.Description)
		if err != nil {
			return nil, err
		}
		resolved[name] = entity
		if !seen[entity.ID] {
			seen[entity.ID] = true
			byType[entity.Type] = append(byType[entity.Type], member{
				index:  i,
				entity: entity,
				clean:  utils.CleanName(entity.Name),
			})
		}
	}

	typeNames := make([]string, 0, len(byType))
	for t := range byType {
		typeNames = append(typeNames, t)
	}
	sort.Strings(typeNames)

	for _, entityType := range typeNames {
		for _, cl := range buildClusters(byType[entityType]) {
			if err := c.reconcileCluster(ctx, groupID, entityType, cl); err != nil {
				return nil, err
			}
		}
	}

	// Merges above may have re-pointed entities the early mentions resolved
	// to, so every mapping is re-read and chased to its survivor.
	out := make(map[string]*types.Entity, len(resolved))
	for name, entity := range resolved {
		current, err := c.entities.GetByID(ctx, entity.ID)
		if err != nil {
			return nil, fmt.Errorf("reloading entity %d: %w", entity.ID, err)
		}
		final, err := c.followAliases(ctx, current)
		if err != nil {
			return nil, err
		}
		out[name] = final
	}
	return out, nil
}

// resolveMention finds or creates the entity record for one mention.
func (c *Canonicalizer) resolveMention(ctx context.Context, groupID, name, entityType, description string) (*types.Entity, error) {
	slug, _ := normalize.Normalize(name)

	found, err := c.entities.GetByCanonical(ctx, groupID, entityType, slug)
	switch {
	case err == nil:
		return c.followAliases(ctx, found)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("canonical lookup for %q: %w", name, err)
	}

	found, err = c.entities.GetByName(ctx, groupID, entityType, name)
	switch {
	case err == nil:
		return c.followAliases(ctx, found)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("name lookup for %q: %w", name, err)
	}

	entity := &types.Entity{
		Name:          name,
		CanonicalSlug: slug,
		Type:          entityType,
		Description:   description,
		GroupID:       groupID,
	}
	if err := c.entities.Create(ctx, entity); err != nil {
		if errors.Is(err, store.ErrDuplicateSlug) {
			// Lost a slug race; defer to the owner.
			owner, lerr := c.entities.GetByCanonical(ctx, groupID, entityType, slug)
			if lerr == nil {
				return c.followAliases(ctx, owner)
			}
		}
		return nil, fmt.Errorf("creating entity %q: %w", name, err)
	}
	c.logger.Debug("created entity", "id", entity.ID, "name", name, "type", entityType, "slug", slug)
	return entity, nil
}

// followAliases chases ResolvedID links to the surviving canonical record.
// Dangling targets and cycles stop the walk at the last resolvable entity.
func (c *Canonicalizer) followAliases(ctx context.Context, entity *types.Entity) (*types.Entity, error) {
	for hops := 0; entity.ResolvedID != nil; hops++ {
		if hops >= maxAliasHops {
			c.logger.Warn("alias chain too long; stopping", "entity", entity.ID)
			break
		}
		next, err := c.entities.GetByID(ctx, *entity.ResolvedID)
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("alias points at a missing entity; keeping last resolvable record",
				"entity", entity.ID, "target", *entity.ResolvedID)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("following alias of entity %d: %w", entity.ID, err)
		}
		entity = next
	}
	return entity, nil
}

// reconcileCluster elects the cluster's canonical record and aliases every
// other member (and any absorbed stored abbreviation) to it.
func (c *Canonicalizer) reconcileCluster(ctx context.Context, groupID, entityType string, cl cluster) error {
	winner, absorbed, err := c.clusterCanonical(ctx, groupID, entityType, cl)
	if err != nil {
		return err
	}
	medoidSlug, _ := normalize.Normalize(cl.medoid.entity.Name)
	winner, err = c.ensureSlug(ctx, winner, medoidSlug)
	if err != nil {
		return err
	}

	for _, m := range cl.members {
		if err := c.adoptCanonical(ctx, winner, m.entity); err != nil {
			return err
		}
	}
	for _, e := range absorbed {
		if err := c.adoptCanonical(ctx, winner, e); err != nil {
			return err
		}
	}

	if len(cl.members) > 1 || len(absorbed) > 0 {
		c.logger.Debug("resolved entity cluster",
			"type", entityType,
			"medoid", cl.medoid.entity.Name,
			"size", len(cl.members),
			"absorbed", len(absorbed),
			"canonical", winner.ID,
			"slug", winner.CanonicalSlug)
	}
	return nil
}

// clusterCanonical decides which entity record a cluster collapses into.
// Preference order: a stored canonical whose name fuzzy-matches the medoid,
// then the acronym paths, then the medoid's own record. The second return
// value lists stored single-word abbreviations that merge into the cluster.
func (c *Canonicalizer) clusterCanonical(ctx context.Context, groupID, entityType string, cl cluster) (*types.Entity, []*types.Entity, error) {
	stored, err := c.entities.ListEntities(ctx, groupID, entityType)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s entities: %w", entityType, err)
	}

	inCluster := make(map[int64]bool, len(cl.members))
	for _, m := range cl.members {
		inCluster[m.entity.ID] = true
	}
	medoid := cl.medoid

	if utils.FuzzyEligible(medoid.entity.Name) {
		if best := bestStoredMatch(stored, inCluster, func(e *types.Entity) float64 {
			if !utils.FuzzyEligible(e.Name) {
				return 0
			}
			return utils.PartialRatio(medoid.clean, utils.CleanName(e.Name))
		}, FuzzyMatchThreshold); best != nil {
			winner, err := c.followAliases(ctx, best)
			if err != nil {
				return nil, nil, err
			}
			return winner, nil, nil
		}
	}

	if acr := utils.Acronym(medoid.entity.Name); acr != "" {
		// A multi-word cluster absorbs stored single-word records that spell
		// its acronym, e.g. a stored "TR" merging into "Track Rec".
		var absorbed []*types.Entity
		for _, e := range stored {
			if inCluster[e.ID] || e.IsAlias() || utils.Acronym(e.Name) != "" {
				continue
			}
			if utils.Ratio(acr, utils.CleanName(e.Name)) >= AcronymMatchThreshold {
				absorbed = append(absorbed, e)
			}
		}
		return medoid.entity, absorbed, nil
	}

	// Single-word medoid: it may itself abbreviate a stored multi-word
	// canonical, e.g. a new "TR" resolving to a stored "Track Rec".
	if best := bestStoredMatch(stored, inCluster, func(e *types.Entity) float64 {
		acr := utils.Acronym(e.Name)
		if acr == "" {
			return 0
		}
		return utils.Ratio(medoid.clean, acr)
	}, AcronymMatchThreshold); best != nil {
		winner, err := c.followAliases(ctx, best)
		if err != nil {
			return nil, nil, err
		}
		if !inCluster[winner.ID] {
			return winner, nil, nil
		}
	}

	return medoid.entity, nil, nil
}

// bestStoredMatch scans stored entities outside the cluster and returns the
// highest scorer at or above the threshold. Ties go to the lowest id so
// repeated runs elect the same record.
func bestStoredMatch(stored []*types.Entity, inCluster map[int64]bool, score func(*types.Entity) float64, threshold float64) *types.Entity {
	var best *types.Entity
	bestScore := 0.0
	for _, e := range stored {
		if inCluster[e.ID] {
			continue
		}
		s := score(e)
		if s < threshold {
			continue
		}
		if best == nil || s > bestScore || (s == bestScore && e.ID < best.ID) {
			best, bestScore = e, s
		}
	}
	return best
}

// ensureSlug assigns fallback to a winner that has no canonical slug yet.
// If the slug is already owned by another live entity, the winner is aliased
// to the owner instead of stealing the slug, and the owner wins the cluster.
func (c *Canonicalizer) ensureSlug(ctx context.Context, winner *types.Entity, fallback string) (*types.Entity, error) {
	if winner.CanonicalSlug != "" || fallback == "" {
		return winner, nil
	}

	claimed := winner.Clone()
	claimed.CanonicalSlug = fallback
	err := c.entities.Update(ctx, claimed)
	if err == nil {
		c.logger.Debug("assigned canonical slug", "entity", winner.ID, "slug", fallback)
		return claimed, nil
	}
	if !errors.Is(err, store.ErrDuplicateSlug) {
		return nil, fmt.Errorf("assigning slug %q to entity %d: %w", fallback, winner.ID, err)
	}

	owner, lerr := c.entities.GetByCanonical(ctx, winner.GroupID, winner.Type, fallback)
	if lerr != nil {
		return nil, fmt.Errorf("resolving slug owner %q: %w", fallback, lerr)
	}
	owner, lerr = c.followAliases(ctx, owner)
	if lerr != nil {
		return nil, lerr
	}
	if err := c.adoptCanonical(ctx, owner, winner); err != nil {
		return nil, err
	}
	return owner, nil
}

// adoptCanonical aliases an entity to the winning canonical record. Already
// merged entities are left alone.
func (c *Canonicalizer) adoptCanonical(ctx context.Context, winner, entity *types.Entity) error {
	if entity.ID == winner.ID {
		return nil
	}
	if entity.ResolvedID != nil && *entity.ResolvedID == winner.ID {
		return nil
	}
	merged := entity.Clone()
	merged.ResolvedID = &winner.ID
	if err := c.entities.Update(ctx, merged); err != nil {
		return fmt.Errorf("aliasing entity %d to %d: %w", entity.ID, winner.ID, err)
	}
	c.logger.Debug("merged entity alias",
		"entity", entity.ID, "name", entity.Name,
		"canonical", winner.ID, "canonical_slug", winner.CanonicalSlug)
	return nil
}
