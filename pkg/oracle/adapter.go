package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultCacheTTL bounds how long a judgment is reused for the same
	// ordered fact pair.
	DefaultCacheTTL = 30 * time.Minute
	// DefaultCacheCleanupInterval is how often expired judgments are evicted.
	DefaultCacheCleanupInterval = 10 * time.Minute
)

// AdapterConfig configures decision caching.
type AdapterConfig struct {
	// CacheTTL is the judgment reuse window. Zero falls back to
	// DefaultCacheTTL; a negative value disables caching.
	CacheTTL time.Duration
	// CacheCleanupInterval is the eviction sweep period. Zero falls back to
	// DefaultCacheCleanupInterval.
	CacheCleanupInterval time.Duration
}

// Stats counts adapter activity. Values are cumulative since construction.
type Stats struct {
	// Calls is the number of judgments sent to the oracle.
	Calls int64 `json:"calls"`
	// CacheHits is the number of decisions answered from the cache.
	CacheHits int64 `json:"cache_hits"`
	// Failures is the number of oracle calls that errored after the client
	// stack gave up.
	Failures int64 `json:"failures"`
}

// Adapter turns an Oracle's free-form judgments into strict booleans. It
// caches decisions per ordered fact pair so idempotent re-runs and
// overlapping batches do not re-bill the oracle, and it counts activity in
// an explicit Stats value rather than package state. Safe for concurrent
// use.
type Adapter struct {
	oracle Oracle
	cache  *gocache.Cache
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewAdapter wraps an oracle with caching, coercion and accounting.
func NewAdapter(o Oracle, cfg AdapterConfig, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	var cache *gocache.Cache
	if cfg.CacheTTL >= 0 {
		ttl := cfg.CacheTTL
		if ttl == 0 {
			ttl = DefaultCacheTTL
		}
		cleanup := cfg.CacheCleanupInterval
		if cleanup <= 0 {
			cleanup = DefaultCacheCleanupInterval
		}
		cache = gocache.New(ttl, cleanup)
	}

	return &Adapter{oracle: o, cache: cache, logger: logger}
}

// Decide reports whether secondary supersedes primary. The oracle's response
// is coerced fail-closed: only a clearly affirmative answer yields true. An
// error means no judgment was obtained; callers treat it as a skipped
// comparison, never as an invalidation.
func (a *Adapter) Decide(ctx context.Context, primary, secondary Summary) (bool, error) {
	key := decisionKey(primary.FactID, secondary.FactID)
	if a.cache != nil {
		if cached, found := a.cache.Get(key); found {
			a.count(func(s *Stats) { s.CacheHits++ })
			return cached.(bool), nil
		}
	}

	a.count(func(s *Stats) { s.Calls++ })
	raw, err := a.oracle.Judge(ctx, primary, secondary)
	if err != nil {
		a.count(func(s *Stats) { s.Failures++ })
		return false, fmt.Errorf("oracle decision for pair (%d,%d): %w", primary.FactID, secondary.FactID, err)
	}

	decision := CoerceDecision(raw)
	if a.cache != nil {
		a.cache.Set(key, decision, gocache.DefaultExpiration)
	}
	a.logger.Debug("oracle decision",
		"primary", primary.FactID, "secondary", secondary.FactID, "invalidates", decision)
	return decision, nil
}

// Stats returns a copy of the adapter's counters.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Adapter) count(update func(*Stats)) {
	a.mu.Lock()
	update(&a.stats)
	a.mu.Unlock()
}

func decisionKey(primaryID, secondaryID int64) string {
	return fmt.Sprintf("%d:%d", primaryID, secondaryID)
}
