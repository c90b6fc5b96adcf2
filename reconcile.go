package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soundprediction/reconcile/pkg/candidates"
	"github.com/soundprediction/reconcile/pkg/canonical"
	"github.com/soundprediction/reconcile/pkg/embedder"
	"github.com/soundprediction/reconcile/pkg/invalidation"
	"github.com/soundprediction/reconcile/pkg/oracle"
	"github.com/soundprediction/reconcile/pkg/store"
	"github.com/soundprediction/reconcile/pkg/types"
	"github.com/soundprediction/reconcile/pkg/utils"
)

// Reconciler is the main interface for maintaining a temporal knowledge
// graph. It ingests extraction batches, reconciles them against the stored
// graph, and exposes the reconciled records for retrieval and export.
type Reconciler interface {
	// Process reconciles a single extraction batch against the stored graph
	// and persists the outcome in one transaction.
	// Options parameter is optional and can be nil for default behavior.
	Process(ctx context.Context, batch types.ExtractionBatch, options *ProcessOptions) (*Result, error)

	// ProcessAll reconciles batches in order, stopping at the first failure.
	ProcessAll(ctx context.Context, batches []types.ExtractionBatch, options *ProcessOptions) ([]*Result, error)

	// GetEntity retrieves a canonical entity by id.
	GetEntity(ctx context.Context, id int64) (*types.Entity, error)

	// GetFact retrieves a fact by id.
	GetFact(ctx context.Context, id int64) (*types.Fact, error)

	// Entities lists every entity in the client's group.
	Entities(ctx context.Context) ([]*types.Entity, error)

	// Facts lists every fact in the client's group.
	Facts(ctx context.Context) ([]*types.Fact, error)

	// Triplets lists every triplet in the client's group.
	Triplets(ctx context.Context) ([]*types.Triplet, error)

	// Initialize ensures the storage backend schema exists.
	Initialize(ctx context.Context) error

	// Close releases the storage connection. Oracle and embedder transports
	// stay open; they belong to whoever constructed them.
	Close(ctx context.Context) error
}

// Client is the main implementation of the Reconciler interface.
type Client struct {
	store        store.Store
	oracle       oracle.Oracle
	adapter      *oracle.Adapter
	embedder     embedder.Client
	canonicalize *canonical.Canonicalizer
	orchestrator *invalidation.Orchestrator
	config       *Config
	logger       *slog.Logger
}

var _ Reconciler = (*Client)(nil)

// Config holds configuration for the reconciliation client.
type Config struct {
	// GroupID is used to isolate data for multi-tenant scenarios
	GroupID string
	// MaxWorkers scales the invalidation worker pool
	MaxWorkers int
	// BatchSize is the number of comparison tasks run between pauses
	BatchSize int
	// BatchPause is the rest between task batches
	BatchPause time.Duration
	// GenerateEmbeddings backfills missing fact embeddings during ingestion
	GenerateEmbeddings bool
	// OracleCacheTTL bounds how long a judgment is reused for the same fact
	// pair. Zero uses the oracle package default; negative disables caching.
	OracleCacheTTL time.Duration
	// OracleCacheCleanupInterval is how often expired judgments are evicted
	OracleCacheCleanupInterval time.Duration
}

// DefaultConfig returns a config suitable for single-tenant use.
func DefaultConfig() *Config {
	return &Config{GroupID: "default", GenerateEmbeddings: true}
}

// NewClient creates a new reconciliation client with the provided
// configuration. The judge decides whether one fact supersedes another;
// embedderClient may be nil, which disables similarity retrieval and
// embedding backfill.
func NewClient(st store.Store, judge oracle.Oracle, embedderClient embedder.Client, config *Config, logger *slog.Logger) (*Client, error) {
	if st == nil {
		return nil, ErrNoStore
	}
	if judge == nil {
		return nil, ErrNoOracle
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.GroupID == "" {
		config.GroupID = "default"
	}
	if err := utils.ValidateGroupID(config.GroupID); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	adapter := oracle.NewAdapter(judge, oracle.AdapterConfig{
		CacheTTL:             config.OracleCacheTTL,
		CacheCleanupInterval: config.OracleCacheCleanupInterval,
	}, logger)
	selector := candidates.NewSelector(st, embedderClient, logger)
	engine := invalidation.NewEngine(selector, adapter, logger)
	orchestrator := invalidation.NewOrchestrator(engine, invalidation.Config{
		MaxWorkers: config.MaxWorkers,
		BatchSize:  config.BatchSize,
		BatchPause: config.BatchPause,
	}, logger)

	return &Client{
		store:        st,
		oracle:       judge,
		adapter:      adapter,
		embedder:     embedderClient,
		canonicalize: canonical.NewCanonicalizer(st, logger),
		orchestrator: orchestrator,
		config:       config,
		logger:       logger,
	}, nil
}

// GetEntity retrieves a canonical entity by id.
func (c *Client) GetEntity(ctx context.Context, id int64) (*types.Entity, error) {
	return c.store.GetByID(ctx, id)
}

// GetFact retrieves a fact by id.
func (c *Client) GetFact(ctx context.Context, id int64) (*types.Fact, error) {
	return c.store.GetFact(ctx, id)
}

// Entities lists every entity in the client's group.
func (c *Client) Entities(ctx context.Context) ([]*types.Entity, error) {
	return c.store.ListEntities(ctx, c.config.GroupID, "")
}

// Facts lists every fact in the client's group.
func (c *Client) Facts(ctx context.Context) ([]*types.Fact, error) {
	return c.store.ListFacts(ctx, c.config.GroupID)
}

// Triplets lists every triplet in the client's group.
func (c *Client) Triplets(ctx context.Context) ([]*types.Triplet, error) {
	return c.store.ListTriplets(ctx, c.config.GroupID)
}

// Initialize ensures the storage backend schema exists.
func (c *Client) Initialize(ctx context.Context) error {
	return c.store.Initialize(ctx)
}

// Close releases the storage connection.
func (c *Client) Close(ctx context.Context) error {
	return c.store.Close()
}

// Store returns the underlying storage backend.
func (c *Client) Store() store.Store {
	return c.store
}

// Embedder returns the embedding client, which may be nil.
func (c *Client) Embedder() embedder.Client {
	return c.embedder
}

// GroupID returns the group this client reconciles into.
func (c *Client) GroupID() string {
	return c.config.GroupID
}

// OracleStats reports cumulative judgment activity: calls, cache hits and
// failures since the client was created.
func (c *Client) OracleStats() oracle.Stats {
	return c.adapter.Stats()
}

var (
	// ErrNoStore is returned when a client is created without storage.
	ErrNoStore = errors.New("store is required")
	// ErrNoOracle is returned when a client is created without a judgment
	// oracle.
	ErrNoOracle = errors.New("oracle is required")
	// ErrInvalidBatch is returned when an extraction batch fails validation.
	ErrInvalidBatch = errors.New("invalid extraction batch")
)
