package reconcile

import (
	"context"

	"github.com/soundprediction/reconcile/pkg/types"
)

// This file defines focused interfaces that follow the Interface Segregation Principle.
// The main Reconciler interface is composed from these smaller interfaces for backward compatibility.
// Consumers should depend on the smallest interface that meets their needs.

// BatchProcessor provides operations for ingesting extraction batches.
// Use this interface when you only need to feed documents into the graph.
type BatchProcessor interface {
	// Process reconciles a single extraction batch against the stored graph
	// and persists the outcome in one transaction.
	// Options parameter is optional and can be nil for default behavior.
	Process(ctx context.Context, batch types.ExtractionBatch, options *ProcessOptions) (*Result, error)

	// ProcessAll reconciles batches in order, stopping at the first failure.
	ProcessAll(ctx context.Context, batches []types.ExtractionBatch, options *ProcessOptions) ([]*Result, error)
}

// GraphReader provides read-only access to the reconciled graph.
// Use this interface when you only need to retrieve data without
// modifications.
type GraphReader interface {
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
}

// GraphAdmin provides administrative operations for the reconciled graph.
// Use this interface for maintenance and lifecycle tasks.
type GraphAdmin interface {
	// Initialize ensures the storage backend schema exists.
	Initialize(ctx context.Context) error

	// Close releases the storage connection.
	Close(ctx context.Context) error
}

// Ensure Reconciler interface composes all focused interfaces.
// This compile-time check ensures backward compatibility.
var _ interface {
	BatchProcessor
	GraphReader
	GraphAdmin
} = (Reconciler)(nil)
