// Package reconcile provides a temporal knowledge graph reconciliation
// library for Go.
//
// Reconcile ingests batches of extracted entities, facts and triplets and
// merges them into a stored graph incrementally: entity mentions are
// resolved to canonical records, and each incoming fact is judged against
// the stored facts it could supersede, closing validity windows in both
// directions without batch recomputation.
//
// # Basic Usage
//
// Create a new client with the required components:
//
//	// Create a storage backend
//	st, err := store.New(&store.Config{Type: store.TypeMemory})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	// Create the judgment oracle on top of a chat model client
//	nlpClient, err := nlp.NewOpenAIClient("your-api-key", nlp.Config{Model: "gpt-4o"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	judge := oracle.NewLLMOracle(nlpClient, nil)
//
//	// Create an embedder (optional; enables similarity retrieval)
//	embedderClient := embedder.NewOpenAIEmbedder("your-api-key", embedder.Config{Model: "text-embedding-3-small"})
//
//	// Create the reconciliation client
//	config := &reconcile.Config{GroupID: "my-group"}
//	client, err := reconcile.NewClient(st, judge, embedderClient, config, nil)
//
// # Processing Batches
//
// Extraction batches are the ingestion unit, one per source document:
//
//	batch := types.ExtractionBatch{
//		DocumentID: "meeting-2024-03-10",
//		GroupID:    "my-group",
//		Entities: []types.ExtractedEntity{
//			{Name: "Maria", Type: "Person"},
//			{Name: "Globex", Type: "Organization"},
//		},
//		Facts: []types.ExtractedFact{
//			{
//				Text:           "Maria works at Globex",
//				Classification: types.ClassificationFact,
//				TemporalClass:  types.TemporalDynamic,
//				ValidAt:        &meetingDate,
//				Triplets: []types.ExtractedTriplet{
//					{SubjectName: "Maria", Predicate: "WORKS_AT", ObjectName: "Globex"},
//				},
//			},
//		},
//	}
//
//	result, err := client.Process(ctx, batch, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Temporal Classes
//
// Every fact carries a temporal class that controls how it is reconciled:
//
//   - Atemporal: always true (definitions, laws); never invalidated
//   - Static: true of one point in time (a founding, a purchase); its
//     invalidation bound only ever tightens
//   - Dynamic: true over an interval (employment, residence); superseded by
//     later facts about the same subject
//
// # Invalidation
//
// Facts carry ValidAt/InvalidAt bounds. When an incoming fact supersedes a
// stored one, the stored fact's InvalidAt is set to the incoming fact's
// ValidAt and InvalidatedBy records the winner. The same judgment runs in
// reverse, so an incoming fact that is already outdated by the stored graph
// arrives with its window closed.
//
// # Multi-tenancy
//
// Use GroupID to isolate data for different users or contexts:
//
//	config := &reconcile.Config{
//		GroupID: "user-123",
//	}
//
// # Error Handling
//
// The library provides typed errors for common scenarios:
//
//   - ErrNoStore: Returned when a client is created without storage
//   - ErrNoOracle: Returned when a client is created without a judgment oracle
//   - ErrInvalidBatch: Returned when an extraction batch fails validation
//
// # Architecture
//
// The library follows a modular architecture:
//
//   - pkg/store: Storage backends (memory, badger, postgres, neo4j)
//   - pkg/canonical: Entity mention resolution
//   - pkg/candidates: Bounded retrieval of comparison candidates
//   - pkg/oracle: Judgment prompting, coercion and caching
//   - pkg/invalidation: Bi-directional temporal invalidation
//   - pkg/nlp: Chat model client interfaces
//   - pkg/embedder: Embedding model client interfaces
//   - pkg/types: Core type definitions
//
// This design allows easy extension with additional database backends,
// model providers, and embedding services.
package reconcile
