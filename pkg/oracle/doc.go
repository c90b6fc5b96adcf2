// Package oracle adapts an external yes/no decision-maker to the
// invalidation engine.
//
// The Oracle interface receives two fact summaries and answers, in free
// form, whether the secondary fact supersedes the primary one. LLMOracle
// implements it over an nlp.Client with a fixed two-summary prompt; retry
// and circuit breaking belong to the client stack underneath, not to this
// package.
//
// Adapter is what the engine consumes: it coerces the free-form answer into
// a strict boolean (fail-closed, see CoerceDecision), caches decisions per
// ordered fact pair, and keeps call/hit/failure counters in an explicit
// Stats value.
//
//	judge := oracle.NewLLMOracle(chatClient, logger)
//	adapter := oracle.NewAdapter(judge, oracle.AdapterConfig{}, logger)
//	invalidates, err := adapter.Decide(ctx,
//	    oracle.BuildSummary(existingFact, existingTriplet),
//	    oracle.BuildSummary(incomingFact, incomingTriplet))
package oracle
