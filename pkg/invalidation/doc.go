// Package invalidation decides which facts supersede which as new
// information arrives, and closes the losers' validity windows.
//
// Work is expressed as tasks, one per incoming (fact, triplet) pair. For
// each task the Engine retrieves stored candidates, then judges them in both
// directions: does the incoming fact invalidate a stored one, and does a
// stored fact invalidate the incoming one. Temporal causality is enforced
// before any judgment is requested, so the decider is only ever asked about
// pairs where the later fact could actually supersede the earlier one.
//
// The Orchestrator fans tasks out over a bounded worker pool and merges the
// per-task outcomes, with ResolveConflicts collapsing disagreements between
// tasks to the earliest invalidation bound. Nothing in this package writes
// to storage; it produces updated fact copies for the caller to persist in
// one transaction.
package invalidation
