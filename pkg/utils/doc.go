// Package utils provides utility functions for the reconcile library.
//
// This package contains helper functions for various operations including:
//   - Concurrent execution helpers and worker pools (concurrent.go)
//   - Panic recovery helpers (recovery.go)
//   - Fuzzy string similarity and acronym matching (fuzzy.go)
//   - Vector math and top-K selection (vector.go)
//   - General helper functions (helpers.go)
//
// The utilities support the reconciliation pipeline; none of them hold
// state beyond what their receivers carry.
package utils
