// Package vectorindex holds the in-memory k-nearest-neighbor index over
// chunk embeddings.
//
// The index is append-mostly: Add assigns monotonically increasing ids,
// Remove tombstones entries and compacts lazily, and Query runs a linear
// cosine scan returning the top k by similarity with ties broken by assigned
// id. Queries are snapshot-consistent with respect to concurrent writes.
//
// Brute force is the baseline; the contract leaves room for an ANN structure
// as long as exact-tie ordering is preserved where feasible.
package vectorindex
