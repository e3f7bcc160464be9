// Package cache implements the content-hash-addressed document cache.
//
// Each entry holds a document's metadata, ordered chunk array, and parallel
// embedding array. Entries are immutable once stored, which gives readers
// snapshot isolation for free: a Get returns either a complete entry or a
// miss, and eviction can never corrupt an entry mid-read.
//
// Memory is bounded by a byte budget with least-recent-access eviction; the
// persistent store underneath keeps evicted entries so they can be reloaded
// without reprocessing. Entries that fail the chunk/embedding parallelism
// check on load are discarded and reported as misses, forcing the source
// through ingestion again.
//
// Source identifiers are tracked separately from entries: several names with
// byte-identical content share one entry, and the entry lives until its last
// name is dropped.
package cache
