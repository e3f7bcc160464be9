// Package docmgr owns document ingestion and reconciliation.
//
// The pipeline per source is extract -> chunk -> embed -> cache, with the
// content hash of the raw bytes as the cache key. Batch ingestion runs
// sources concurrently under a parallelism bound; each source's failure is
// isolated into the batch report. Reconcile computes plain set differences
// over source identifiers so callers can converge the corpus on a desired
// source set.
package docmgr
