// Package types defines the shared domain model for the document corpus:
// documents, chunks, retrieval results, and the error taxonomy used across
// the cache, index, and retrieval layers.
//
// A Document is identified by the SHA-256 hash of its raw bytes. Chunks are
// ordered text segments of a document; the chunk order is fixed at ingestion
// and never changes. Retrieval results carry a provenance tag so callers can
// distinguish local corpus evidence from live web results.
package types
