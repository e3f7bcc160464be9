package types

import "errors"

// Collaborator and pipeline errors. These are the stable taxonomy callers are
// expected to branch on with errors.Is.
var (
	// ErrUnsupportedFormat is returned by the document processor when it has
	// no extractor for the declared type.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtraction is returned when text extraction fails for a supported format.
	ErrExtraction = errors.New("extraction failed")
	// ErrEmbeddingUnavailable is returned when the embedding provider cannot
	// produce a vector.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrSearchUnavailable is returned by the web search collaborator.
	ErrSearchUnavailable = errors.New("web search unavailable")
	// ErrSearchTimeout indicates a retrieval fan-out leg missed its deadline.
	ErrSearchTimeout = errors.New("search timed out")
	// ErrGeneration is returned by the text generation collaborator.
	ErrGeneration = errors.New("generation failed")

	// ErrCacheCorruption marks a cache entry whose checksum or chunk/embedding
	// parallelism failed verification on read. Treated as a miss; the entry is
	// discarded and reprocessed.
	ErrCacheCorruption = errors.New("cache entry corrupted")
	// ErrIndexInconsistency marks a chunk/embedding count mismatch detected
	// during a consistency check.
	ErrIndexInconsistency = errors.New("index inconsistency")

	// ErrRetrievalFailed is surfaced only when every evidence source in a
	// request failed; a single failing source is dropped from fusion instead.
	ErrRetrievalFailed = errors.New("all retrieval sources failed")

	// ErrNotFound is returned for unknown task ids, hashes, or chunk ids.
	ErrNotFound = errors.New("not found")
	// ErrNotReady is returned when task results are requested before the task
	// reached a terminal state.
	ErrNotReady = errors.New("task not ready")
)

// Validation errors for retrieval results.
var (
	ErrInvalidChunkID    = errors.New("invalid chunk ID")
	ErrInvalidRank       = errors.New("rank must be >= 1")
	ErrMissingSource     = errors.New("web result requires a source URL")
	ErrInvalidProvenance = errors.New("invalid provenance tag")
)
