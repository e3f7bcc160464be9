// Package chunker divides extracted document text into bounded chunks for
// embedding and retrieval.
//
// Segments from the document processor are cut into pieces around a target
// character count, breaking at whitespace where possible, with a configurable
// overlap so context spanning a cut survives in at least one chunk. Chunk
// indexes are assigned in order and are stable for the life of the entry.
//
// # Basic Usage
//
//	c := chunker.New()
//	chunks := c.Split(segments, docHash)
//
// Token estimation uses a simple heuristic (chars/4), which is adequate for
// sizing decisions without pulling in a tokenizer.
package chunker
