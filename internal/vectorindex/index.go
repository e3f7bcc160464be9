package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

// Metadata is the lightweight per-entry payload kept alongside a vector.
// Chunk text is not stored here; result assembly looks it up in the cache.
type Metadata struct {
	DocHash string
	Source  string
	Page    int
}

// Hit is one query result.
type Hit struct {
	ChunkID    int64
	AssignedID int64
	Similarity float64
	Meta       Metadata
}

// Index is an append-mostly in-memory collection of (chunk id, vector,
// metadata) triples with brute-force cosine top-k queries.
//
// Readers and writers synchronize on a single RWMutex: queries hold the read
// lock for their full scan, so a query observes either the pre-write or the
// post-write state, never a partial mutation.
type Index struct {
	mu        sync.RWMutex
	dimension int
	nextID    int64
	entries   []entry
	removed   int
}

type entry struct {
	id      int64
	chunkID int64
	vector  types.EmbeddingVector
	meta    Metadata
	removed bool
}

// New creates an index for vectors of the given dimension. The dimension is
// fixed for the index's lifetime.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	return &Index{dimension: dimension, nextID: 1}, nil
}

// Add appends an entry and returns its assigned id. Assigned ids increase
// monotonically and are never reused within one index lifetime.
func (ix *Index) Add(chunkID int64, vector types.EmbeddingVector, meta Metadata) (int64, error) {
	if len(vector) != ix.dimension {
		return 0, fmt.Errorf("%w: vector dimension %d, index dimension %d",
			types.ErrIndexInconsistency, len(vector), ix.dimension)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	id := ix.nextID
	ix.nextID++
	ix.entries = append(ix.entries, entry{
		id:      id,
		chunkID: chunkID,
		vector:  vector,
		meta:    meta,
	})
	return id, nil
}

// Remove marks the given chunk ids as removed and returns how many entries
// were affected. The slice is compacted once removals dominate.
func (ix *Index) Remove(chunkIDs map[int64]struct{}) int {
	if len(chunkIDs) == 0 {
		return 0
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	affected := 0
	for i := range ix.entries {
		if ix.entries[i].removed {
			continue
		}
		if _, ok := chunkIDs[ix.entries[i].chunkID]; ok {
			ix.entries[i].removed = true
			affected++
		}
	}
	ix.removed += affected

	if ix.removed > len(ix.entries)/2 {
		ix.compactLocked()
	}
	return affected
}

// compactLocked drops removed entries. Caller holds the write lock.
func (ix *Index) compactLocked() {
	live := ix.entries[:0]
	for _, e := range ix.entries {
		if !e.removed {
			live = append(live, e)
		}
	}
	ix.entries = live
	ix.removed = 0
}

// Query returns the top k live entries by cosine similarity, descending.
// Ties break by ascending assigned id so the ordering is reproducible.
// An empty index yields an empty result, not an error.
func (ix *Index) Query(vector types.EmbeddingVector, k int) ([]Hit, error) {
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d",
			types.ErrIndexInconsistency, len(vector), ix.dimension)
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make([]Hit, 0, len(ix.entries)-ix.removed)
	for i := range ix.entries {
		e := &ix.entries[i]
		if e.removed {
			continue
		}
		hits = append(hits, Hit{
			ChunkID:    e.chunkID,
			AssignedID: e.id,
			Similarity: cosineSimilarity(vector, e.vector),
			Meta:       e.meta,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].AssignedID < hits[j].AssignedID
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Len returns the number of live entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries) - ix.removed
}

// Dimension returns the fixed vector dimension.
func (ix *Index) Dimension() int {
	return ix.dimension
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b types.EmbeddingVector) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
