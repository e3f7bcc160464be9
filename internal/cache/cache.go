package cache

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/raglab/ragindex-mcp/internal/storage"
	"github.com/raglab/ragindex-mcp/pkg/types"
)

// DefaultBudgetBytes bounds the in-memory entry set at 512 MiB.
const DefaultBudgetBytes = 512 << 20

// Entry is a complete cached document: metadata, the ordered chunk array,
// the parallel embedding array, and the database-assigned chunk ids.
//
// Entries are immutable once stored. Get hands out the shared entry, so an
// in-flight query keeps its snapshot alive even if the entry is evicted or
// invalidated underneath it.
type Entry struct {
	Meta     types.DocumentMetadata
	ChunkIDs []int64
	Chunks   []types.DocumentChunk
	Vectors  []types.EmbeddingVector
	ByteSize int64
}

// Stats is a point-in-time view of cache occupancy.
type Stats struct {
	EntryCount  int   // entries resident in memory
	StoredCount int   // entries in the persistent store
	TotalBytes  int64 // bytes held in memory
	BudgetBytes int64
	Hits        int64
	Misses      int64
}

// Cache is the content-hash-addressed store of extracted chunks and
// embeddings. Memory is bounded by a byte budget with least-recent-access
// eviction; the SQLite store underneath retains evicted entries so a later
// Get can reload them.
type Cache struct {
	store  storage.Storage
	budget int64

	mu      sync.Mutex
	entries map[string]*list.Element // hash -> lru element
	lru     *list.List               // front = most recently used
	bytes   int64
	sources map[string]string   // source identifier -> hash; several sources may share a hash
	stored  map[string]struct{} // hashes persisted in the store
	hits    int64
	misses  int64
}

type lruItem struct {
	hash  string
	entry *Entry
}

// New creates a cache over store. The persisted source index is loaded so
// reconciliation works immediately after startup; chunk data stays on disk
// until first access.
func New(store storage.Storage, budgetBytes int64) (*Cache, error) {
	if budgetBytes <= 0 {
		budgetBytes = DefaultBudgetBytes
	}
	c := &Cache{
		store:   store,
		budget:  budgetBytes,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		sources: make(map[string]string),
		stored:  make(map[string]struct{}),
	}

	docs, err := store.ListDocuments(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load document index: %w", err)
	}
	for _, doc := range docs {
		c.stored[doc.Hash] = struct{}{}
	}

	records, err := store.ListSources(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load source index: %w", err)
	}
	for _, rec := range records {
		c.sources[rec.Source] = rec.DocHash
	}

	return c, nil
}

// Get returns the complete entry for hash, loading it from the persistent
// store on a memory miss. A missing or corrupted entry is a miss.
func (c *Cache) Get(ctx context.Context, hash string) (*Entry, bool) {
	c.mu.Lock()
	if elem, ok := c.entries[hash]; ok {
		c.lru.MoveToFront(elem)
		c.hits++
		entry := elem.Value.(*lruItem).entry
		c.mu.Unlock()
		return entry, true
	}
	c.mu.Unlock()

	entry, err := c.load(ctx, hash)
	if err != nil {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.insertLocked(hash, entry)
	c.evictToBudgetLocked()
	c.mu.Unlock()
	return entry, true
}

// load reads an entry from storage and verifies its integrity. A detected
// corruption discards the stored entry so the source gets reprocessed.
func (c *Cache) load(ctx context.Context, hash string) (*Entry, error) {
	doc, chunkRecords, vectors, err := c.store.GetDocument(ctx, hash)
	if err != nil {
		return nil, err
	}

	if len(chunkRecords) != len(vectors) || len(chunkRecords) != doc.ChunkCount {
		log.Printf("cache: discarding corrupted entry %s (%d chunks, %d vectors, expected %d)",
			hash, len(chunkRecords), len(vectors), doc.ChunkCount)
		if err := c.store.DeleteDocument(ctx, hash); err != nil {
			log.Printf("cache: failed to discard corrupted entry %s: %v", hash, err)
		}
		c.mu.Lock()
		for source, h := range c.sources {
			if h == hash {
				delete(c.sources, source)
			}
		}
		delete(c.stored, hash)
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", types.ErrCacheCorruption, hash)
	}

	entry := &Entry{
		Meta:     doc.Metadata(),
		ChunkIDs: make([]int64, len(chunkRecords)),
		Chunks:   make([]types.DocumentChunk, len(chunkRecords)),
		Vectors:  vectors,
	}
	for i, rec := range chunkRecords {
		entry.ChunkIDs[i] = rec.ID
		entry.Chunks[i] = rec.Chunk()
	}
	entry.ByteSize = entrySize(entry)
	return entry, nil
}

// Put stores a complete entry. Writes are whole-entry replaces; if an entry
// for the hash already exists the call is a no-op, because identical bytes
// always chunk and embed identically.
func (c *Cache) Put(ctx context.Context, source, format string, rawSize int64, chunks []types.DocumentChunk, vectors []types.EmbeddingVector) (*Entry, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks vs %d vectors", types.ErrIndexInconsistency, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("refusing to store entry with no chunks")
	}
	hash := chunks[0].DocHash

	// Identical bytes under a new name: keep the entry, record the alias so
	// the source still shows up in the ingested set.
	if entry, ok := c.Get(ctx, hash); ok {
		if err := c.RecordSource(ctx, source, hash); err != nil {
			return nil, err
		}
		return entry, nil
	}

	doc := &storage.DocumentRecord{
		Hash:      hash,
		Source:    source,
		Format:    format,
		SizeBytes: rawSize,
	}
	chunkRecords := make([]*storage.ChunkRecord, len(chunks))
	for i, chunk := range chunks {
		chunkRecords[i] = &storage.ChunkRecord{
			DocHash:    hash,
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
			Page:       chunk.Page,
			Offset:     chunk.Offset,
		}
	}

	if err := c.store.PutDocument(ctx, doc, chunkRecords, vectors); err != nil {
		return nil, fmt.Errorf("failed to persist entry: %w", err)
	}

	entry := &Entry{
		Meta:     doc.Metadata(),
		ChunkIDs: make([]int64, len(chunkRecords)),
		Chunks:   chunks,
		Vectors:  vectors,
	}
	for i, rec := range chunkRecords {
		entry.ChunkIDs[i] = rec.ID
	}
	entry.ByteSize = entrySize(entry)

	c.mu.Lock()
	c.sources[source] = hash
	c.stored[hash] = struct{}{}
	c.insertLocked(hash, entry)
	c.evictToBudgetLocked()
	c.mu.Unlock()

	return entry, nil
}

// RecordSource associates a source identifier with an already stored hash,
// in memory and in the persistent source index.
func (c *Cache) RecordSource(ctx context.Context, source, hash string) error {
	c.mu.Lock()
	if h, ok := c.sources[source]; ok && h == hash {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.store.PutSource(ctx, source, hash); err != nil {
		return fmt.Errorf("failed to record source %s: %w", source, err)
	}
	c.mu.Lock()
	c.sources[source] = hash
	c.mu.Unlock()
	return nil
}

// DropSource removes one source identifier and reports how many other
// sources still reference the same hash. The entry itself is untouched;
// callers invalidate it when remaining reaches zero. Unknown sources return
// types.ErrNotFound.
func (c *Cache) DropSource(ctx context.Context, source string) (hash string, remaining int, err error) {
	c.mu.Lock()
	hash, ok := c.sources[source]
	if !ok {
		c.mu.Unlock()
		return "", 0, fmt.Errorf("%w: source %s", types.ErrNotFound, source)
	}
	delete(c.sources, source)
	for _, h := range c.sources {
		if h == hash {
			remaining++
		}
	}
	c.mu.Unlock()

	if err := c.store.DeleteSource(ctx, source); err != nil {
		return "", 0, fmt.Errorf("failed to drop source %s: %w", source, err)
	}
	return hash, remaining, nil
}

// Invalidate removes an entry from memory and the persistent store. Used
// when a source's recomputed hash differs from what is cached.
func (c *Cache) Invalidate(ctx context.Context, hash string) error {
	c.mu.Lock()
	if elem, ok := c.entries[hash]; ok {
		c.removeLocked(elem)
	}
	for source, h := range c.sources {
		if h == hash {
			delete(c.sources, source)
		}
	}
	delete(c.stored, hash)
	c.mu.Unlock()

	if err := c.store.DeleteDocument(ctx, hash); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// HashForSource returns the content hash currently associated with a source
// identifier.
func (c *Cache) HashForSource(source string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok := c.sources[source]
	return hash, ok
}

// Sources returns the set of ingested source identifiers.
func (c *Cache) Sources() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.sources))
	for source, hash := range c.sources {
		out[source] = hash
	}
	return out
}

// LiveChunks returns the persisted chunk id -> hash mapping, the startup
// reconciliation index.
func (c *Cache) LiveChunks(ctx context.Context) ([]storage.ChunkIndexEntry, error) {
	return c.store.ChunkIndex(ctx)
}

// EvictToBudget evicts least-recently-accessed entries from memory until the
// given byte budget is met. Persisted copies are kept.
func (c *Cache) EvictToBudget(budgetBytes int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for c.bytes > budgetBytes && c.lru.Len() > 0 {
		c.removeLocked(c.lru.Back())
		evicted++
	}
	return evicted
}

// Stats returns a point-in-time occupancy snapshot.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		EntryCount:  c.lru.Len(),
		StoredCount: len(c.stored),
		TotalBytes:  c.bytes,
		BudgetBytes: c.budget,
		Hits:        c.hits,
		Misses:      c.misses,
	}
}

// insertLocked adds an entry at the front of the LRU. Caller holds mu.
func (c *Cache) insertLocked(hash string, entry *Entry) {
	if elem, ok := c.entries[hash]; ok {
		c.lru.MoveToFront(elem)
		return
	}
	c.entries[hash] = c.lru.PushFront(&lruItem{hash: hash, entry: entry})
	c.bytes += entry.ByteSize
}

// removeLocked drops an LRU element from memory. Caller holds mu.
func (c *Cache) removeLocked(elem *list.Element) {
	item := elem.Value.(*lruItem)
	c.lru.Remove(elem)
	delete(c.entries, item.hash)
	c.bytes -= item.entry.ByteSize
}

// evictToBudgetLocked enforces the configured budget. Caller holds mu.
func (c *Cache) evictToBudgetLocked() {
	for c.bytes > c.budget && c.lru.Len() > 1 {
		c.removeLocked(c.lru.Back())
	}
}

// entrySize approximates the in-memory footprint of an entry.
func entrySize(entry *Entry) int64 {
	size := int64(len(entry.Meta.Source) + len(entry.Meta.Hash) + len(entry.Meta.Format))
	for i := range entry.Chunks {
		size += int64(len(entry.Chunks[i].Text)) + 64
	}
	for i := range entry.Vectors {
		size += int64(len(entry.Vectors[i]) * 4)
	}
	return size
}
