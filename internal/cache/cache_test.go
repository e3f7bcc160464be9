package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raglab/ragindex-mcp/internal/storage"
	"github.com/raglab/ragindex-mcp/pkg/types"
)

func setupCache(t *testing.T, budget int64) (*Cache, *storage.SQLiteStorage) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c, err := New(store, budget)
	require.NoError(t, err)
	return c, store
}

func testChunks(text string, n int) ([]types.DocumentChunk, []types.EmbeddingVector, string) {
	raw := []byte(strings.Repeat(text, n))
	hash := types.HashBytes(raw)
	chunks := make([]types.DocumentChunk, n)
	vectors := make([]types.EmbeddingVector, n)
	for i := 0; i < n; i++ {
		chunks[i] = types.DocumentChunk{
			Index:   i,
			Text:    text,
			Page:    1,
			Offset:  i * len(text),
			DocHash: hash,
		}
		vectors[i] = types.EmbeddingVector{float32(i), 1, 0}
	}
	return chunks, vectors, hash
}

func TestPut_AssignsChunkIDs(t *testing.T) {
	c, _ := setupCache(t, 0)
	ctx := context.Background()

	chunks, vectors, hash := testChunks("chunk body ", 3)
	entry, err := c.Put(ctx, "a.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)

	assert.Equal(t, hash, entry.Meta.Hash)
	assert.Equal(t, 3, entry.Meta.ChunkCount)
	require.Len(t, entry.ChunkIDs, 3)
	for _, id := range entry.ChunkIDs {
		assert.Greater(t, id, int64(0))
	}
}

func TestPut_Idempotent(t *testing.T) {
	c, _ := setupCache(t, 0)
	ctx := context.Background()

	chunks, vectors, _ := testChunks("same bytes ", 2)
	first, err := c.Put(ctx, "a.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)

	// Identical content stores nothing new and reuses the assigned ids.
	second, err := c.Put(ctx, "a.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)
	assert.Equal(t, first.ChunkIDs, second.ChunkIDs)
	assert.Equal(t, 1, c.Stats().StoredCount)
}

func TestPut_SecondSourceWithIdenticalBytes(t *testing.T) {
	c, store := setupCache(t, 0)
	ctx := context.Background()

	chunks, vectors, hash := testChunks("shared bytes ", 2)
	_, err := c.Put(ctx, "a.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)
	_, err = c.Put(ctx, "b.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)

	// One stored entry, both names in the ingested set.
	assert.Equal(t, 1, c.Stats().StoredCount)
	assert.Equal(t, map[string]string{"a.txt": hash, "b.txt": hash}, c.Sources())

	// The alias survives a restart.
	reloaded, err := New(store, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.txt": hash, "b.txt": hash}, reloaded.Sources())
}

func TestDropSource_KeepsEntryWhileReferenced(t *testing.T) {
	c, _ := setupCache(t, 0)
	ctx := context.Background()

	chunks, vectors, hash := testChunks("shared bytes ", 2)
	_, err := c.Put(ctx, "a.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)
	_, err = c.Put(ctx, "b.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)

	dropped, remaining, err := c.DropSource(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, hash, dropped)
	assert.Equal(t, 1, remaining)

	// The entry stays while another name references it.
	_, ok := c.HashForSource("a.txt")
	assert.False(t, ok)
	_, ok = c.Get(ctx, hash)
	assert.True(t, ok)

	_, remaining, err = c.DropSource(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestDropSource_Unknown(t *testing.T) {
	c, _ := setupCache(t, 0)

	_, _, err := c.DropSource(context.Background(), "never-added")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestGet_MemoryMissReloadsFromStore(t *testing.T) {
	c, store := setupCache(t, 0)
	ctx := context.Background()

	chunks, vectors, hash := testChunks("persisted text ", 2)
	put, err := c.Put(ctx, "a.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)

	// A fresh cache over the same store has nothing in memory.
	reloaded, err := New(store, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Stats().EntryCount)
	assert.Equal(t, 1, reloaded.Stats().StoredCount)

	entry, ok := reloaded.Get(ctx, hash)
	require.True(t, ok)
	assert.Equal(t, put.ChunkIDs, entry.ChunkIDs)
	assert.Equal(t, put.Chunks[0].Text, entry.Chunks[0].Text)
	assert.Equal(t, 1, reloaded.Stats().EntryCount)
}

func TestGet_UnknownHashIsMiss(t *testing.T) {
	c, _ := setupCache(t, 0)

	_, ok := c.Get(context.Background(), "no-such-hash")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

// corruptingStore drops the last chunk row from GetDocument responses so the
// loaded entry disagrees with its recorded chunk count.
type corruptingStore struct {
	storage.Storage
}

func (s *corruptingStore) GetDocument(ctx context.Context, hash string) (*storage.DocumentRecord, []*storage.ChunkRecord, []types.EmbeddingVector, error) {
	doc, chunks, vectors, err := s.Storage.GetDocument(ctx, hash)
	if err != nil {
		return doc, chunks, vectors, err
	}
	return doc, chunks[:len(chunks)-1], vectors[:len(vectors)-1], nil
}

func TestGet_CorruptedEntryDiscardedAsMiss(t *testing.T) {
	_, store := setupCache(t, 0)
	ctx := context.Background()

	doc := &storage.DocumentRecord{Hash: "bad-hash", Source: "bad.txt", Format: "txt"}
	chunkRecords := []*storage.ChunkRecord{
		{ChunkIndex: 0, Text: "first chunk"},
		{ChunkIndex: 1, Text: "second chunk"},
	}
	vectors := []types.EmbeddingVector{{1, 0}, {0, 1}}
	require.NoError(t, store.PutDocument(ctx, doc, chunkRecords, vectors))

	c, err := New(&corruptingStore{Storage: store}, 0)
	require.NoError(t, err)

	_, ok := c.Get(ctx, "bad-hash")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)

	// The corrupted entry was dropped from the store entirely.
	_, _, _, err = store.GetDocument(ctx, "bad-hash")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, known := c.HashForSource("bad.txt")
	assert.False(t, known)
}

func TestInvalidate_RemovesMemoryAndStore(t *testing.T) {
	c, store := setupCache(t, 0)
	ctx := context.Background()

	chunks, vectors, hash := testChunks("to be removed ", 2)
	_, err := c.Put(ctx, "a.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, hash))

	_, ok := c.Get(ctx, hash)
	assert.False(t, ok)
	_, _, _, err = store.GetDocument(ctx, hash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0, c.Stats().StoredCount)
	_, known := c.HashForSource("a.txt")
	assert.False(t, known)
}

func TestInvalidate_UnknownHashNoop(t *testing.T) {
	c, _ := setupCache(t, 0)
	assert.NoError(t, c.Invalidate(context.Background(), "missing"))
	assert.Equal(t, 0, c.Stats().StoredCount)
}

func TestEviction_KeepsPersistedCopy(t *testing.T) {
	// Budget small enough that a second entry evicts the first.
	c, _ := setupCache(t, 1)
	ctx := context.Background()

	chunksA, vectorsA, hashA := testChunks("document alpha ", 2)
	_, err := c.Put(ctx, "a.txt", "txt", 100, chunksA, vectorsA)
	require.NoError(t, err)

	chunksB, vectorsB, _ := testChunks("document beta ", 2)
	_, err = c.Put(ctx, "b.txt", "txt", 100, chunksB, vectorsB)
	require.NoError(t, err)

	// The budget keeps at least one resident entry.
	assert.Equal(t, 1, c.Stats().EntryCount)
	assert.Equal(t, 2, c.Stats().StoredCount)

	// Evicted entries reload from the store on demand.
	entry, ok := c.Get(ctx, hashA)
	require.True(t, ok)
	assert.Equal(t, hashA, entry.Meta.Hash)
}

func TestEvictToBudget_Explicit(t *testing.T) {
	c, _ := setupCache(t, 0)
	ctx := context.Background()

	chunksA, vectorsA, _ := testChunks("entry one ", 2)
	_, err := c.Put(ctx, "a.txt", "txt", 100, chunksA, vectorsA)
	require.NoError(t, err)
	chunksB, vectorsB, _ := testChunks("entry two ", 2)
	_, err = c.Put(ctx, "b.txt", "txt", 100, chunksB, vectorsB)
	require.NoError(t, err)

	evicted := c.EvictToBudget(0)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 0, c.Stats().EntryCount)
	assert.Equal(t, 2, c.Stats().StoredCount)
}

func TestStats_HitAndMissCounters(t *testing.T) {
	c, _ := setupCache(t, 0)
	ctx := context.Background()

	chunks, vectors, hash := testChunks("counted ", 2)
	_, err := c.Put(ctx, "a.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)

	before := c.Stats()
	_, ok := c.Get(ctx, hash)
	require.True(t, ok)
	_, ok = c.Get(ctx, "missing")
	require.False(t, ok)

	after := c.Stats()
	assert.Equal(t, before.Hits+1, after.Hits)
	assert.Equal(t, before.Misses+1, after.Misses)
}

func TestSources_Snapshot(t *testing.T) {
	c, _ := setupCache(t, 0)
	ctx := context.Background()

	chunks, vectors, hash := testChunks("listed ", 1)
	_, err := c.Put(ctx, "a.txt", "txt", 100, chunks, vectors)
	require.NoError(t, err)

	sources := c.Sources()
	assert.Equal(t, map[string]string{"a.txt": hash}, sources)

	// Mutating the snapshot does not touch the cache.
	delete(sources, "a.txt")
	_, ok := c.HashForSource("a.txt")
	assert.True(t, ok)
}
