package docmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/raglab/ragindex-mcp/internal/cache"
	"github.com/raglab/ragindex-mcp/internal/chunker"
	"github.com/raglab/ragindex-mcp/internal/embedder"
	"github.com/raglab/ragindex-mcp/internal/extract"
	"github.com/raglab/ragindex-mcp/internal/vectorindex"
	"github.com/raglab/ragindex-mcp/pkg/types"
)

// Source is one document to ingest. Name is the source identifier used for
// reconciliation; it defaults to Path when empty. Raw takes precedence over
// Path when set.
type Source struct {
	Name   string
	Path   string
	Raw    []byte
	Format string // declared type; inferred from the path extension when empty
}

// SourceError pairs a failed source with its error.
type SourceError struct {
	Source string
	Err    error
}

// Report summarizes a batch ingestion. Per-source failures are isolated
// here; they never abort sibling sources.
type Report struct {
	Succeeded []string
	Failed    []SourceError
}

// Config contains configuration for the manager
type Config struct {
	MaxParallel  int // concurrent sources per batch (default: runtime.NumCPU())
	ChunkSize    int // target characters per chunk
	ChunkOverlap int // characters of overlap between adjacent chunks
}

// Manager coordinates the ingestion pipeline: extract -> chunk -> embed ->
// cache, and registers the results with the vector index. It holds the only
// reference between the two; the index never references the manager back.
type Manager struct {
	cache     *cache.Cache
	index     *vectorindex.Index
	processor extract.Processor
	embedder  embedder.Embedder
	chunker   *chunker.Chunker

	maxParallel int

	mu         sync.Mutex
	registered map[string]struct{} // hashes currently in the vector index
}

// New creates a Manager.
func New(docCache *cache.Cache, index *vectorindex.Index, processor extract.Processor,
	emb embedder.Embedder, cfg Config) *Manager {

	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = runtime.NumCPU()
	}
	return &Manager{
		cache:     docCache,
		index:     index,
		processor: processor,
		embedder:  emb,
		chunker: chunker.NewWithConfig(chunker.Config{
			TargetSize: cfg.ChunkSize,
			Overlap:    cfg.ChunkOverlap,
		}),
		maxParallel: cfg.MaxParallel,
		registered:  make(map[string]struct{}),
	}
}

// Bootstrap rebuilds the in-memory vector index from the persisted chunk
// index. Called once at startup.
func (m *Manager) Bootstrap(ctx context.Context) error {
	live, err := m.cache.LiveChunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chunk index: %w", err)
	}

	hashes := make([]string, 0, len(live))
	seen := make(map[string]struct{}, len(live))
	for _, e := range live {
		if _, ok := seen[e.DocHash]; ok {
			continue
		}
		seen[e.DocHash] = struct{}{}
		hashes = append(hashes, e.DocHash)
	}

	for _, hash := range hashes {
		entry, ok := m.cache.Get(ctx, hash)
		if !ok {
			// Corrupted entries were discarded by the cache; their sources
			// will be reprocessed on the next add.
			continue
		}
		if err := m.register(entry); err != nil {
			return fmt.Errorf("failed to register %s: %w", hash, err)
		}
	}
	return nil
}

// Ingest processes one source: hash, cache lookup, extract, chunk, embed,
// store. Re-ingesting byte-identical content returns the existing entry
// without creating duplicate chunks or index entries.
func (m *Manager) Ingest(ctx context.Context, src Source) (*cache.Entry, error) {
	raw, name, format, err := m.resolve(src)
	if err != nil {
		return nil, err
	}

	hash := types.HashBytes(raw)

	// A changed-but-same-named source drops its old association first; the
	// old entry goes too once no other source references it.
	if oldHash, ok := m.cache.HashForSource(name); ok && oldHash != hash {
		_, remaining, err := m.cache.DropSource(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to drop stale source %s: %w", name, err)
		}
		if remaining == 0 {
			if err := m.removeHash(ctx, oldHash); err != nil {
				return nil, fmt.Errorf("failed to drop stale entry for %s: %w", name, err)
			}
		}
	}

	if entry, ok := m.cache.Get(ctx, hash); ok {
		if err := m.cache.RecordSource(ctx, name, hash); err != nil {
			return nil, err
		}
		return entry, nil
	}

	segments, err := m.processor.Extract(raw, format)
	if err != nil {
		return nil, err
	}

	chunks := m.chunker.Split(segments, hash)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text extracted from %s", types.ErrExtraction, name)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	return m.cache.Put(ctx, name, format, int64(len(raw)), chunks, vectors)
}

// BatchIngest processes independent sources concurrently, bounded by
// maxParallel. Each source's failure is collected into the report and does
// not abort sibling processing.
func (m *Manager) BatchIngest(ctx context.Context, sources []Source, maxParallel int) (*Report, []*cache.Entry) {
	if maxParallel <= 0 {
		maxParallel = m.maxParallel
	}

	report := &Report{}
	entries := make([]*cache.Entry, 0, len(sources))
	semaphore := make(chan struct{}, maxParallel)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			entry, err := m.Ingest(gctx, src)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, SourceError{Source: src.Identifier(), Err: err})
				return nil // isolated failure
			}
			report.Succeeded = append(report.Succeeded, src.Identifier())
			entries = append(entries, entry)
			return nil
		})
	}
	_ = g.Wait() // per-source errors are in the report; only cancellation escapes

	sort.Strings(report.Succeeded)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Source < report.Failed[j].Source })
	return report, entries
}

// Reconcile computes the set difference between the desired source set and
// the currently ingested one. Identity is the source identifier, not the
// content hash, so a changed-but-same-named source appears in neither set
// and is handled by Ingest's stale-entry replacement.
func (m *Manager) Reconcile(desired []string) (toAdd, toRemove []string) {
	current := m.cache.Sources()
	desiredSet := make(map[string]struct{}, len(desired))
	for _, name := range desired {
		desiredSet[name] = struct{}{}
		if _, ok := current[name]; !ok {
			toAdd = append(toAdd, name)
		}
	}
	for name := range current {
		if _, ok := desiredSet[name]; !ok {
			toRemove = append(toRemove, name)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

// AddDocuments ingests the sources and registers every resulting chunk and
// embedding with the vector index.
func (m *Manager) AddDocuments(ctx context.Context, sources []Source) (*Report, error) {
	report, entries := m.BatchIngest(ctx, sources, m.maxParallel)
	for _, entry := range entries {
		if err := m.register(entry); err != nil {
			return report, err
		}
	}
	return report, nil
}

// RemoveDocuments drops each source. The entry and its index chunks only go
// when the last source referencing the hash is removed. Unknown sources are
// skipped.
func (m *Manager) RemoveDocuments(ctx context.Context, sources []string) error {
	for _, name := range sources {
		hash, remaining, err := m.cache.DropSource(ctx, name)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
		if remaining > 0 {
			continue
		}
		if err := m.removeHash(ctx, hash); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

// register adds an entry's chunks to the vector index exactly once per hash.
func (m *Manager) register(entry *cache.Entry) error {
	m.mu.Lock()
	if _, ok := m.registered[entry.Meta.Hash]; ok {
		m.mu.Unlock()
		return nil
	}
	m.registered[entry.Meta.Hash] = struct{}{}
	m.mu.Unlock()

	for i, chunkID := range entry.ChunkIDs {
		_, err := m.index.Add(chunkID, entry.Vectors[i], vectorindex.Metadata{
			DocHash: entry.Meta.Hash,
			Source:  entry.Meta.Source,
			Page:    entry.Chunks[i].Page,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// removeHash drops a hash from the index and the cache.
func (m *Manager) removeHash(ctx context.Context, hash string) error {
	if entry, ok := m.cache.Get(ctx, hash); ok {
		ids := make(map[int64]struct{}, len(entry.ChunkIDs))
		for _, id := range entry.ChunkIDs {
			ids[id] = struct{}{}
		}
		m.index.Remove(ids)
	}

	m.mu.Lock()
	delete(m.registered, hash)
	m.mu.Unlock()

	return m.cache.Invalidate(ctx, hash)
}

// resolve loads the source bytes and fills in defaults.
func (m *Manager) resolve(src Source) (raw []byte, name, format string, err error) {
	name = src.Identifier()
	if name == "" {
		return nil, "", "", fmt.Errorf("source has no identifier")
	}

	raw = src.Raw
	if raw == nil {
		raw, err = os.ReadFile(src.Path)
		if err != nil {
			return nil, "", "", fmt.Errorf("%w: %v", types.ErrExtraction, err)
		}
	}

	format = src.Format
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(name), ".")
		if format == "" {
			format = "txt"
		}
	}
	return raw, name, format, nil
}

// Identifier returns the source's reconciliation identity.
func (s Source) Identifier() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Path
}
