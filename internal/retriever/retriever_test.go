package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raglab/ragindex-mcp/internal/cache"
	"github.com/raglab/ragindex-mcp/internal/embedder"
	"github.com/raglab/ragindex-mcp/internal/storage"
	"github.com/raglab/ragindex-mcp/internal/textgen"
	"github.com/raglab/ragindex-mcp/internal/vectorindex"
	"github.com/raglab/ragindex-mcp/internal/websearch"
	"github.com/raglab/ragindex-mcp/pkg/types"
)

// stubWeb is a scripted web search collaborator.
type stubWeb struct {
	results []websearch.Result
	err     error
	calls   int
}

func (s *stubWeb) Search(ctx context.Context, query string) ([]websearch.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

// stubGen returns a fixed completion for every prompt.
type stubGen struct {
	response string
	err      error
}

func (s *stubGen) Generate(ctx context.Context, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

// failingEmbedder always errors, for exercising total retrieval failure.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) (types.EmbeddingVector, error) {
	return nil, errors.New("embedder offline")
}
func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingVector, error) {
	return nil, errors.New("embedder offline")
}
func (failingEmbedder) Dimension() int   { return embedder.LocalDimension }
func (failingEmbedder) Provider() string { return "failing" }
func (failingEmbedder) Close() error     { return nil }

// blockingEmbedder parks every call until the context expires.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, text string) (types.EmbeddingVector, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingVector, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (blockingEmbedder) Dimension() int   { return embedder.LocalDimension }
func (blockingEmbedder) Provider() string { return "blocking" }
func (blockingEmbedder) Close() error     { return nil }

// laggedEmbedder answers the allowed text immediately and parks every other
// call until the context expires.
type laggedEmbedder struct {
	inner embedder.Embedder
	allow string
}

func (e *laggedEmbedder) Embed(ctx context.Context, text string) (types.EmbeddingVector, error) {
	if text == e.allow {
		return e.inner.Embed(ctx, text)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}
func (e *laggedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingVector, error) {
	return e.inner.EmbedBatch(ctx, texts)
}
func (e *laggedEmbedder) Dimension() int   { return e.inner.Dimension() }
func (e *laggedEmbedder) Provider() string { return "lagged" }
func (e *laggedEmbedder) Close() error     { return nil }

// blockingGen parks until the context expires.
type blockingGen struct{}

func (blockingGen) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type harness struct {
	cache *cache.Cache
	index *vectorindex.Index
	emb   embedder.Embedder
}

func newHarness(t *testing.T) *harness {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c, err := cache.New(store, 0)
	require.NoError(t, err)

	ix, err := vectorindex.New(embedder.LocalDimension)
	require.NoError(t, err)

	return &harness{cache: c, index: ix, emb: embedder.NewLocalProvider(nil)}
}

// addDoc ingests paragraphs as one document and registers its chunks.
func (h *harness) addDoc(t *testing.T, source string, paragraphs ...string) string {
	raw := []byte(strings.Join(paragraphs, "\n\n"))
	hash := types.HashBytes(raw)

	ctx := context.Background()
	chunks := make([]types.DocumentChunk, len(paragraphs))
	texts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		chunks[i] = types.DocumentChunk{Index: i, Text: p, Page: 1, DocHash: hash}
		texts[i] = p
	}
	vectors, err := h.emb.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	entry, err := h.cache.Put(ctx, source, "txt", int64(len(raw)), chunks, vectors)
	require.NoError(t, err)

	for i, chunkID := range entry.ChunkIDs {
		_, err := h.index.Add(chunkID, entry.Vectors[i], vectorindex.Metadata{
			DocHash: hash,
			Source:  source,
			Page:    entry.Chunks[i].Page,
		})
		require.NoError(t, err)
	}
	return hash
}

func (h *harness) orchestrator(web websearch.Searcher, gen textgen.Generator, cfg Config) *Orchestrator {
	return New(h.index, h.cache, h.emb, web, gen, cfg)
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"fast", "deep", "topic", "adaptive", "FAST", ""} {
		_, err := ParseMode(s)
		assert.NoError(t, err, s)
	}

	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAdaptive, mode)

	_, err = ParseMode("psychic")
	assert.Error(t, err)
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(nil, nil, Config{})

	_, err := o.Retrieve(context.Background(), "   ", ModeFast, 5)
	assert.Error(t, err)
}

func TestFast_RanksMatchingChunksFirst(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "storage.txt",
		"the cache evicts least recently used entries under memory pressure",
		"sqlite persists every document entry across restarts")
	h.addDoc(t, "garden.txt",
		"roses bloom in spring when the weather warms")

	o := h.orchestrator(nil, nil, Config{})
	results, err := o.Retrieve(context.Background(), "cache evicts entries under memory pressure", ModeFast, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, types.ProvenanceLocal, results[0].Provenance)
	assert.Equal(t, "storage.txt", results[0].Source)
	assert.Contains(t, results[0].Text, "cache evicts")
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
		assert.Equal(t, i+1, results[i].Rank)
	}
}

func TestFast_EmptyIndexYieldsEmptyResults(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(nil, nil, Config{})

	results, err := o.Retrieve(context.Background(), "anything at all", ModeFast, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFast_SkipsVanishedChunks(t *testing.T) {
	h := newHarness(t)
	hash := h.addDoc(t, "doomed.txt", "content that will be invalidated")

	// The index still references the chunk, but the cache entry is gone.
	require.NoError(t, h.cache.Invalidate(context.Background(), hash))

	o := h.orchestrator(nil, nil, Config{})
	results, err := o.Retrieve(context.Background(), "content that will be invalidated", ModeFast, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeep_WithoutGeneratorStillRetrieves(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "a.txt", "reciprocal rank fusion merges ranked candidate lists")

	o := h.orchestrator(nil, nil, Config{})
	results, err := o.Retrieve(context.Background(), "rank fusion merges lists", ModeDeep, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.txt", results[0].Source)
}

func TestDeep_RewritesWidenTheNet(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "direct.txt", "vector index lookup latency")
	h.addDoc(t, "aside.txt", "embedding cache warm start behaviour")

	gen := &stubGen{response: "embedding cache warm start behaviour\nvector lookup speed"}
	o := h.orchestrator(nil, gen, Config{Rewrites: 2})

	results, err := o.Retrieve(context.Background(), "vector index lookup latency", ModeDeep, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	sources := make(map[string]bool)
	for _, r := range results {
		sources[r.Source] = true
	}
	// The rewrite leg pulls in the document the raw query alone would rank
	// lower.
	assert.True(t, sources["direct.txt"])
	assert.True(t, sources["aside.txt"])
}

func TestDeep_GeneratorFailureDegradesToSingleLeg(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "a.txt", "single leg retrieval still works")

	gen := &stubGen{err: errors.New("llm down")}
	o := h.orchestrator(nil, gen, Config{})

	results, err := o.Retrieve(context.Background(), "single leg retrieval", ModeDeep, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestDeep_TotalFailure(t *testing.T) {
	h := newHarness(t)
	o := New(h.index, h.cache, failingEmbedder{}, nil, nil, Config{})

	_, err := o.Retrieve(context.Background(), "anything", ModeDeep, 5)
	assert.ErrorIs(t, err, types.ErrRetrievalFailed)
}

func TestTopic_FusesLocalAndWeb(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "local.txt", "distributed consensus with raft leader election")

	web := &stubWeb{results: []websearch.Result{
		{Title: "Raft paper", URL: "https://example.com/raft", Snippet: "In search of an understandable consensus algorithm"},
		{Title: "Dup", URL: "https://Example.com/raft/", Snippet: "same page, messier url"},
		{Title: "Other", URL: "https://example.org/paxos", Snippet: "Paxos made moderately complex"},
	}}
	o := h.orchestrator(web, nil, Config{})

	results, err := o.Retrieve(context.Background(), "raft leader election consensus", ModeTopic, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 1, web.calls)

	var localSeen, webSeen int
	urls := make(map[string]bool)
	for _, r := range results {
		switch r.Provenance {
		case types.ProvenanceLocal:
			localSeen++
		case types.ProvenanceWeb:
			webSeen++
			assert.False(t, urls[r.Source], "duplicate web url %s", r.Source)
			urls[r.Source] = true
			assert.NotEmpty(t, r.Title)
		}
	}
	assert.Equal(t, 1, localSeen)
	// The two equivalent raft urls collapsed into one candidate.
	assert.Equal(t, 2, webSeen)
}

func TestTopic_WebFailureDegradesToLocalOnly(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "local.txt", "degraded retrieval keeps serving local evidence")

	web := &stubWeb{err: fmt.Errorf("%w: throttled", types.ErrSearchUnavailable)}
	o := h.orchestrator(web, nil, Config{})

	results, err := o.Retrieve(context.Background(), "degraded retrieval local evidence", ModeTopic, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, types.ProvenanceLocal, r.Provenance)
	}
}

func TestTopic_LocalFailureWithWebResults(t *testing.T) {
	h := newHarness(t)
	web := &stubWeb{results: []websearch.Result{
		{Title: "Only web", URL: "https://example.com/only", Snippet: "web snippet"},
	}}
	o := New(h.index, h.cache, failingEmbedder{}, web, nil, Config{})

	results, err := o.Retrieve(context.Background(), "anything", ModeTopic, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.ProvenanceWeb, results[0].Provenance)
}

func TestTopic_EverythingFails(t *testing.T) {
	h := newHarness(t)
	web := &stubWeb{err: errors.New("down")}
	o := New(h.index, h.cache, failingEmbedder{}, web, nil, Config{})

	_, err := o.Retrieve(context.Background(), "anything", ModeTopic, 5)
	assert.ErrorIs(t, err, types.ErrRetrievalFailed)
}

func TestAdaptive_SimpleQueryStaysLocal(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "a.txt", "cache eviction policy details")

	web := &stubWeb{}
	o := h.orchestrator(web, nil, Config{})

	results, err := o.Retrieve(context.Background(), "cache eviction policy details", ModeAdaptive, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 0, web.calls, "a confident simple query must not reach the web")
}

func TestAdaptive_ComplexQueryReachesTheWeb(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "a.txt", "storage engine write amplification")

	web := &stubWeb{results: []websearch.Result{
		{Title: "Benchmarks", URL: "https://example.com/bench", Snippet: "engine comparison"},
	}}
	o := h.orchestrator(web, nil, Config{})

	query := "summarize and compare the overall performance differences between the two storage engines under heavy write load"
	_, err := o.Retrieve(context.Background(), query, ModeAdaptive, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, web.calls)
}

func TestRetrieve_ResponseCacheHit(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "a.txt", "response caching avoids repeated work")

	web := &stubWeb{results: []websearch.Result{
		{Title: "W", URL: "https://example.com/w", Snippet: "snippet"},
	}}
	o := h.orchestrator(web, nil, Config{})
	ctx := context.Background()

	first, err := o.Retrieve(ctx, "response caching repeated work", ModeTopic, 5)
	require.NoError(t, err)
	second, err := o.Retrieve(ctx, "response caching repeated work", ModeTopic, 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, web.calls, "second call must come from the response cache")

	o.InvalidateCache()
	_, err = o.Retrieve(ctx, "response caching repeated work", ModeTopic, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, web.calls)
}

func TestRetrieve_OverallDeadlineBoundsStalledLegs(t *testing.T) {
	h := newHarness(t)
	o := New(h.index, h.cache, blockingEmbedder{}, nil, nil, Config{OverallTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := o.Retrieve(context.Background(), "anything", ModeFast, 5)
	assert.ErrorIs(t, err, types.ErrRetrievalFailed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDeep_StalledGeneratorDegradesWithinDeadline(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "a.txt", "the original query leg still answers")

	o := h.orchestrator(nil, blockingGen{}, Config{OverallTimeout: 200 * time.Millisecond})

	start := time.Now()
	results, err := o.Retrieve(context.Background(), "original query leg", ModeDeep, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDeep_CompletedLegsSurviveDeadlineExpiry(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "a.txt", "fast leg evidence about fusion")

	query := "evidence about fusion"
	gen := &stubGen{response: "slow rewrite one\nslow rewrite two"}
	emb := &laggedEmbedder{inner: h.emb, allow: query}
	o := New(h.index, h.cache, emb, nil, gen, Config{OverallTimeout: 150 * time.Millisecond})

	// The rewrite legs hang until the deadline; the original leg's results
	// still come back.
	results, err := o.Retrieve(context.Background(), query, ModeDeep, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.txt", results[0].Source)
}

func TestRetrieve_ResultCapRespected(t *testing.T) {
	h := newHarness(t)
	h.addDoc(t, "a.txt",
		"first paragraph about indexing",
		"second paragraph about indexing",
		"third paragraph about indexing",
		"fourth paragraph about indexing")

	o := h.orchestrator(nil, nil, Config{})
	results, err := o.Retrieve(context.Background(), "paragraph about indexing", ModeFast, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}
