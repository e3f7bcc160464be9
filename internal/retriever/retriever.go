package retriever

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/raglab/ragindex-mcp/internal/cache"
	"github.com/raglab/ragindex-mcp/internal/embedder"
	"github.com/raglab/ragindex-mcp/internal/textgen"
	"github.com/raglab/ragindex-mcp/internal/vectorindex"
	"github.com/raglab/ragindex-mcp/internal/websearch"
	"github.com/raglab/ragindex-mcp/pkg/types"
)

// Mode selects the retrieval strategy for a query.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeDeep     Mode = "deep"
	ModeTopic    Mode = "topic"
	ModeAdaptive Mode = "adaptive"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeFast:
		return ModeFast, nil
	case ModeDeep:
		return ModeDeep, nil
	case ModeTopic:
		return ModeTopic, nil
	case ModeAdaptive, "":
		return ModeAdaptive, nil
	default:
		return "", fmt.Errorf("unknown retrieval mode %q", s)
	}
}

// Config tunes the orchestrator.
type Config struct {
	TopK           int           // default result count (default 10)
	RRFConstant    float64       // k in 1/(k+rank), default 60
	Rewrites       int           // reformulated queries in deep mode, default 2
	WebTimeout     time.Duration // topic-mode web search deadline, default 10s
	OverallTimeout time.Duration // whole-request deadline across all legs, default 30s
	Heuristic      HeuristicConfig
	CacheSize      int // response cache entries, default 256
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	if c.Rewrites <= 0 {
		c.Rewrites = 2
	}
	if c.WebTimeout <= 0 {
		c.WebTimeout = 10 * time.Second
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = 30 * time.Second
	}
	if c.Heuristic == (HeuristicConfig{}) {
		c.Heuristic = DefaultHeuristic()
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
}

// Orchestrator executes retrieval strategies over the vector index, the
// document cache, and the web search collaborator.
type Orchestrator struct {
	index    *vectorindex.Index
	cache    *cache.Cache
	embedder embedder.Embedder
	web      websearch.Searcher
	gen      textgen.Generator
	cfg      Config

	respMu    sync.Mutex
	responses *lru.Cache[[32]byte, []types.RetrievalResult]
}

// New creates an orchestrator. web and gen may be nil; the corresponding
// strategies then degrade (topic becomes local-only, deep runs without
// rewrites and HyDE).
func New(index *vectorindex.Index, docCache *cache.Cache, emb embedder.Embedder,
	web websearch.Searcher, gen textgen.Generator, cfg Config) *Orchestrator {

	cfg.applyDefaults()
	responses, err := lru.New[[32]byte, []types.RetrievalResult](cfg.CacheSize)
	if err != nil {
		// Only reachable with a non-positive size
		responses, _ = lru.New[[32]byte, []types.RetrievalResult](256)
	}

	return &Orchestrator{
		index:     index,
		cache:     docCache,
		embedder:  emb,
		web:       web,
		gen:       gen,
		cfg:       cfg,
		responses: responses,
	}
}

// Retrieve executes the requested mode and returns ranked evidence. k <= 0
// falls back to the configured TopK.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, mode Mode, k int) ([]types.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = o.cfg.TopK
	}

	key := responseKey(query, mode, k)
	o.respMu.Lock()
	if cached, ok := o.responses.Get(key); ok {
		o.respMu.Unlock()
		return copyResults(cached), nil
	}
	o.respMu.Unlock()

	// Every leg of the fan-out shares one deadline. Legs that finished in
	// time still contribute; only a total failure surfaces an error.
	ctx, cancel := context.WithTimeout(ctx, o.cfg.OverallTimeout)
	defer cancel()

	var results []types.RetrievalResult
	var err error
	switch mode {
	case ModeFast:
		results, _, err = o.fast(ctx, query, k)
	case ModeDeep:
		results, err = o.deep(ctx, query, k)
	case ModeTopic:
		results, err = o.topic(ctx, query, k)
	case ModeAdaptive:
		results, err = o.adaptive(ctx, query, k)
	default:
		return nil, fmt.Errorf("unsupported retrieval mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	o.respMu.Lock()
	o.responses.Add(key, copyResults(results))
	o.respMu.Unlock()
	return results, nil
}

// InvalidateCache drops all cached responses. Called after the corpus
// changes.
func (o *Orchestrator) InvalidateCache() {
	o.respMu.Lock()
	o.responses.Purge()
	o.respMu.Unlock()
}

// fast embeds the raw query and runs one index query. The second return is
// the top similarity, which adaptive mode uses as its confidence signal.
func (o *Orchestrator) fast(ctx context.Context, query string, k int) ([]types.RetrievalResult, float64, error) {
	vec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", types.ErrRetrievalFailed, err)
	}

	hits, err := o.index.Query(vec, k)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", types.ErrRetrievalFailed, err)
	}

	results := make([]types.RetrievalResult, 0, len(hits))
	topSim := 0.0
	for i, hit := range hits {
		if i == 0 {
			topSim = hit.Similarity
		}
		res, ok := o.resolveLocal(ctx, hit.ChunkID, hit.Meta)
		if !ok {
			continue
		}
		res.Rank = len(results) + 1
		res.Score = hit.Similarity
		results = append(results, res)
	}
	return results, topSim, nil
}

// deep fans out the original query, M rewrites, and a HyDE vector, then
// fuses the ranked lists with RRF. Individual leg failures drop that list;
// only a total failure surfaces an error.
func (o *Orchestrator) deep(ctx context.Context, query string, k int) ([]types.RetrievalResult, error) {
	// Generator calls run before the fan-out; cap them at half the remaining
	// budget so a stalled generator cannot starve the vector legs.
	genCtx, genCancel := halfBudget(ctx)
	texts := []string{query}
	texts = append(texts, o.rewriteQuery(genCtx, query, o.cfg.Rewrites)...)
	if hyde := o.hypotheticalAnswer(genCtx, query); hyde != "" {
		texts = append(texts, hyde)
	}
	genCancel()

	lists := make([][]string, len(texts))
	payloads := make([]map[string]localPayload, len(texts))
	var failures int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		g.Go(func() error {
			list, payload, err := o.localList(gctx, text, k)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				log.Printf("retriever: deep leg failed: %v", err)
				return nil // isolated; do not cancel siblings
			}
			lists[i] = list
			payloads[i] = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failures == len(texts) {
		return nil, fmt.Errorf("%w: all %d query legs failed", types.ErrRetrievalFailed, len(texts))
	}

	merged := make(map[string]localPayload)
	for _, payload := range payloads {
		for key, p := range payload {
			merged[key] = p
		}
	}

	return o.assemble(ctx, fuseRRF(lists, o.cfg.RRFConstant), merged, nil, k), nil
}

// topic runs local retrieval and web search concurrently and fuses the two
// ranked lists. A web timeout or failure degrades to local-only.
func (o *Orchestrator) topic(ctx context.Context, query string, k int) ([]types.RetrievalResult, error) {
	var (
		localList    []string
		localPayload map[string]localPayload
		localErr     error

		webList    []string
		webPayload map[string]websearch.Result
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		localList, localPayload, localErr = o.localList(ctx, query, k)
	}()

	if o.web != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			webCtx, cancel := context.WithTimeout(ctx, o.cfg.WebTimeout)
			defer cancel()

			results, err := o.web.Search(webCtx, query)
			if err != nil {
				// Partial-result degradation: proceed local-only.
				log.Printf("retriever: web search unavailable, using local results only: %v", err)
				return
			}
			webPayload = make(map[string]websearch.Result, len(results))
			seen := make(map[string]bool, len(results))
			for _, r := range results {
				key := "web:" + websearch.NormalizeURL(r.URL)
				if seen[key] {
					continue
				}
				seen[key] = true
				webList = append(webList, key)
				webPayload[key] = r
			}
		}()
	}
	wg.Wait()

	if localErr != nil && len(webList) == 0 {
		return nil, fmt.Errorf("%w: local retrieval failed and no web results: %v", types.ErrRetrievalFailed, localErr)
	}

	lists := make([][]string, 0, 2)
	if localErr == nil {
		lists = append(lists, localList)
	}
	if len(webList) > 0 {
		lists = append(lists, webList)
	}

	return o.assemble(ctx, fuseRRF(lists, o.cfg.RRFConstant), localPayload, webPayload, k), nil
}

// adaptive runs fast first and escalates to deep or topic when the
// complexity heuristic says the fast result is not enough.
func (o *Orchestrator) adaptive(ctx context.Context, query string, k int) ([]types.RetrievalResult, error) {
	fastResults, topSim, err := o.fast(ctx, query, k)
	if err != nil {
		return nil, err
	}

	switch o.cfg.Heuristic.pick(query, topSim) {
	case ModeDeep:
		return o.deep(ctx, query, k)
	case ModeTopic:
		return o.topic(ctx, query, k)
	default:
		return fastResults, nil
	}
}

// localPayload keeps what assemble needs to build a local result.
type localPayload struct {
	chunkID int64
	meta    vectorindex.Metadata
}

// localList embeds text and returns the ranked local candidate keys plus
// their payloads.
func (o *Orchestrator) localList(ctx context.Context, text string, k int) ([]string, map[string]localPayload, error) {
	vec, err := o.embedder.Embed(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	hits, err := o.index.Query(vec, k)
	if err != nil {
		return nil, nil, err
	}

	list := make([]string, 0, len(hits))
	payload := make(map[string]localPayload, len(hits))
	for _, hit := range hits {
		key := localKey(hit.ChunkID)
		list = append(list, key)
		payload[key] = localPayload{chunkID: hit.ChunkID, meta: hit.Meta}
	}
	return list, payload, nil
}

// assemble turns fused candidates into ranked RetrievalResults, resolving
// local chunk text through the cache.
func (o *Orchestrator) assemble(ctx context.Context, fused []fusedCandidate,
	local map[string]localPayload, web map[string]websearch.Result, k int) []types.RetrievalResult {

	results := make([]types.RetrievalResult, 0, k)
	for _, cand := range fused {
		if len(results) == k {
			break
		}

		if p, ok := local[cand.Key]; ok {
			res, ok := o.resolveLocal(ctx, p.chunkID, p.meta)
			if !ok {
				continue
			}
			res.Rank = len(results) + 1
			res.Score = cand.Score
			results = append(results, res)
			continue
		}

		if w, ok := web[cand.Key]; ok {
			results = append(results, types.RetrievalResult{
				Rank:       len(results) + 1,
				Score:      cand.Score,
				Provenance: types.ProvenanceWeb,
				Text:       w.Snippet,
				Source:     websearch.NormalizeURL(w.URL),
				Title:      w.Title,
			})
		}
	}
	return results
}

// resolveLocal looks a chunk's text up in the document cache. A chunk whose
// entry has vanished (invalidated mid-flight) is skipped, not an error.
func (o *Orchestrator) resolveLocal(ctx context.Context, chunkID int64, meta vectorindex.Metadata) (types.RetrievalResult, bool) {
	entry, ok := o.cache.Get(ctx, meta.DocHash)
	if !ok {
		return types.RetrievalResult{}, false
	}
	for i, id := range entry.ChunkIDs {
		if id == chunkID {
			return types.RetrievalResult{
				ChunkID:    chunkID,
				Provenance: types.ProvenanceLocal,
				Text:       entry.Chunks[i].Text,
				Source:     entry.Meta.Source,
				DocHash:    entry.Meta.Hash,
				Page:       entry.Chunks[i].Page,
			}, true
		}
	}
	return types.RetrievalResult{}, false
}

// localKey formats a chunk id as a fusion candidate key. Zero padding keeps
// lexicographic tie-breaks equal to numeric chunk id order.
func localKey(chunkID int64) string {
	return "local:" + fmt.Sprintf("%012d", chunkID)
}

// halfBudget derives a context whose deadline is halfway to the parent's.
func halfBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(ctx, time.Now().Add(time.Until(deadline)/2))
	}
	return context.WithCancel(ctx)
}

func responseKey(query string, mode Mode, k int) [32]byte {
	return sha256.Sum256([]byte(query + "|" + string(mode) + "|" + strconv.Itoa(k)))
}

func copyResults(in []types.RetrievalResult) []types.RetrievalResult {
	out := make([]types.RetrievalResult, len(in))
	copy(out, in)
	return out
}
