// Package retriever implements the multi-strategy retrieval orchestrator.
//
// Four modes are supported:
//
//   - fast: one embedding of the raw query, one index query.
//   - deep: the original query plus M rewrites plus a HyDE vector, each run
//     against the index, fused with Reciprocal Rank Fusion.
//   - topic: local retrieval and a live web search run concurrently and are
//     fused; a web timeout degrades to local-only rather than failing.
//   - adaptive: runs fast, then a complexity heuristic decides whether to
//     escalate to deep or topic. Adaptive is a policy over the other three,
//     not a fifth algorithm.
//
// Fusion ordering is deterministic: RRF score descending, then best
// individual rank, then chunk id. A candidate missing from a list
// contributes zero from that list. Individual evidence sources that fail are
// dropped from fusion; only the total loss of every source in a request
// surfaces types.ErrRetrievalFailed.
//
// Every request runs under one overall deadline shared by all fan-out legs;
// legs that finish in time contribute even when slower legs expire.
package retriever
