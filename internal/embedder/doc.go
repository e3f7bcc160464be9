// Package embedder generates fixed-dimension vectors for chunks and queries.
//
// Three providers are supported: OpenAI and Jina over their HTTP APIs (with
// exponential-backoff retry), and a deterministic local provider that hashes
// word features and needs no network. Results are cached by text hash in an
// LRU cache so re-ingesting unchanged content never re-embeds it.
//
// # Provider Selection
//
//	emb, err := embedder.NewFromEnv()
//
// selects by RAGINDEX_EMBEDDING_PROVIDER, then by available API keys, and
// falls back to the local provider.
package embedder
