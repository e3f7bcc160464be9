// Package websearch implements the web search collaborator over the
// DuckDuckGo HTML endpoint, with outbound rate limiting and URL
// normalization for result deduplication. Failures surface as
// types.ErrSearchUnavailable; the retrieval orchestrator treats them as a
// degraded (local-only) condition, not a request failure.
package websearch
