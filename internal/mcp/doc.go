// Package mcp implements the Model Context Protocol (MCP) server for RAGIndex.
//
// The MCP server exposes seven tools to AI assistants (Claude Code, Codex CLI):
//   - submit_search: Start an asynchronous search over the document corpus
//   - get_progress: Poll a search task's execution status
//   - get_results: Fetch a completed task's answer and sources
//   - cancel_search: Request cooperative cancellation of a task
//   - add_documents: Ingest documents into the corpus
//   - remove_documents: Remove documents from the corpus and index
//   - get_cache_stats: Report cache and index statistics
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output,
// making it simple to integrate with any MCP-compatible client.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	ragindex serve
//
// It then listens on stdin for MCP protocol messages and writes responses to stdout.
//
// # Tool: submit_search
//
// Submit a search and receive a task id without waiting for execution:
//
//	Request:
//	{
//	  "name": "submit_search",
//	  "arguments": {
//	    "query": "how does leader election recover from a partition?",
//	    "mode": "adaptive",
//	    "max_results": 10
//	  }
//	}
//
//	Response:
//	{
//	  "task_id": "8b0c9c2e-26b4-4f62-9f0e-6f6f6f1a2b3c",
//	  "state": "pending"
//	}
//
// The mode selects the retrieval strategy: fast embeds the query once, deep
// adds query rewrites and a hypothetical answer fused with Reciprocal Rank
// Fusion, topic fuses local retrieval with a live web search, and adaptive
// picks among them from query complexity.
//
// # Tool: get_progress
//
// Poll the task by id. States are pending, running, completed, failed, and
// cancelled; while running, the response names the current pipeline step
// (parsing, searching, retrieving, generating) and a coarse percentage:
//
//	Response:
//	{
//	  "task_id": "8b0c9c2e-...",
//	  "state": "running",
//	  "step": "retrieving",
//	  "message": "collected 10 sources",
//	  "percent": 60
//	}
//
// # Tool: get_results
//
// Fetch the answer and ranked sources of a completed task. Calling before
// completion yields error -32002; an unknown or evicted task id yields
// -32001; a failed task yields -32603 carrying the pipeline error.
//
// # Tool: cancel_search
//
// Request cancellation. The pipeline observes the request between steps, so
// a task may still complete if it was already past its last checkpoint.
// Cancelling a finished task is a no-op.
//
// # Tool: add_documents / remove_documents
//
// add_documents ingests files by absolute path. Content is content-addressed:
// re-adding unchanged bytes reuses the cached extraction, chunks, and
// embeddings without touching the embedding provider. Per-file failures are
// reported alongside the successes and never abort the batch.
// remove_documents drops the named sources from the index and cache.
//
// # Tool: get_cache_stats
//
// Reports resident and persisted entry counts, memory consumption against
// the configured budget, hit and miss counters, and vector index size.
//
// # Error Codes
//
//	-32602  invalid parameters
//	-32603  internal error (including failed tasks)
//	-32001  unknown task id
//	-32002  results not ready
//	-32004  empty query
package mcp
