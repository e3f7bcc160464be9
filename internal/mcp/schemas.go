package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// submitSearchTool returns the tool definition for submit_search
func submitSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "submit_search",
		Description: "Submit an asynchronous search over the document corpus; returns a task id immediately",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language search query",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Retrieval strategy: fast (single pass), deep (query rewriting + fusion), topic (local + web), or adaptive (heuristic escalation)",
					"enum":        []string{"fast", "deep", "topic", "adaptive"},
					"default":     "adaptive",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of sources to retrieve (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getProgressTool returns the tool definition for get_progress
func getProgressTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_progress",
		Description: "Query the execution status of a submitted search task",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Task id returned by submit_search",
				},
			},
			Required: []string{"task_id"},
		},
	}
}

// getResultsTool returns the tool definition for get_results
func getResultsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_results",
		Description: "Fetch the answer and sources of a completed search task",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Task id returned by submit_search",
				},
			},
			Required: []string{"task_id"},
		},
	}
}

// cancelSearchTool returns the tool definition for cancel_search
func cancelSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cancel_search",
		Description: "Request cooperative cancellation of a running search task",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Task id returned by submit_search",
				},
			},
			Required: []string{"task_id"},
		},
	}
}

// addDocumentsTool returns the tool definition for add_documents
func addDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_documents",
		Description: "Ingest documents into the corpus; unchanged content is reused from the cache",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"description": "Absolute paths of document files to ingest",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"format": map[string]interface{}{
					"type":        "string",
					"description": "Declared document format (txt, md); inferred from the file extension when omitted",
				},
			},
			Required: []string{"paths"},
		},
	}
}

// removeDocumentsTool returns the tool definition for remove_documents
func removeDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_documents",
		Description: "Remove documents from the corpus and the search index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"description": "Source identifiers of the documents to remove",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"paths"},
		},
	}
}

// getCacheStatsTool returns the tool definition for get_cache_stats
func getCacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_cache_stats",
		Description: "Report document cache and vector index statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
