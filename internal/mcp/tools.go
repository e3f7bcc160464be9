package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/raglab/ragindex-mcp/internal/docmgr"
	"github.com/raglab/ragindex-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeTaskNotFound    = -32001 // Unknown or evicted task id
	ErrorCodeResultsNotReady = -32002 // Task has not reached a result-bearing state
	ErrorCodeEmptyQuery      = -32004 // Query parameter is empty
)

// handleSubmitSearch handles the submit_search tool invocation
func (s *Server) handleSubmitSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	mode := getStringDefault(args, "mode", "adaptive")

	maxResults := getIntDefault(args, "max_results", 10)
	if maxResults < 1 || maxResults > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_results must be between 1 and 100", map[string]interface{}{
			"param": "max_results",
			"value": maxResults,
		})
	}

	taskID, err := s.tasks.Submit(query, mode, maxResults)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "failed to submit search", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"task_id": taskID,
		"state":   "pending",
	})), nil
}

// handleGetProgress handles the get_progress tool invocation
func (s *Server) handleGetProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, mcpErr := taskIDParam(request)
	if mcpErr != nil {
		return nil, mcpErr
	}

	progress, err := s.tasks.Progress(taskID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, newMCPError(ErrorCodeTaskNotFound, "unknown task", map[string]interface{}{
			"task_id": taskID,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get progress", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"task_id": taskID,
		"state":   string(progress.State),
		"step":    string(progress.Step),
		"message": progress.Message,
		"percent": progress.Percent,
	})), nil
}

// handleGetResults handles the get_results tool invocation
func (s *Server) handleGetResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, mcpErr := taskIDParam(request)
	if mcpErr != nil {
		return nil, mcpErr
	}

	result, err := s.tasks.Results(taskID)
	switch {
	case errors.Is(err, types.ErrNotFound):
		return nil, newMCPError(ErrorCodeTaskNotFound, "unknown task", map[string]interface{}{
			"task_id": taskID,
		})
	case errors.Is(err, types.ErrNotReady):
		return nil, newMCPError(ErrorCodeResultsNotReady, "task has no results yet", map[string]interface{}{
			"task_id": taskID,
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
	}

	sources := make([]map[string]interface{}, 0, len(result.Sources))
	for _, r := range result.Sources {
		source := map[string]interface{}{
			"rank":       r.Rank,
			"score":      r.Score,
			"provenance": string(r.Provenance),
			"text":       r.Text,
			"source":     r.Source,
		}
		if r.Provenance == types.ProvenanceLocal {
			source["chunk_id"] = r.ChunkID
			source["doc_hash"] = r.DocHash
			if r.Page > 0 {
				source["page"] = r.Page
			}
		} else if r.Title != "" {
			source["title"] = r.Title
		}
		sources = append(sources, source)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"task_id": taskID,
		"answer":  result.Answer,
		"sources": sources,
	})), nil
}

// handleCancelSearch handles the cancel_search tool invocation
func (s *Server) handleCancelSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, mcpErr := taskIDParam(request)
	if mcpErr != nil {
		return nil, mcpErr
	}

	err := s.tasks.Cancel(taskID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, newMCPError(ErrorCodeTaskNotFound, "unknown task", map[string]interface{}{
			"task_id": taskID,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to cancel task", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"task_id":   taskID,
		"cancelled": true,
	})), nil
}

// handleAddDocuments handles the add_documents tool invocation
func (s *Server) handleAddDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	paths, mcpErr := pathsParam(args)
	if mcpErr != nil {
		return nil, mcpErr
	}
	format := getStringDefault(args, "format", "")

	sources := make([]docmgr.Source, len(paths))
	for i, path := range paths {
		sources[i] = docmgr.Source{Path: path, Format: format}
	}

	report, err := s.docs.AddDocuments(ctx, sources)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to register documents", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Retrieval responses may now be stale.
	s.retr.InvalidateCache()

	response := map[string]interface{}{
		"added":       report.Succeeded,
		"added_count": len(report.Succeeded),
	}
	if len(report.Failed) > 0 {
		failures := make([]map[string]interface{}, len(report.Failed))
		for i, f := range report.Failed {
			failures[i] = map[string]interface{}{
				"source": f.Source,
				"error":  f.Err.Error(),
			}
		}
		response["failed"] = failures
		response["failed_count"] = len(report.Failed)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRemoveDocuments handles the remove_documents tool invocation
func (s *Server) handleRemoveDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	paths, mcpErr := pathsParam(args)
	if mcpErr != nil {
		return nil, mcpErr
	}

	if err := s.docs.RemoveDocuments(ctx, paths); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to remove documents", map[string]interface{}{
			"error": err.Error(),
		})
	}

	s.retr.InvalidateCache()

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"removed": paths,
	})), nil
}

// handleGetCacheStats handles the get_cache_stats tool invocation
func (s *Server) handleGetCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.cache.Stats()

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cache": map[string]interface{}{
			"entries_in_memory": stats.EntryCount,
			"entries_stored":    stats.StoredCount,
			"bytes_in_memory":   stats.TotalBytes,
			"budget_bytes":      stats.BudgetBytes,
			"hits":              stats.Hits,
			"misses":            stats.Misses,
		},
		"index": map[string]interface{}{
			"vectors":   s.index.Len(),
			"dimension": s.index.Dimension(),
		},
	})), nil
}

// Helper functions

// taskIDParam extracts the required task_id argument.
func taskIDParam(request mcp.CallToolRequest) (string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "task_id parameter is required", map[string]interface{}{
			"param":  "task_id",
			"reason": "missing or empty",
		})
	}
	return taskID, nil
}

// pathsParam extracts the required paths array argument.
func pathsParam(args map[string]interface{}) ([]string, error) {
	raw, ok := args["paths"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "paths parameter is required", map[string]interface{}{
			"param":  "paths",
			"reason": "missing or empty",
		})
	}
	paths := make([]string, len(raw))
	for i, v := range raw {
		path, ok := v.(string)
		if !ok || path == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "paths must be non-empty strings", map[string]interface{}{
				"param": "paths",
				"index": i,
			})
		}
		paths[i] = path
	}
	return paths, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
