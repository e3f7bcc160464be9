package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mark3labs/mcp-go/server"

	"github.com/raglab/ragindex-mcp/internal/cache"
	"github.com/raglab/ragindex-mcp/internal/docmgr"
	"github.com/raglab/ragindex-mcp/internal/embedder"
	"github.com/raglab/ragindex-mcp/internal/extract"
	"github.com/raglab/ragindex-mcp/internal/retriever"
	"github.com/raglab/ragindex-mcp/internal/storage"
	"github.com/raglab/ragindex-mcp/internal/taskmgr"
	"github.com/raglab/ragindex-mcp/internal/textgen"
	"github.com/raglab/ragindex-mcp/internal/vectorindex"
	"github.com/raglab/ragindex-mcp/internal/websearch"
)

const (
	// ServerName is the MCP server name
	ServerName = "ragindex-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.ragindex"

	// EnvDBPath overrides the database directory
	EnvDBPath = "RAGINDEX_DB_PATH"
	// EnvCacheBudget overrides the in-memory cache budget in bytes
	EnvCacheBudget = "RAGINDEX_CACHE_BUDGET_BYTES"
	// EnvDisableWeb disables live web search when set to a truthy value
	EnvDisableWeb = "RAGINDEX_DISABLE_WEB"
	// EnvDisableGen disables answer generation when set to a truthy value
	EnvDisableGen = "RAGINDEX_DISABLE_GENERATION"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	storage storage.Storage
	cache   *cache.Cache
	index   *vectorindex.Index
	docs    *docmgr.Manager
	retr    *retriever.Orchestrator
	tasks   *taskmgr.Manager
}

// NewServer creates a new MCP server instance
func NewServer(dbPath string) (*Server, error) {
	if env := os.Getenv(EnvDBPath); dbPath == "" && env != "" {
		dbPath = env
	}
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".ragindex")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(filepath.Join(dbPath, "ragindex.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	budget := int64(0)
	if raw := os.Getenv(EnvCacheBudget); raw != "" {
		if parsed, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			budget = parsed
		}
	}
	docCache, err := cache.New(store, budget)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize document cache: %w", err)
	}

	index, err := vectorindex.New(emb.Dimension())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	docs := docmgr.New(docCache, index, extract.NewRegistry(), emb, docmgr.Config{})
	if err := docs.Bootstrap(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to reload persisted documents: %w", err)
	}

	var web websearch.Searcher
	if os.Getenv(EnvDisableWeb) == "" {
		web = websearch.NewHTTPSearcher()
	}
	var gen textgen.Generator
	if os.Getenv(EnvDisableGen) == "" {
		gen = textgen.NewFromEnv()
	}

	retr := retriever.New(index, docCache, emb, web, gen, retriever.Config{})
	tasks := taskmgr.New(retr, gen, taskmgr.Config{})

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		storage: store,
		cache:   docCache,
		index:   index,
		docs:    docs,
		retr:    retr,
		tasks:   tasks,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()
	return server.ServeStdio(s.mcp)
}

// Close drains in-flight tasks and releases the database.
func (s *Server) Close() {
	s.tasks.Close()
	_ = s.storage.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(submitSearchTool(), s.handleSubmitSearch)
	s.mcp.AddTool(getProgressTool(), s.handleGetProgress)
	s.mcp.AddTool(getResultsTool(), s.handleGetResults)
	s.mcp.AddTool(cancelSearchTool(), s.handleCancelSearch)
	s.mcp.AddTool(addDocumentsTool(), s.handleAddDocuments)
	s.mcp.AddTool(removeDocumentsTool(), s.handleRemoveDocuments)
	s.mcp.AddTool(getCacheStatsTool(), s.handleGetCacheStats)
}
