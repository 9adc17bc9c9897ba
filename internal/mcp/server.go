package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/budgetdb/internal/builder"
	"github.com/dshills/budgetdb/internal/logging"
	"github.com/dshills/budgetdb/internal/metrics"
	"github.com/dshills/budgetdb/internal/searcher"
	"github.com/dshills/budgetdb/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "budgetdb"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Config holds the defaults build_database and search_budget fall back to
// when a call leaves them out
type Config struct {
	DocsDir            string
	StagingDir         string
	UseStaging         bool
	Workers            int
	CheckpointInterval int
	SearchCacheSize    int
	SearchLimit        int
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	builder  *builder.Builder
	searcher *searcher.Searcher
	cfg      Config
	logger   *zap.Logger
}

// NewServer creates a server over an open store. The caller keeps ownership
// of the store. logger and m may be nil.
func NewServer(store storage.Storage, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Server {
	logger = logging.OrNop(logger)
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = searcher.DefaultLimit
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		storage:  store,
		builder:  builder.New(store, logger, m),
		searcher: searcher.NewSearcher(store, cfg.SearchCacheSize),
		cfg:      cfg,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio until the client disconnects. Builds
// started by tool calls are stopped when ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp, server.WithStdioContextFunc(func(context.Context) context.Context {
		return ctx
	}))
}

func (s *Server) registerTools() {
	s.mcp.AddTool(buildDatabaseTool(), s.handleBuildDatabase)
	s.mcp.AddTool(searchBudgetTool(), s.handleSearchBudget)
	s.mcp.AddTool(getBuildStatusTool(), s.handleGetBuildStatus)
}
