package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/budgetdb/internal/builder"
	"github.com/dshills/budgetdb/internal/searcher"
	"github.com/dshills/budgetdb/internal/storage"
	"github.com/dshills/budgetdb/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeDocsNotFound    = -32001 // Documents directory does not exist
	ErrorCodeBuildInProgress = -32002 // Another build is already running
	ErrorCodeEmptyQuery      = -32004 // Query parameter is empty
)

// maxReportedErrors caps the per-file errors echoed back by build_database
const maxReportedErrors = 5

// handleBuildDatabase handles the build_database tool invocation
func (s *Server) handleBuildDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	docsDir := getStringDefault(args, "docs_dir", s.cfg.DocsDir)
	if err := validateDocsDir(docsDir); err != nil {
		return nil, newMCPError(ErrorCodeDocsNotFound, "invalid docs_dir", map[string]interface{}{
			"param":  "docs_dir",
			"reason": err.Error(),
		})
	}

	workers := getIntDefault(args, "workers", s.cfg.Workers)
	if workers < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "workers must not be negative", map[string]interface{}{
			"param": "workers",
			"value": workers,
		})
	}

	opts := builder.Options{
		DocsRoot:           docsDir,
		Rebuild:            getBoolDefault(args, "rebuild", false),
		Resume:             getBoolDefault(args, "resume", false),
		Workers:            workers,
		CheckpointInterval: s.cfg.CheckpointInterval,
		UseStaging:         getBoolDefault(args, "use_staging", s.cfg.UseStaging),
		StagingDir:         s.cfg.StagingDir,
	}

	result, err := s.builder.Build(ctx, opts)
	if errors.Is(err, builder.ErrBuildInProgress) {
		return nil, newMCPError(ErrorCodeBuildInProgress, "a build is already running", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "build failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.searcher.InvalidateCache()

	response := map[string]interface{}{
		"outcome":           result.Outcome.String(),
		"session_id":        result.SessionID,
		"resumed":           result.Resumed,
		"total_files":       result.TotalFiles,
		"files_processed":   result.Processed,
		"files_unchanged":   result.SkippedUnchanged,
		"files_resumed":     result.SkippedResumed,
		"files_failed":      result.Failed,
		"rows_inserted":     result.Rows,
		"pages_processed":   result.Pages,
		"data_sources":      result.DataSources,
		"duration_ms":       result.Duration.Milliseconds(),
		"session_files":     result.Checkpoint.FilesProcessed,
		"session_rows":      result.Checkpoint.RowsInserted,
		"session_pages":     result.Checkpoint.PagesProcessed,
		"session_completed": result.Checkpoint.Status == storage.SessionCompleted,
	}

	if n := len(result.Errors); n > 0 {
		shown := result.Errors
		if n > maxReportedErrors {
			shown = shown[:maxReportedErrors]
			response["error_count"] = n
		}
		msgs := make([]string, len(shown))
		for i, fe := range shown {
			msgs[i] = fe.String()
		}
		response["errors"] = msgs
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchBudget handles the search_budget tool invocation
func (s *Server) handleSearchBudget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
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

	limit := getIntDefault(args, "limit", s.cfg.SearchLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	scope := searcher.Scope(getStringDefault(args, "scope", string(searcher.ScopeAll)))
	switch scope {
	case searcher.ScopeAll, searcher.ScopeLines, searcher.ScopePages:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid scope", map[string]interface{}{
			"param":   "scope",
			"value":   scope,
			"allowed": []searcher.Scope{searcher.ScopeAll, searcher.ScopeLines, searcher.ScopePages},
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Scope:    scope,
		Filters:  parseFilters(args),
		UseCache: true,
	})
	if errors.Is(err, searcher.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := map[string]interface{}{
			"rank":        r.Rank,
			"kind":        r.Kind,
			"score":       r.Score,
			"source_file": r.SourceFile,
			"snippet":     r.Snippet,
		}
		if r.FiscalYear != "" {
			item["fiscal_year"] = r.FiscalYear
		}
		if r.ExhibitType != "" {
			item["exhibit_type"] = r.ExhibitType
		}
		if r.Organization != "" {
			item["organization"] = r.Organization
		}
		if r.Title != "" {
			item["title"] = r.Title
		}
		if r.PENumber != "" {
			item["pe_number"] = r.PENumber
		}
		if r.Kind == types.ResultPdfPage {
			item["page_number"] = r.PageNumber
		}
		results = append(results, item)
	}

	response := map[string]interface{}{
		"query":         query,
		"scope":         resp.Scope,
		"total_results": resp.TotalResults,
		"line_results":  resp.LineResults,
		"page_results":  resp.PageResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetBuildStatus handles the get_build_status tool invocation
func (s *Server) handleGetBuildStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"build_running":  s.builder.Running(),
		"schema_version": status.SchemaVersion,
		"statistics": map[string]interface{}{
			"budget_lines":      status.BudgetLines,
			"pdf_pages":         status.PdfPages,
			"ingested_files":    status.IngestedFiles,
			"failed_files":      status.FailedFiles,
			"fy_columns":        status.FYColumns,
			"data_sources":      status.DataSources,
			"extraction_issues": status.ExtractIssues,
			"database_size_mb":  fmt.Sprintf("%.2f", status.DatabaseSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"fts_triggers_present": status.Health.FTSTriggersPresent,
		},
	}

	if cp := status.LastSession; cp != nil {
		response["last_session"] = map[string]interface{}{
			"session_id":      cp.SessionID,
			"status":          cp.Status,
			"started_at":      cp.StartedAt.Format(time.RFC3339),
			"updated_at":      cp.UpdatedAt.Format(time.RFC3339),
			"files_processed": cp.FilesProcessed,
			"total_files":     cp.TotalFiles,
			"rows_inserted":   cp.RowsInserted,
			"pages_processed": cp.PagesProcessed,
			"last_file":       cp.LastFile,
			"notes":           cp.Notes,
		}
	}

	s.logger.Debug("reported build status", zap.Int("budget_lines", status.BudgetLines))
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// arguments returns the call arguments; a call with none is an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, bool) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, true
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	return args, ok
}

func parseFilters(args map[string]interface{}) *storage.SearchFilters {
	raw, ok := args["filters"].(map[string]interface{})
	if !ok {
		return nil
	}
	f := &storage.SearchFilters{
		FiscalYear:   getStringDefault(raw, "fiscal_year", ""),
		ExhibitType:  getStringDefault(raw, "exhibit_type", ""),
		Organization: getStringDefault(raw, "organization", ""),
		SourceFile:   getStringDefault(raw, "source_file", ""),
	}
	if *f == (storage.SearchFilters{}) {
		return nil
	}
	return f
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
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

// validateDocsDir checks the documents root exists and is a directory
func validateDocsDir(path string) error {
	if path == "" {
		return ErrDocsDirRequired
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrDocsDirNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocsDirNotReadable, err)
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
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
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// Validation errors

var (
	ErrDocsDirRequired    = errors.New("docs_dir is required")
	ErrDocsDirNotFound    = errors.New("docs_dir does not exist")
	ErrDocsDirNotReadable = errors.New("docs_dir is not readable")
	ErrNotDirectory       = errors.New("docs_dir is not a directory")
)
