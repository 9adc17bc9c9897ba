package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/budgetdb/internal/searcher"
)

// buildDatabaseTool returns the tool definition for build_database
func buildDatabaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "build_database",
		Description: "Parse budget spreadsheets and PDFs under the documents directory and load them into the database",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"docs_dir": map[string]interface{}{
					"type":        "string",
					"description": "Documents root laid out as <FY####>/<source>/...; defaults to the server's configured directory",
				},
				"rebuild": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, clear loaded data and reload every file",
					"default":     false,
				},
				"resume": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, continue the last unfinished build session",
					"default":     false,
				},
				"use_staging": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, parse through the Parquet staging directory",
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Number of concurrent parsers (0 = number of CPUs)",
					"minimum":     0,
				},
			},
		},
	}
}

// searchBudgetTool returns the tool definition for search_budget
func searchBudgetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_budget",
		Description: "Full-text search over loaded budget line items and PDF page text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search terms, matched as word prefixes",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Which records to search: all, lines (budget line items) or pages (PDF pages)",
					"enum":        []string{string(searcher.ScopeAll), string(searcher.ScopeLines), string(searcher.ScopePages)},
					"default":     string(searcher.ScopeAll),
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters to narrow search",
					"properties": map[string]interface{}{
						"fiscal_year": map[string]interface{}{
							"type":        "string",
							"description": "Canonical fiscal year, e.g. 'FY 2026'",
						},
						"exhibit_type": map[string]interface{}{
							"type":        "string",
							"description": "Exhibit type key, e.g. 'p1', 'r1', 'r2'",
						},
						"organization": map[string]interface{}{
							"type":        "string",
							"description": "Organization name, e.g. 'Army'; applies to budget lines only",
						},
						"source_file": map[string]interface{}{
							"type":        "string",
							"description": "Substring of the source document path",
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// getBuildStatusTool returns the tool definition for get_build_status
func getBuildStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_build_status",
		Description: "Report database statistics, schema version and the most recent build session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
