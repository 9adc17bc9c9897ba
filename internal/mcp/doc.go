// Package mcp implements the Model Context Protocol (MCP) server for budgetdb.
//
// The server exposes three tools:
//   - build_database: Parse the documents tree and load it into the store
//   - search_budget: Full-text search over budget lines and PDF pages
//   - get_build_status: Store statistics and the most recent build session
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started with:
//
//	budgetdb serve
//
// It reads MCP messages on stdin and writes responses to stdout, so all
// logging goes to stderr.
//
// # Tool: build_database
//
//	Request:
//	{
//	  "name": "build_database",
//	  "arguments": {
//	    "docs_dir": "/data/DoD_Budget_Documents",
//	    "resume": true
//	  }
//	}
//
//	Response:
//	{
//	  "outcome": "completed",
//	  "session_id": "0192...",
//	  "files_processed": 12,
//	  "files_unchanged": 340,
//	  "rows_inserted": 5120,
//	  "pages_processed": 880
//	}
//
// A build that is stopped (the call is cancelled) reports outcome "stopped"
// and can be continued with "resume": true.
//
// # Tool: search_budget
//
//	Request:
//	{
//	  "name": "search_budget",
//	  "arguments": {
//	    "query": "hypersonic",
//	    "scope": "all",
//	    "filters": {"fiscal_year": "FY 2026"}
//	  }
//	}
//
// # Tool: get_build_status
//
// Takes no arguments and returns row counts, the schema version, FTS trigger
// health and the last build session.
//
// # Error Handling
//
// Handlers return *MCPError values:
//   - -32602: Invalid params
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Documents directory not found
//   - -32002: Build already in progress
//   - -32004: Empty query
package mcp
