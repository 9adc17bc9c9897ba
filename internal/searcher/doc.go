// Package searcher runs full-text queries over loaded budget lines and PDF
// pages.
//
// Three scopes are supported:
//   - ScopeAll: both tables, merged with Reciprocal Rank Fusion (default)
//   - ScopeLines: budget lines only
//   - ScopePages: PDF pages only
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, 100)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:    "hypersonic",
//	    Limit:    10,
//	    Filters:  &storage.SearchFilters{Organization: "Navy"},
//	    UseCache: true,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s %s p%d\n", r.Rank, r.Kind, r.SourceFile, r.PageNumber)
//	}
//
// # Query Syntax
//
// Queries are sanitized into FTS5 prefix terms by the store, so user input
// such as quotes or the words AND/OR never produces an FTS syntax error.
//
// # Caching
//
// Responses are kept in an LRU cache keyed by a SHA-256 of the query, scope,
// limit and filters. Entries expire after CacheTTL (default 10 minutes).
// InvalidateCache should be called after a build changes the data.
//
// # Thread Safety
//
// Searcher is safe for concurrent use.
package searcher
