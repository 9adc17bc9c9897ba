package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/budgetdb/internal/storage"
	"github.com/dshills/budgetdb/pkg/types"
)

// Scope selects which tables a search covers
type Scope string

const (
	ScopeAll   Scope = "all"   // Budget lines and PDF pages merged with RRF
	ScopeLines Scope = "lines" // Budget lines only
	ScopePages Scope = "pages" // PDF pages only
)

// Request limits
const (
	DefaultLimit     = 20
	MaxLimit         = 200
	DefaultCacheSize = 100
	DefaultCacheTTL  = 10 * time.Minute
)

// ErrEmptyQuery is returned for a blank query
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int
	Scope       Scope
	Filters     *storage.SearchFilters
	UseCache    bool
	CacheTTL    time.Duration
	RRFConstant float64 // k value for Reciprocal Rank Fusion (default 60)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Scope        Scope
	Duration     time.Duration
	CacheHit     bool
	LineResults  int
	PageResults  int
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher runs full-text queries against the store with an LRU cache of
// recent responses
type Searcher struct {
	storage storage.Storage
	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a Searcher whose cache holds up to cacheSize
// responses (DefaultCacheSize when cacheSize <= 0)
func NewSearcher(store storage.Storage, cacheSize int) *Searcher {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{storage: store, cache: cache}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var (
		response *SearchResponse
		err      error
	)
	switch req.Scope {
	case ScopeAll:
		response, err = s.searchAll(ctx, req)
	case ScopeLines:
		response, err = s.searchLines(ctx, req)
	case ScopePages:
		response, err = s.searchPages(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search scope: %s", req.Scope)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.Scope = req.Scope

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}
	return response, nil
}

func (s *Searcher) searchLines(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	lines, err := s.storage.SearchBudgetLines(ctx, req.Query, req.Limit, req.Filters)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: lines, TotalResults: len(lines), LineResults: len(lines)}, nil
}

func (s *Searcher) searchPages(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	pages, err := s.storage.SearchPdfPages(ctx, req.Query, req.Limit, req.Filters)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: pages, TotalResults: len(pages), PageResults: len(pages)}, nil
}

// searchAll queries both tables and merges the two rankings. The store has
// a single connection, so the queries run one after the other.
func (s *Searcher) searchAll(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	lines, err := s.storage.SearchBudgetLines(ctx, req.Query, req.Limit, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to search budget lines: %w", err)
	}
	pages, err := s.storage.SearchPdfPages(ctx, req.Query, req.Limit, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to search pdf pages: %w", err)
	}

	merged := applyRRF(lines, pages, req.RRFConstant)
	if len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}
	return &SearchResponse{
		Results:      merged,
		TotalResults: len(merged),
		LineResults:  len(lines),
		PageResults:  len(pages),
	}, nil
}

// applyRRF merges ranked lists with Reciprocal Rank Fusion,
// RRF(d) = sum 1/(k + rank(d)). Ties keep budget lines first.
func applyRRF(lines, pages []types.SearchResult, k float64) []types.SearchResult {
	if k == 0 {
		k = 60
	}

	type scored struct {
		result types.SearchResult
		score  float64
		order  int
	}
	all := make([]scored, 0, len(lines)+len(pages))
	for i, r := range lines {
		all = append(all, scored{result: r, score: 1.0 / (k + float64(i+1)), order: len(all)})
	}
	for i, r := range pages {
		all = append(all, scored{result: r, score: 1.0 / (k + float64(i+1)), order: len(all)})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].order < all[j].order
	})

	results := make([]types.SearchResult, len(all))
	for i, s := range all {
		results[i] = s.result
		results[i].Rank = i + 1
	}
	return results
}

func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Scope == "" {
		req.Scope = ScopeAll
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = 60
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copySearchResponse copies src. SearchResult holds only value fields, so
// copying the slice is a deep copy.
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = append([]types.SearchResult(nil), src.Results...)
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Scope))
	fmt.Fprintf(&data, "|%d", req.Limit)

	if f := req.Filters; f != nil {
		data.WriteString("|filters:")
		data.WriteString(f.FiscalYear)
		data.WriteString("|")
		data.WriteString(f.ExhibitType)
		data.WriteString("|")
		data.WriteString(f.Organization)
		data.WriteString("|")
		data.WriteString(f.SourceFile)
	}
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response. Call it after a build.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
