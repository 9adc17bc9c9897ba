package searcher

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/budgetdb/internal/builder"
	"github.com/dshills/budgetdb/internal/storage"
	"github.com/dshills/budgetdb/internal/testutil"
	"github.com/dshills/budgetdb/pkg/types"
)

// setupSearcher builds a store from the Army/Navy fixtures
func setupSearcher(t *testing.T) (*Searcher, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	docs := filepath.Join(t.TempDir(), "docs")
	testutil.BudgetTree(t, docs)
	testutil.NavyR2(t, docs)

	res, err := builder.New(store, nil, nil).Build(context.Background(), builder.Options{DocsRoot: docs})
	require.NoError(t, err)
	require.Equal(t, builder.Completed, res.Outcome)

	return NewSearcher(store, 10), store
}

func TestSearch_Scopes(t *testing.T) {
	s, _ := setupSearcher(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		query     string
		scope     Scope
		wantLines int
		wantPages int
		wantTotal int
	}{
		{"lines only", "helicopter", ScopeLines, 2, 0, 2},
		{"pages only", "hypersonic", ScopePages, 0, 1, 1},
		{"all finds lines", "helicopter", ScopeAll, 2, 0, 2},
		{"all finds pages", "hypersonic", ScopeAll, 0, 1, 1},
		{"all merges both", "navy", ScopeAll, 1, 1, 2},
		{"no match", "submarine", ScopeAll, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Search(ctx, SearchRequest{Query: tt.query, Scope: tt.scope})
			require.NoError(t, err)
			assert.Equal(t, tt.wantLines, resp.LineResults)
			assert.Equal(t, tt.wantPages, resp.PageResults)
			assert.Equal(t, tt.wantTotal, resp.TotalResults)
			assert.Equal(t, tt.scope, resp.Scope)
			for i, r := range resp.Results {
				assert.Equal(t, i+1, r.Rank)
				assert.NoError(t, r.Validate())
			}
		})
	}
}

func TestSearch_Filters(t *testing.T) {
	s, _ := setupSearcher(t)

	resp, err := s.Search(context.Background(), SearchRequest{
		Query:   "helicopter",
		Scope:   ScopeLines,
		Filters: &storage.SearchFilters{Organization: "Navy"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results[0].Title, "Seahawk")
}

func TestSearch_Validation(t *testing.T) {
	s, _ := setupSearcher(t)
	ctx := context.Background()

	_, err := s.Search(ctx, SearchRequest{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = s.Search(ctx, SearchRequest{Query: "x", Scope: "everything"})
	assert.ErrorContains(t, err, "unsupported search scope")

	req := SearchRequest{Query: " hypersonic ", Limit: 5000}
	require.NoError(t, s.validateRequest(&req))
	assert.Equal(t, "hypersonic", req.Query)
	assert.Equal(t, MaxLimit, req.Limit)
	assert.Equal(t, ScopeAll, req.Scope)
	assert.Equal(t, DefaultCacheTTL, req.CacheTTL)
}

func TestSearch_Cache(t *testing.T) {
	s, _ := setupSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Query: "helicopter", UseCache: true}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, s.CacheLen())

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)

	// Mutating a returned response leaves the cache intact
	second.Results[0].Title = "changed"
	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, "changed", third.Results[0].Title)

	// A different filter is a different key
	_, err = s.Search(ctx, SearchRequest{Query: "helicopter", UseCache: true, Filters: &storage.SearchFilters{Organization: "Army"}})
	require.NoError(t, err)
	assert.Equal(t, 2, s.CacheLen())

	s.InvalidateCache()
	assert.Zero(t, s.CacheLen())
}

func TestSearch_CacheExpiry(t *testing.T) {
	s, _ := setupSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Query: "helicopter", UseCache: true, CacheTTL: time.Nanosecond}

	_, err := s.Search(ctx, req)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	resp, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestSearch_ConcurrentCacheAccess(t *testing.T) {
	s, _ := setupSearcher(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Search(ctx, SearchRequest{Query: "helicopter", UseCache: true})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.CacheLen())
}

func TestApplyRRF(t *testing.T) {
	lines := []types.SearchResult{
		{ID: 1, Kind: types.ResultBudgetLine},
		{ID: 2, Kind: types.ResultBudgetLine},
	}
	pages := []types.SearchResult{
		{ID: 1, Kind: types.ResultPdfPage},
	}

	merged := applyRRF(lines, pages, 0)
	require.Len(t, merged, 3)

	// Both first-ranked hits tie; lines win the tie
	assert.Equal(t, types.ResultBudgetLine, merged[0].Kind)
	assert.Equal(t, int64(1), merged[0].ID)
	assert.Equal(t, types.ResultPdfPage, merged[1].Kind)
	assert.Equal(t, int64(2), merged[2].ID)
	for i, r := range merged {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestComputeQueryHash(t *testing.T) {
	base := SearchRequest{Query: "q", Scope: ScopeAll, Limit: 10}
	assert.Equal(t, computeQueryHash(base), computeQueryHash(base))

	other := base
	other.Scope = ScopePages
	assert.NotEqual(t, computeQueryHash(base), computeQueryHash(other))

	filtered := base
	filtered.Filters = &storage.SearchFilters{FiscalYear: "FY 2026"}
	assert.NotEqual(t, computeQueryHash(base), computeQueryHash(filtered))
}
