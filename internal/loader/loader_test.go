package loader

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/budgetdb/internal/parser"
	"github.com/dshills/budgetdb/internal/staging"
	"github.com/dshills/budgetdb/internal/storage"
	"github.com/dshills/budgetdb/internal/testutil"
	"github.com/dshills/budgetdb/pkg/types"
)

func setupTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// loadDirect parses and loads every document under docs without staging
func loadDirect(t *testing.T, l *Loader, docs string) {
	t.Helper()
	ctx := context.Background()
	sources, err := parser.Discover(docs)
	require.NoError(t, err)

	require.NoError(t, l.BeginBulk(ctx))
	require.True(t, l.InBulk())
	for _, src := range sources {
		res := parser.ParseFile(ctx, src.Path, parser.Options{DocsRoot: docs})
		require.NoError(t, l.LoadResult(ctx, res, FileStat{Size: src.Size, ModTime: time.Unix(0, src.ModTime)}))
	}
	require.NoError(t, l.EndBulk(ctx))
	require.False(t, l.InBulk())
}

func TestLoadResult_ReplacesPreviousRows(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	docs := t.TempDir()
	army, _ := testutil.BudgetTree(t, docs)

	l := New(store, nil, nil)
	res := parser.ParseFile(ctx, army, parser.Options{DocsRoot: docs})
	require.False(t, res.HasError())

	stat := FileStat{Size: 100, ModTime: time.Unix(1700000000, 0)}
	require.NoError(t, l.LoadResult(ctx, res, stat))
	require.NoError(t, l.LoadResult(ctx, res, stat))

	lines, err := store.BudgetLines(ctx, res.SourceFile)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	f, err := store.GetIngestedFile(ctx, res.SourceFile)
	require.NoError(t, err)
	assert.Equal(t, 2, f.RowCount)
	assert.Equal(t, storage.StatusOK, f.Status)
	assert.True(t, f.Unchanged(stat.Size, stat.ModTime))

	results, err := store.SearchBudgetLines(ctx, "Blackhawk", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1, "triggers keep the index in sync outside bulk mode")
}

func TestLoadResult_ParseError(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	docs := t.TempDir()
	army, _ := testutil.BudgetTree(t, docs)

	l := New(store, nil, nil)
	res := parser.ParseFile(ctx, army, parser.Options{DocsRoot: docs})
	require.NoError(t, l.LoadResult(ctx, res, FileStat{Size: 1}))

	failed := &types.ParseResult{SourceFile: res.SourceFile, Kind: types.KindExcel, Err: errors.New("corrupt workbook")}
	require.NoError(t, l.LoadResult(ctx, failed, FileStat{Size: 2}))

	lines, err := store.BudgetLines(ctx, res.SourceFile)
	require.NoError(t, err)
	assert.Empty(t, lines)

	f, err := store.GetIngestedFile(ctx, res.SourceFile)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusError, f.Status)
	assert.Equal(t, "corrupt workbook", f.ErrorText)
	assert.Zero(t, f.RowCount)
	assert.False(t, f.Unchanged(2, f.ModTime))
}

func TestLoadStaged_MissingDir(t *testing.T) {
	l := New(setupTestStorage(t), nil, nil)
	_, err := l.LoadStaged(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	assert.ErrorIs(t, err, staging.ErrStagingDirMissing)
}

func TestLoadStaged_MatchesDirectLoad(t *testing.T) {
	ctx := context.Background()
	docs, stage := t.TempDir(), t.TempDir()
	testutil.BudgetTree(t, docs)
	testutil.NavyR2(t, docs)

	_, err := staging.New(staging.Options{DocsRoot: docs, StagingRoot: stage, Workers: 2}).StageAll(ctx)
	require.NoError(t, err)

	stagedStore := setupTestStorage(t)
	var phases []string
	progress := func(phase string, current, total int, detail string) {
		phases = append(phases, phase)
	}
	summary, err := New(stagedStore, nil, nil).LoadStaged(ctx, stage, progress)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, 3, summary.Rows)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 3, summary.FYColumns)
	assert.Contains(t, phases, types.PhaseLoad)
	assert.Contains(t, phases, types.PhaseIndex)

	directStore := setupTestStorage(t)
	loadDirect(t, New(directStore, nil, nil), docs)

	stagedLines, err := stagedStore.BudgetLines(ctx, "")
	require.NoError(t, err)
	directLines, err := directStore.BudgetLines(ctx, "")
	require.NoError(t, err)
	require.Len(t, stagedLines, 3)
	assert.Equal(t, directLines, stagedLines)

	stagedPages, err := stagedStore.PdfPages(ctx, "")
	require.NoError(t, err)
	directPages, err := directStore.PdfPages(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, directPages, stagedPages)

	// loading the same staged output again changes nothing
	_, err = New(stagedStore, nil, nil).LoadStaged(ctx, stage, nil)
	require.NoError(t, err)
	again, err := stagedStore.BudgetLines(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, stagedLines, again)

	status, err := stagedStore.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Health.FTSTriggersPresent)
	assert.Equal(t, 3, status.IngestedFiles)

	results, err := stagedStore.SearchPdfPages(ctx, "hypersonic", 5, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestLoad_FYColumnNulls(t *testing.T) {
	ctx := context.Background()
	docs := t.TempDir()
	testutil.BudgetTree(t, docs)

	store := setupTestStorage(t)
	loadDirect(t, New(store, nil, nil), docs)

	rows, err := store.DB().QueryContext(ctx, `
		SELECT organization, amount_fy2024_actual, amount_fy2026_request
		FROM budget_lines_wide ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			org       string
			fy24, f26 sql.NullFloat64
		)
		require.NoError(t, rows.Scan(&org, &fy24, &f26))
		switch org {
		case "Army":
			assert.False(t, fy24.Valid, "Army has no FY2024 column")
			assert.True(t, f26.Valid)
		case "Navy":
			assert.True(t, fy24.Valid)
			assert.False(t, f26.Valid, "Navy has no FY2026 column")
		default:
			t.Fatalf("unexpected organization %q", org)
		}
		count++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 3, count)
}

func TestLoadStaged_KeepsEmptyFYColumns(t *testing.T) {
	ctx := context.Background()
	docs, stage := t.TempDir(), t.TempDir()
	testutil.WriteWorkbook(t, filepath.Join(docs, "FY2026", "US_Army", "p1_army.xlsx"), testutil.Sheet{
		Name: "FY2026 P-1",
		Rows: [][]interface{}{
			{"Account", "Account Title", "Line Item", "Line Item Title", "FY2026 Request Amount", "FY2027 Request Amount"},
			{"2031A", "Aircraft Procurement, Army", "A05101", "UH-60 Blackhawk Helicopter", 980.25},
		},
	})

	directStore := setupTestStorage(t)
	loadDirect(t, New(directStore, nil, nil), docs)

	_, err := staging.New(staging.Options{DocsRoot: docs, StagingRoot: stage, Workers: 1}).StageAll(ctx)
	require.NoError(t, err)
	stagedStore := setupTestStorage(t)
	_, err = New(stagedStore, nil, nil).LoadStaged(ctx, stage, nil)
	require.NoError(t, err)

	names := func(s *storage.SQLiteStorage) []string {
		cols, err := s.ListFYColumns(ctx)
		require.NoError(t, err)
		out := make([]string, 0, len(cols))
		for _, c := range cols {
			out = append(out, c.Name)
		}
		return out
	}
	want := []string{"amount_fy2026_request", "amount_fy2027_request"}
	assert.Equal(t, want, names(directStore))
	assert.Equal(t, want, names(stagedStore))

	var fy27 sql.NullFloat64
	require.NoError(t, stagedStore.DB().QueryRowContext(ctx,
		`SELECT amount_fy2027_request FROM budget_lines_wide`).Scan(&fy27))
	assert.False(t, fy27.Valid)
}
