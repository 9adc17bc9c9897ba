package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/budgetdb/pkg/types"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func armyLines() []types.BudgetLine {
	return []types.BudgetLine{
		{
			SourceFile:    "FY2026/US_Army/p1_army.xlsx",
			ExhibitType:   "p1",
			SheetName:     "FY2026 P-1",
			FiscalYear:    "FY 2026",
			Organization:  "Army",
			Account:       "2031A",
			AccountTitle:  "Aircraft Procurement, Army",
			LineItemTitle: "UH-60 Blackhawk Helicopter",
			Amounts: map[string]float64{
				"amount_fy2025_enacted": 1250.5,
				"amount_fy2026_request": 980.25,
			},
		},
		{
			SourceFile:    "FY2026/US_Army/p1_army.xlsx",
			ExhibitType:   "p1",
			SheetName:     "FY2026 P-1",
			FiscalYear:    "FY 2026",
			Organization:  "Army",
			Account:       "2032A",
			AccountTitle:  "Missile Procurement, Army",
			LineItemTitle: "Patriot Missile Segment",
			PENumber:      "0604114A",
			Amounts: map[string]float64{
				"amount_fy2026_request": 2100,
			},
		},
	}
}

func loadLines(t *testing.T, s *SQLiteStorage, lines []types.BudgetLine) {
	t.Helper()
	ctx := context.Background()

	var cols []string
	for _, l := range lines {
		cols = append(cols, l.AmountColumns()...)
	}
	_, err := s.EnsureFYColumns(ctx, cols)
	require.NoError(t, err)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	n, err := tx.InsertBudgetLines(ctx, lines)
	require.NoError(t, err)
	require.Equal(t, len(lines), n)
	require.NoError(t, tx.Commit())
}

func TestInsertBudgetLines_RoundTrip(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	loadLines(t, s, armyLines())

	lines, err := s.BudgetLines(ctx, "FY2026/US_Army/p1_army.xlsx")
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "UH-60 Blackhawk Helicopter", lines[0].LineItemTitle)
	assert.Equal(t, "Army", lines[0].Organization)
	assert.InDelta(t, 1250.5, lines[0].Amounts["amount_fy2025_enacted"], 0.001)
	assert.Equal(t, "0604114A", lines[1].PENumber)
	_, ok := lines[1].Amounts["amount_fy2025_enacted"]
	assert.False(t, ok, "absent amount must stay absent")
	assert.Empty(t, lines[0].PENumber)
}

func TestInsertBudgetLines_UncataloguedColumn(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.InsertBudgetLines(ctx, armyLines())
	assert.Error(t, err)
}

func TestDeleteSourceRows(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	loadLines(t, s, armyLines())

	navy := types.BudgetLine{
		SourceFile:    "FY2026/Navy/p1_navy.xlsx",
		Organization:  "Navy",
		LineItemTitle: "MH-60R Seahawk Helicopter",
		Amounts:       map[string]float64{"amount_fy2025_enacted": 295.75},
	}
	loadLines(t, s, []types.BudgetLine{navy})

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteSourceRows(ctx, "FY2026/US_Army/p1_army.xlsx"))
	require.NoError(t, tx.Commit())

	all, err := s.BudgetLines(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Navy", all[0].Organization)

	var amounts int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM budget_line_amounts").Scan(&amounts))
	assert.Equal(t, 1, amounts)

	results, err := s.SearchBudgetLines(ctx, "Blackhawk", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInsertPdfPages_RoundTrip(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	pages := []types.PdfPage{
		{
			SourceFile: "FY2026/Navy/r2_navy.pdf",
			PageNumber: 1,
			Text:       "Mission Description and Budget Justification for hypersonic research",
			FiscalYear: "FY 2026",
			Sections:   []types.Section{{Header: "Mission Description", Body: "hypersonic research"}},
		},
		{
			SourceFile: "FY2026/Navy/r2_navy.pdf",
			PageNumber: 2,
			Text:       "Schedule profile",
			HasTables:  true,
			TableData:  `[[["a","b"],["c","d"]]]`,
		},
	}
	issues := []types.ExtractionIssue{{SourceFile: "FY2026/Navy/r2_navy.pdf", PageNumber: 2, IssueType: types.IssueTimeout}}

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	n, err := tx.InsertPdfPages(ctx, pages)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, tx.InsertExtractionIssues(ctx, issues))
	require.NoError(t, tx.Commit())

	got, err := s.PdfPages(ctx, "FY2026/Navy/r2_navy.pdf")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, pages[0].Sections, got[0].Sections)
	assert.True(t, got[1].HasTables)
	assert.Equal(t, pages[1].TableData, got[1].TableData)

	results, err := s.SearchPdfPages(ctx, "hypersonic", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].PageNumber)
	assert.Equal(t, types.ResultPdfPage, results[0].Kind)

	// only page text is indexed, not the file path
	results, err = s.SearchPdfPages(ctx, "navy", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.PdfPages)
	assert.Equal(t, 1, status.ExtractIssues)
}

func TestIngestedFile_Unchanged(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	mtime := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)

	_, err := s.GetIngestedFile(ctx, "FY2026/US_Army/p1_army.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertIngestedFile(ctx, &IngestedFile{
		Path:      "FY2026/US_Army/p1_army.xlsx",
		FileType:  types.KindExcel,
		SizeBytes: 4096,
		ModTime:   mtime,
		RowCount:  2,
		Status:    StatusOK,
	}))
	require.NoError(t, tx.UpsertIngestedFile(ctx, &IngestedFile{
		Path:      "FY2026/US_Army/broken.pdf",
		FileType:  types.KindPDF,
		SizeBytes: 10,
		ModTime:   mtime,
		Status:    StatusError,
		ErrorText: "malformed PDF",
	}))
	require.NoError(t, tx.Commit())

	f, err := s.GetIngestedFile(ctx, "FY2026/US_Army/p1_army.xlsx")
	require.NoError(t, err)
	assert.True(t, f.Unchanged(4096, mtime))
	assert.False(t, f.Unchanged(4097, mtime))
	assert.False(t, f.Unchanged(4096, mtime.Add(time.Nanosecond)))
	assert.Equal(t, types.KindExcel, f.FileType)

	broken, err := s.GetIngestedFile(ctx, "FY2026/US_Army/broken.pdf")
	require.NoError(t, err)
	assert.False(t, broken.Unchanged(10, mtime))
	assert.Equal(t, "malformed PDF", broken.ErrorText)

	files, err := s.ListIngestedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "FY2026/US_Army/broken.pdf", files[0].Path)

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.IngestedFiles)
	assert.Equal(t, 1, status.FailedFiles)
}

func TestClearData(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	loadLines(t, s, armyLines())

	session := NewSessionID()
	require.NoError(t, s.SaveCheckpoint(ctx, &Checkpoint{SessionID: session, TotalFiles: 1}))

	require.NoError(t, s.ClearData(ctx))

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.BudgetLines)
	assert.Equal(t, 2, status.FYColumns, "catalog survives a clear")
	require.NotNil(t, status.LastSession)
	assert.Equal(t, session, status.LastSession.SessionID)

	results, err := s.SearchBudgetLines(ctx, "Patriot", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchBudgetLines(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	loadLines(t, s, armyLines())

	results, err := s.SearchBudgetLines(ctx, "helicopter", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, types.ResultBudgetLine, r.Kind)
	assert.Equal(t, "UH-60 Blackhawk Helicopter", r.Title)
	assert.Equal(t, 1, r.Rank)
	assert.Greater(t, r.Score, 0.0)
	assert.LessOrEqual(t, r.Score, 1.0)

	byPE, err := s.SearchBudgetLines(ctx, "0604114A", 10, nil)
	require.NoError(t, err)
	require.Len(t, byPE, 1)
	assert.Equal(t, "0604114A", byPE[0].PENumber)

	filtered, err := s.SearchBudgetLines(ctx, "army", 10, &SearchFilters{Organization: "Navy"})
	require.NoError(t, err)
	assert.Empty(t, filtered)

	filtered, err = s.SearchBudgetLines(ctx, "army", 10, &SearchFilters{FiscalYear: "FY 2026", SourceFile: "US_Army"})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	// operators in user input are plain words
	_, err = s.SearchBudgetLines(ctx, `missile OR "segment`, 10, nil)
	require.NoError(t, err)

	_, err = s.SearchBudgetLines(ctx, "   ", 10, nil)
	assert.Error(t, err)
}

func TestFTSTriggers_DropAndRebuild(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	present, err := s.FTSTriggersPresent(ctx)
	require.NoError(t, err)
	assert.True(t, present)

	require.NoError(t, s.DropFTSTriggers(ctx))
	present, err = s.FTSTriggersPresent(ctx)
	require.NoError(t, err)
	assert.False(t, present)

	loadLines(t, s, armyLines())

	results, err := s.SearchBudgetLines(ctx, "Blackhawk", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "index is stale while triggers are dropped")

	require.NoError(t, s.RebuildFTS(ctx))
	require.NoError(t, s.CreateFTSTriggers(ctx))

	results, err = s.SearchBudgetLines(ctx, "Blackhawk", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Health.FTSTriggersPresent)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.Equal(t, LatestVersion(), status.SchemaVersion)
}

func TestDataSources(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterDataSource(ctx, &DataSource{FiscalYear: "FY 2026", SourceLabel: "US_Army", Path: "FY2026/US_Army"}))
	require.NoError(t, s.RegisterDataSource(ctx, &DataSource{FiscalYear: "FY 2026", SourceLabel: "US_Army", Path: "FY2026/US_Army"}))
	require.NoError(t, s.RegisterDataSource(ctx, &DataSource{FiscalYear: "FY 2025", SourceLabel: "Navy"}))

	sources, err := s.ListDataSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "FY 2025", sources[0].FiscalYear)
	assert.Equal(t, "US_Army", sources[1].SourceLabel)
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"helicopter", `"helicopter"`},
		{"  uh-60  blackhawk ", `"uh-60" "blackhawk"`},
		{`title:"army`, `"title:" "army"`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFTSQuery(tt.in), tt.in)
	}
}
