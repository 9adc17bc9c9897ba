package staging

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/budgetdb/internal/parser"
	"github.com/dshills/budgetdb/internal/testutil"
	"github.com/dshills/budgetdb/pkg/types"
)

func sourceFor(t *testing.T, docsRoot, path string) parser.Source {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	kind, ok := parser.KindOf(path)
	require.True(t, ok)
	rel, err := filepath.Rel(docsRoot, path)
	require.NoError(t, err)
	return parser.Source{
		Path:    path,
		RelPath: filepath.ToSlash(rel),
		Kind:    kind,
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
	}
}

func newTestStager(docsRoot, stagingRoot string) *Stager {
	return New(Options{DocsRoot: docsRoot, StagingRoot: stagingRoot, Workers: 2})
}

func TestStageFile_SpreadsheetRoundTrip(t *testing.T) {
	docs, stage := t.TempDir(), t.TempDir()
	army, _ := testutil.BudgetTree(t, docs)
	ctx := context.Background()

	sc, err := newTestStager(docs, stage).StageFile(ctx, sourceFor(t, docs, army))
	require.NoError(t, err)
	assert.Empty(t, sc.Error)
	assert.Equal(t, 2, sc.RowCount)
	assert.Equal(t, []string{"amount_fy2025_enacted", "amount_fy2026_request"}, sc.FYColumns)
	assert.Equal(t, FormatVersion, sc.FormatVersion)
	assert.Equal(t, parser.Version, sc.ParserVersion)
	assert.Len(t, sc.SHA256, 64)
	assert.FileExists(t, DataPath(stage, "FY2026/US_Army/p1_army.xlsx"))

	onDisk, err := ReadSidecar(SidecarPath(stage, "FY2026/US_Army/p1_army.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, sc.SourceFile, onDisk.SourceFile)
	assert.Equal(t, sc.ModTimeNanos, onDisk.ModTimeNanos)

	reader, err := NewReader(stage)
	require.NoError(t, err)
	staged, err := reader.ReadStaged(ctx, onDisk)
	require.NoError(t, err)

	direct := parser.ParseFile(ctx, army, parser.Options{DocsRoot: docs})
	require.False(t, direct.HasError())

	assert.Equal(t, direct.SourceFile, staged.SourceFile)
	assert.Equal(t, direct.ExhibitType, staged.ExhibitType)
	assert.Equal(t, direct.FiscalYear, staged.FiscalYear)
	assert.Equal(t, direct.FYColumns, staged.FYColumns)
	assert.Equal(t, direct.Lines, staged.Lines)
}

func TestStageFile_PDFRoundTrip(t *testing.T) {
	docs, stage := t.TempDir(), t.TempDir()
	path := testutil.NavyR2(t, docs)
	ctx := context.Background()

	sc, err := newTestStager(docs, stage).StageFile(ctx, sourceFor(t, docs, path))
	require.NoError(t, err)
	assert.Equal(t, 2, sc.PageCount)
	assert.Empty(t, sc.FYColumns)

	reader, err := NewReader(stage)
	require.NoError(t, err)
	staged, err := reader.ReadStaged(ctx, sc)
	require.NoError(t, err)

	direct := parser.ParseFile(ctx, path, parser.Options{DocsRoot: docs})
	require.False(t, direct.HasError())
	assert.Equal(t, types.KindPDF, staged.Kind)
	assert.Equal(t, direct.Pages, staged.Pages)
	assert.Equal(t, len(direct.Issues), len(staged.Issues))
}

func TestStageFile_ParseError(t *testing.T) {
	docs, stage := t.TempDir(), t.TempDir()
	path := filepath.Join(docs, "FY2026", "Navy", "p1_broken.xlsx")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not a workbook"), 0o644))

	stale := DataPath(stage, "FY2026/Navy/p1_broken.xlsx")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	sc, err := newTestStager(docs, stage).StageFile(context.Background(), sourceFor(t, docs, path))
	require.NoError(t, err)
	assert.NotEmpty(t, sc.Error)
	assert.Empty(t, sc.DataFile)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, SidecarPath(stage, "FY2026/Navy/p1_broken.xlsx"))

	assert.True(t, NeedsRestaging(path, stage, docs, types.KindExcel), "errors are always restaged")

	reader, err := NewReader(stage)
	require.NoError(t, err)
	res, err := reader.ReadStaged(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, res.HasError())
	assert.Zero(t, res.RowCount())
}

func TestNeedsRestaging(t *testing.T) {
	docs, stage := t.TempDir(), t.TempDir()
	army, _ := testutil.BudgetTree(t, docs)
	rel := "FY2026/US_Army/p1_army.xlsx"

	assert.True(t, NeedsRestaging(army, stage, docs, types.KindExcel), "no sidecar")

	_, err := newTestStager(docs, stage).StageFile(context.Background(), sourceFor(t, docs, army))
	require.NoError(t, err)
	assert.False(t, NeedsRestaging(army, stage, docs, types.KindExcel))
	assert.True(t, NeedsRestaging(army, stage, docs, types.KindPDF), "kind mismatch")

	info, err := os.Stat(army)
	require.NoError(t, err)

	// within tolerance
	require.NoError(t, os.Chtimes(army, info.ModTime(), info.ModTime().Add(500*time.Millisecond)))
	assert.False(t, NeedsRestaging(army, stage, docs, types.KindExcel))

	require.NoError(t, os.Chtimes(army, info.ModTime(), info.ModTime().Add(2*time.Second)))
	assert.True(t, NeedsRestaging(army, stage, docs, types.KindExcel))
	require.NoError(t, os.Chtimes(army, info.ModTime(), info.ModTime()))
	assert.False(t, NeedsRestaging(army, stage, docs, types.KindExcel))

	scPath := SidecarPath(stage, rel)
	sc, err := ReadSidecar(scPath)
	require.NoError(t, err)

	old := *sc
	old.ParserVersion = "1.0.0"
	require.NoError(t, writeSidecar(scPath, &old))
	assert.True(t, NeedsRestaging(army, stage, docs, types.KindExcel), "older parser version")

	old = *sc
	old.FormatVersion = "garbage"
	require.NoError(t, writeSidecar(scPath, &old))
	assert.True(t, NeedsRestaging(army, stage, docs, types.KindExcel), "unparsable format version")

	require.NoError(t, writeSidecar(scPath, sc))
	assert.False(t, NeedsRestaging(army, stage, docs, types.KindExcel))

	require.NoError(t, os.Remove(DataPath(stage, rel)))
	assert.True(t, NeedsRestaging(army, stage, docs, types.KindExcel), "data file missing")

	require.NoError(t, os.WriteFile(army, []byte("changed"), 0o644))
	assert.True(t, NeedsRestaging(army, stage, docs, types.KindExcel), "size changed")
}

func TestStageAll(t *testing.T) {
	docs, stage := t.TempDir(), filepath.Join(t.TempDir(), "staging")
	testutil.BudgetTree(t, docs)
	testutil.NavyR2(t, docs)
	broken := filepath.Join(docs, "FY2026", "Navy", "p1_broken.xlsx")
	require.NoError(t, os.WriteFile(broken, []byte("not a workbook"), 0o644))

	var (
		mu     sync.Mutex
		phases = make(map[string]int)
	)
	progress := func(phase string, current, total int, detail string) {
		mu.Lock()
		defer mu.Unlock()
		phases[phase]++
	}

	stager := New(Options{DocsRoot: docs, StagingRoot: stage, Workers: 2, Progress: progress})
	summary, err := stager.StageAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalFiles)
	assert.Equal(t, 3, summary.ExcelFiles)
	assert.Equal(t, 1, summary.PDFFiles)
	assert.Equal(t, 3, summary.StagedFiles)
	assert.Equal(t, 1, summary.FailedFiles)
	assert.Equal(t, 3, summary.TotalRows)
	assert.Equal(t, 2, summary.TotalPages)
	require.Len(t, summary.FileErrors, 1)
	assert.Equal(t, "FY2026/Navy/p1_broken.xlsx", summary.FileErrors[0].Path)
	assert.Equal(t, []string{"amount_fy2024_actual", "amount_fy2025_enacted", "amount_fy2026_request"}, summary.FYColumns)

	assert.Equal(t, 3, phases[types.PhaseExcel])
	assert.Equal(t, 1, phases[types.PhasePDF])
	assert.GreaterOrEqual(t, phases[types.PhaseScan], 1)

	meta, err := ReadSummary(stage)
	require.NoError(t, err)
	assert.Equal(t, summary.FYColumns, meta.FYColumns)
	assert.Equal(t, 1, meta.FailedFiles)

	// second run only retries the failed file
	again, err := stager.StageAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, again.SkippedFiles)
	assert.Equal(t, 1, again.FailedFiles)
	assert.Equal(t, 0, again.StagedFiles)

	forced, err := New(Options{DocsRoot: docs, StagingRoot: stage, Force: true}).StageAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, forced.StagedFiles)
}

func TestStageAll_Cancelled(t *testing.T) {
	docs, stage := t.TempDir(), t.TempDir()
	testutil.BudgetTree(t, docs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newTestStager(docs, stage).StageAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.StagedFiles)
}

func TestReader(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrStagingDirMissing)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewReader(file)
	assert.ErrorIs(t, err, ErrStagingDirMissing)

	docs, stage := t.TempDir(), t.TempDir()
	testutil.BudgetTree(t, docs)
	_, err = newTestStager(docs, stage).StageAll(context.Background())
	require.NoError(t, err)

	reader, err := NewReader(stage)
	require.NoError(t, err)
	sidecars, err := reader.ListSidecars()
	require.NoError(t, err)
	require.Len(t, sidecars, 2)
	assert.Equal(t, "FY2026/Navy/p1_navy.xlsx", sidecars[0].SourceFile)
	assert.Equal(t, "FY2026/US_Army/p1_army.xlsx", sidecars[1].SourceFile)

	assert.Equal(t, []string{"amount_fy2024_actual", "amount_fy2025_enacted", "amount_fy2026_request"},
		FYColumnUnion(sidecars))
}
