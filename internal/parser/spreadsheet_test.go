package parser

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/budgetdb/internal/testutil"
	"github.com/dshills/budgetdb/pkg/types"
)

func TestParseSpreadsheet_ArmyP1(t *testing.T) {
	root := t.TempDir()
	army, _ := testutil.BudgetTree(t, root)

	res, err := ParseSpreadsheet(army, Options{DocsRoot: root})
	require.NoError(t, err)

	assert.Equal(t, "FY2026/US_Army/p1_army.xlsx", res.SourceFile)
	assert.Equal(t, types.KindExcel, res.Kind)
	assert.Equal(t, "p1", res.ExhibitType)
	assert.Equal(t, []string{"amount_fy2025_enacted", "amount_fy2026_request"}, res.FYColumns)
	require.Len(t, res.Lines, 2)

	first := res.Lines[0]
	assert.Equal(t, "FY 2026", first.FiscalYear)
	assert.Equal(t, "FY2026 P-1", first.SheetName)
	assert.Equal(t, "Army", first.Organization)
	assert.Equal(t, "2031A", first.Account)
	assert.Equal(t, "Aircraft Procurement, Army", first.AccountTitle)
	assert.Equal(t, "A05101", first.LineItem)
	assert.Equal(t, "UH-60 Blackhawk Helicopter", first.LineItemTitle)
	assert.Equal(t, "U", first.Classification)
	assert.Equal(t, 1250.5, first.Amounts["amount_fy2025_enacted"])
	assert.Equal(t, 980.25, first.Amounts["amount_fy2026_request"])
	assert.Empty(t, first.PENumber)

	second := res.Lines[1]
	assert.Equal(t, "0604114A", second.PENumber)
	assert.Equal(t, 2100.0, second.Amounts["amount_fy2025_enacted"])
	assert.Equal(t, -15.0, second.Amounts["amount_fy2026_request"])
}

func TestParseSpreadsheet_PathFiscalYearAndNulls(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "FY2025", "Navy", "p1_navy.xlsx")
	testutil.WriteWorkbook(t, path, testutil.Sheet{
		Name: "Exhibit P-1",
		Rows: [][]interface{}{
			{"Line Item Title", "FY2024 Actuals", "FY2025 Enacted Amount"},
			{"Seahawk", "", 12},
			{"", "", ""},
			{"Line Item Title", "FY2024 Actuals", "FY2025 Enacted Amount"},
			{"Hornet", "n/a", 7},
		},
	})

	res, err := ParseSpreadsheet(path, Options{DocsRoot: root})
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)

	for _, line := range res.Lines {
		assert.Equal(t, "FY 2025", line.FiscalYear)
		assert.Equal(t, "Navy", line.Organization)
		_, has := line.Amounts["amount_fy2024_actual"]
		assert.False(t, has, "blank and unparseable cells are NULL")
	}
	assert.Equal(t, 12.0, res.Lines[0].Amounts["amount_fy2025_enacted"])
	assert.Equal(t, "Hornet", res.Lines[1].LineItemTitle)
}

func TestParseSpreadsheet_AdditionalPENumbers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r1_display.xlsx")
	testutil.WriteWorkbook(t, path, testutil.Sheet{
		Name: "FY 2026 R-1",
		Rows: [][]interface{}{
			{"Program Element Number", "Program Element Title", "Organization", "Notes", "FY2026 Request"},
			{"0603270A", "Electronic Warfare, also funds 0604270A and 0603270A", "usa", "Moved from 0605000BB", 44},
		},
	})

	res, err := ParseSpreadsheet(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "r1", res.ExhibitType)
	require.Len(t, res.Lines, 1)

	line := res.Lines[0]
	assert.Equal(t, "0603270A", line.PENumber)
	assert.Equal(t, "Army", line.Organization)
	assert.Equal(t, "FY 2026", line.FiscalYear)

	var extra map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line.ExtraFields), &extra))
	assert.Equal(t, "Moved from 0605000BB", extra["Notes"])
	assert.Equal(t, []interface{}{"0604270A", "0605000BB"}, extra["additional_pe_numbers"])
}

func TestParseSpreadsheet_CSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "FY2026", "Air_Force", "o1_af.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := "\ufeffBudget Activity Title,SAG Title,FY 2026 Request Amount\n" +
		"Operating Forces,Primary Combat Forces,\"$1,500\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := ParseSpreadsheet(path, Options{DocsRoot: dir})
	require.NoError(t, err)
	assert.Equal(t, "o1", res.ExhibitType)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, "Operating Forces", res.Lines[0].BudgetActivityTitle)
	assert.Equal(t, "Primary Combat Forces", res.Lines[0].SubActivityTitle)
	assert.Equal(t, "o1_af", res.Lines[0].SheetName)
	assert.Equal(t, 1500.0, res.Lines[0].Amounts["amount_fy2026_request"])
	assert.Equal(t, "Air Force", res.Lines[0].Organization)
}

func TestParseSpreadsheet_NoHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.xlsx")
	testutil.WriteWorkbook(t, path, testutil.Sheet{
		Name: "Cover",
		Rows: [][]interface{}{{"Department of Defense"}, {"Budget Estimates"}},
	})

	res, err := ParseSpreadsheet(path, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
	assert.Empty(t, res.FYColumns)
}

func TestParseFile_Failures(t *testing.T) {
	dir := t.TempDir()

	xls := filepath.Join(dir, "FY2024", "p1.xls")
	require.NoError(t, os.MkdirAll(filepath.Dir(xls), 0o755))
	require.NoError(t, os.WriteFile(xls, []byte("legacy"), 0o644))

	res := ParseFile(context.Background(), xls, Options{DocsRoot: dir})
	require.True(t, res.HasError())
	assert.True(t, errors.Is(res.Err, ErrUnsupportedFormat))
	assert.Equal(t, "FY2024/p1.xls", res.SourceFile)
	assert.Equal(t, "p1", res.ExhibitType)
	assert.Equal(t, "FY 2024", res.FiscalYear)
	assert.Zero(t, res.RowCount())

	broken := filepath.Join(dir, "broken.xlsx")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0o644))
	res = ParseFile(context.Background(), broken, Options{})
	assert.True(t, res.HasError())
	assert.Equal(t, types.KindExcel, res.Kind)

	res = ParseFile(context.Background(), filepath.Join(dir, "notes.txt"), Options{})
	assert.True(t, errors.Is(res.Err, ErrUnsupportedFormat))
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf("a/B.XLSX")
	assert.True(t, ok)
	assert.Equal(t, types.KindExcel, kind)

	kind, ok = KindOf("book.pdf")
	assert.True(t, ok)
	assert.Equal(t, types.KindPDF, kind)

	_, ok = KindOf("readme.md")
	assert.False(t, ok)
}
