// Package testutil writes synthetic budget exhibits for package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet of a synthetic workbook
type Sheet struct {
	Name string
	Rows [][]interface{}
}

// WriteWorkbook saves an .xlsx file with the given sheets, creating parent
// directories as needed.
func WriteWorkbook(t testing.TB, path string, sheets ...Sheet) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", sh.Name))
		} else {
			_, err := f.NewSheet(sh.Name)
			require.NoError(t, err)
		}
		for r, row := range sh.Rows {
			cellRef, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			row := row
			require.NoError(t, f.SetSheetRow(sh.Name, cellRef, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

// ArmyP1 is an Army P-1 sheet with FY2025 and FY2026 amounts and two lines
func ArmyP1() Sheet {
	return Sheet{
		Name: "FY2026 P-1",
		Rows: [][]interface{}{
			{"Department of the Army Procurement Programs"},
			{},
			{"Account", "Account Title", "Budget Activity", "Budget Activity Title", "Line Item", "Line Item Title", "FY2025 Enacted Amount", "FY2026 Request Amount", "Classification"},
			{"2031A", "Aircraft Procurement, Army", "01", "Aircraft", "A05101", "UH-60 Blackhawk Helicopter", 1250.5, 980.25, "U"},
			{"2032A", "Missile Procurement, Army", "02", "Other Missiles", "C50700", "Patriot Missile Segment 0604114A", "2,100", "(15)", "U"},
		},
	}
}

// NavyP1 is a Navy P-1 sheet with FY2024 and FY2025 amounts and one line
func NavyP1() Sheet {
	return Sheet{
		Name: "Exhibit P-1",
		Rows: [][]interface{}{
			{"Account", "Account Title", "Budget Activity", "Budget Activity Title", "Line Item", "Line Item Title", "FY2024 Actuals", "FY2025 Enacted Amount", "Classification"},
			{"1506N", "Aircraft Procurement, Navy", "01", "Combat Aircraft", "0145", "MH-60R Seahawk Helicopter", 310, 295.75, "U"},
		},
	}
}

// BudgetTree lays out the Army and Navy P-1 workbooks under
// root/FY2026/<service>/ and returns their paths.
func BudgetTree(t testing.TB, root string) (army, navy string) {
	t.Helper()
	army = filepath.Join(root, "FY2026", "US_Army", "p1_army.xlsx")
	navy = filepath.Join(root, "FY2026", "Navy", "p1_navy.xlsx")
	WriteWorkbook(t, army, ArmyP1())
	WriteWorkbook(t, navy, NavyP1())
	return army, navy
}
