package parser

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dshills/budgetdb/internal/exhibit"
	"github.com/dshills/budgetdb/pkg/types"
)

// headerScanRows is how many leading rows of a sheet are searched for the
// header row
const headerScanRows = 20

// minHeaderScore is the fewest recognized cells a header row must have
const minHeaderScore = 2

// sheet is one grid of cells, from a workbook sheet or a CSV file
type sheet struct {
	name string
	rows [][]string
}

// ParseSpreadsheet parses an .xlsx, .xlsm or .csv exhibit
func ParseSpreadsheet(path string, opts Options) (*types.ParseResult, error) {
	opts = opts.withDefaults()
	rel := opts.RelPath(path)

	var (
		sheets []sheet
		err    error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		sheets, err = readWorkbook(path)
	case ".csv":
		sheets, err = readCSV(path)
	default:
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, err
	}

	result := &types.ParseResult{
		SourceFile:  rel,
		Kind:        types.KindExcel,
		ExhibitType: exhibit.Detect(rel),
		FiscalYear:  exhibit.ResolveFiscalYear("", rel),
	}

	fySet := make(map[string]struct{})
	for _, sh := range sheets {
		lines, fyCols := parseSheet(sh, rel, result.ExhibitType)
		result.Lines = append(result.Lines, lines...)
		for _, c := range fyCols {
			fySet[c] = struct{}{}
		}
	}

	result.FYColumns = make([]string, 0, len(fySet))
	for c := range fySet {
		result.FYColumns = append(result.FYColumns, c)
	}
	sort.Strings(result.FYColumns)
	return result, nil
}

func readWorkbook(path string) ([]sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var sheets []sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		sheets = append(sheets, sheet{name: name, rows: rows})
	}
	return sheets, nil
}

func readCSV(path string) ([]sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}

	base := filepath.Base(path)
	return []sheet{{name: strings.TrimSuffix(base, filepath.Ext(base)), rows: rows}}, nil
}

// findHeader returns the index and mapping of the best header row among the
// first headerScanRows rows, or -1 when no row qualifies.
func findHeader(rows [][]string, exhibitCode string) (int, ColumnMapping) {
	best := -1
	var bestMapping ColumnMapping
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		m := MapHeaders(rows[i], exhibitCode)
		if m.Score() >= minHeaderScore && m.Score() > bestMapping.Score() {
			best = i
			bestMapping = m
		}
	}
	return best, bestMapping
}

func parseSheet(sh sheet, rel, exhibitCode string) ([]types.BudgetLine, []string) {
	headerIdx, mapping := findHeader(sh.rows, exhibitCode)
	if headerIdx < 0 {
		return nil, nil
	}

	fiscalYear := exhibit.ResolveFiscalYear(sh.name, rel)
	pathOrg := exhibit.OrganizationFromPath(rel)
	headerKey := strings.Join(sh.rows[headerIdx], "\x00")

	var lines []types.BudgetLine
	for _, row := range sh.rows[headerIdx+1:] {
		if isBlankRow(row) || strings.Join(row, "\x00") == headerKey {
			continue
		}
		line, ok := buildLine(row, mapping)
		if !ok {
			continue
		}
		line.SourceFile = rel
		line.ExhibitType = exhibitCode
		line.SheetName = sh.name
		line.FiscalYear = fiscalYear
		if line.Organization != "" {
			line.Organization = exhibit.NormalizeOrganization(line.Organization)
		} else {
			line.Organization = pathOrg
		}
		lines = append(lines, line)
	}
	return lines, mapping.FYColumnNames()
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// buildLine maps one data row. Rows with neither an identifying field nor an
// amount are dropped.
func buildLine(row []string, m ColumnMapping) (types.BudgetLine, bool) {
	var line types.BudgetLine
	extra := make(map[string]interface{})

	for i, role := range m.Roles {
		v := cell(row, i)
		switch role {
		case RoleAccount:
			line.Account = v
		case RoleAccountTitle:
			line.AccountTitle = v
		case RoleOrganization:
			line.Organization = v
		case RoleBudgetActivity:
			line.BudgetActivity = v
		case RoleBudgetActivityTitle:
			line.BudgetActivityTitle = v
		case RoleSubActivity:
			line.SubActivity = v
		case RoleSubActivityTitle:
			line.SubActivityTitle = v
		case RoleLineItem:
			line.LineItem = v
		case RoleLineItemTitle:
			line.LineItemTitle = v
		case RolePENumber:
			line.PENumber = v
		case RoleClassification:
			line.Classification = v
		}
	}

	for i, name := range m.FYColumns {
		if v, ok := parseOptionalNumber(cell(row, i)); ok {
			if line.Amounts == nil {
				line.Amounts = make(map[string]float64)
			}
			line.Amounts[name] = v
		}
	}

	var unmappedText []string
	for i, h := range m.Headers {
		if _, ok := m.Roles[i]; ok {
			continue
		}
		if _, ok := m.FYColumns[i]; ok {
			continue
		}
		v := cell(row, i)
		key := strings.TrimSpace(h)
		if v == "" || key == "" {
			continue
		}
		extra[key] = v
		unmappedText = append(unmappedText, v)
	}

	pes := exhibit.ExtractPENumbers(append([]string{
		line.PENumber, line.LineItemTitle, line.LineItem,
		line.SubActivityTitle, line.BudgetActivityTitle,
	}, unmappedText...)...)
	if len(pes) > 0 {
		line.PENumber = pes[0]
		if len(pes) > 1 {
			extra["additional_pe_numbers"] = pes[1:]
		}
	} else if !exhibit.IsPENumber(line.PENumber) {
		line.PENumber = ""
	}

	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			line.ExtraFields = string(b)
		}
	}

	identified := line.LineItemTitle != "" || line.LineItem != "" || line.PENumber != "" ||
		line.Account != "" || line.BudgetActivityTitle != "" || line.SubActivityTitle != ""
	if !identified && len(line.Amounts) == 0 {
		return line, false
	}
	return line, true
}
