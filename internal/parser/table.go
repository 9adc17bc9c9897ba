package parser

import (
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// rowTolerance is the vertical distance in points within which runs
	// belong to the same text line
	rowTolerance = 2.0
	// minCellGap is the horizontal gap, as a multiple of the font size,
	// that starts a new cell
	minCellGap = 1.5
	minColumns = 2
)

type textRow struct {
	y    float64
	runs []pdf.Text
}

// ExtractTables groups positioned text runs into rows and cells. Consecutive
// rows with at least two cells form a table; a single-cell line ends it.
func ExtractTables(runs []pdf.Text) [][][]string {
	rows := groupRows(runs)

	var (
		tables [][][]string
		cur    [][]string
	)
	flush := func() {
		if len(cur) >= 2 {
			tables = append(tables, cur)
		}
		cur = nil
	}
	for _, r := range rows {
		cells := splitCells(r.runs)
		if len(cells) < minColumns {
			flush()
			continue
		}
		cur = append(cur, cells)
	}
	flush()
	return tables
}

// groupRows buckets runs by baseline, top of page first
func groupRows(runs []pdf.Text) []textRow {
	sorted := make([]pdf.Text, 0, len(runs))
	for _, t := range runs {
		if t.S != "" {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows []textRow
	for _, t := range sorted {
		if n := len(rows); n > 0 && math.Abs(rows[n-1].y-t.Y) <= rowTolerance {
			rows[n-1].runs = append(rows[n-1].runs, t)
			continue
		}
		rows = append(rows, textRow{y: t.Y, runs: []pdf.Text{t}})
	}
	for i := range rows {
		sort.SliceStable(rows[i].runs, func(a, b int) bool {
			return rows[i].runs[a].X < rows[i].runs[b].X
		})
	}
	return rows
}

// splitCells joins runs on one line and starts a new cell at wide gaps
func splitCells(runs []pdf.Text) []string {
	var (
		cells []string
		sb    strings.Builder
		end   float64
	)
	for i, t := range runs {
		gap := minCellGap * math.Max(t.FontSize, 1)
		if i > 0 && t.X-end > gap {
			if s := strings.TrimSpace(sb.String()); s != "" {
				cells = append(cells, s)
			}
			sb.Reset()
		}
		sb.WriteString(t.S)
		end = t.X + t.W
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}
