package types

import (
	"regexp"
	"sort"
)

var fyColumnRE = regexp.MustCompile(`^(amount|quantity)_fy\d{4}_[a-z0-9_]+$`)

// ValidFYColumn reports whether name is a well formed fiscal year column
// name such as amount_fy2026_request or quantity_fy2025_enacted_base.
func ValidFYColumn(name string) bool {
	return fyColumnRE.MatchString(name)
}

// BudgetLine is one row of a spreadsheet exhibit
type BudgetLine struct {
	SourceFile  string
	ExhibitType string
	SheetName   string
	FiscalYear  string // Canonical "FY 2026" form

	Organization string

	Account             string
	AccountTitle        string
	BudgetActivity      string
	BudgetActivityTitle string
	SubActivity         string
	SubActivityTitle    string
	LineItem            string
	LineItemTitle       string

	PENumber       string
	Classification string

	// Amounts holds amount_fy<year>_<phase> and quantity_fy<year>_<phase>
	// values. Absent keys are NULL.
	Amounts map[string]float64

	// ExtraFields is a JSON object with columns that do not map to the
	// canonical schema. Empty when there are none.
	ExtraFields string
}

// AmountColumns returns the FY column names present on the line, sorted
func (b *BudgetLine) AmountColumns() []string {
	cols := make([]string, 0, len(b.Amounts))
	for name := range b.Amounts {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

// PdfPage is one page of an ingested PDF document
type PdfPage struct {
	SourceFile  string
	PageNumber  int // 1-based
	Text        string
	HasTables   bool
	TableData   string // JSON encoded [][]string per table, empty when none
	FiscalYear  string
	ExhibitType string
	Sections    []Section
}

// Section is a labeled block of narrative text within a page
type Section struct {
	Header string `json:"header"`
	Body   string `json:"body"`
}

// ExtractionIssue records a page whose table extraction failed or timed out
type ExtractionIssue struct {
	SourceFile string
	PageNumber int
	IssueType  string // "timeout" or "error"
	Detail     string
}

// Extraction issue types
const (
	IssueTimeout = "timeout"
	IssueError   = "error"
)
