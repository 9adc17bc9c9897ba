// Package parser turns DoD budget exhibits into normalized rows.
//
// Parsers are pure: they read one source file and return a
// types.ParseResult without touching the database, so they can run on any
// number of worker goroutines.
//
// # Spreadsheets
//
// ParseSpreadsheet reads .xlsx and .xlsm workbooks through excelize and .csv
// files through encoding/csv. Legacy .xls workbooks are rejected with
// ErrUnsupportedFormat. For each sheet the header row is located within the
// first rows, header cells are mapped to canonical roles (see MapHeaders),
// and fiscal year headers become dynamic columns:
//
//	"FY2026 Request Amount"   -> amount_fy2026_request
//	"FY2026 Request Quantity" -> quantity_fy2026_request
//	"FY 2025 Enacted OCO"     -> amount_fy2025_enacted_oco
//
// Blank or unparseable amount cells are omitted from BudgetLine.Amounts and
// stored as NULL.
//
// # PDFs
//
// ParsePDF extracts page text with ledongthuc/pdf. A page is flagged as
// likely holding a table when its rectangle count exceeds
// Options.TableRectThreshold; only those pages go through table extraction,
// which runs under Options.TableTimeout. A timed out or failed extraction
// leaves the page without table data and adds an ExtractionIssue.
//
// # Errors
//
// ParseFile never returns an error. Failures are carried in
// ParseResult.Err with zero rows and pages so the build can continue.
package parser
