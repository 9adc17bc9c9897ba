package types

// FileKind identifies the parser family for a source document
type FileKind string

const (
	KindExcel FileKind = "excel"
	KindPDF   FileKind = "pdf"
)

// ParseResult represents the output of parsing one source document
type ParseResult struct {
	SourceFile  string // Path relative to the documents root
	Kind        FileKind
	ExhibitType string
	FiscalYear  string

	Lines  []BudgetLine
	Pages  []PdfPage
	Issues []ExtractionIssue

	// FYColumns is the sorted set of FY column names found in the file
	FYColumns []string

	// Err is set when the file could not be parsed. Lines and Pages are
	// empty in that case.
	Err error
}

// RowCount returns the number of budget lines produced
func (pr *ParseResult) RowCount() int {
	return len(pr.Lines)
}

// PageCount returns the number of PDF pages produced
func (pr *ParseResult) PageCount() int {
	return len(pr.Pages)
}

// HasError returns true if the parse failed
func (pr *ParseResult) HasError() bool {
	return pr.Err != nil
}

// ErrorText returns the parse error message, or "" when there is none
func (pr *ParseResult) ErrorText() string {
	if pr.Err == nil {
		return ""
	}
	return pr.Err.Error()
}

// FileError pairs a source path with the error that stopped it
type FileError struct {
	Path string
	Err  string
}

func (fe FileError) String() string {
	return fe.Path + ": " + fe.Err
}
