package types

// SearchResult represents a single full-text search hit
type SearchResult struct {
	// Identification
	ID   int64
	Kind string // "budget_line" or "pdf_page"
	Rank int    // Position in result set (1-based)

	// Scoring
	Score float64 // Normalized BM25 in (0, 1], higher is better

	// Metadata
	SourceFile   string
	FiscalYear   string
	ExhibitType  string
	Organization string
	Title        string // Line item title; empty for pages
	PENumber     string
	PageNumber   int
	Snippet      string
}

// Search result kinds
const (
	ResultBudgetLine = "budget_line"
	ResultPdfPage    = "pdf_page"
)

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ID == 0 {
		return ErrInvalidResultID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Kind != ResultBudgetLine && sr.Kind != ResultPdfPage {
		return ErrInvalidResultKind
	}

	if sr.SourceFile == "" {
		return ErrMissingFileInfo
	}

	return nil
}
