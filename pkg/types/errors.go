package types

import "errors"

// Domain errors for type validation
var (
	// Search result errors
	ErrInvalidResultID   = errors.New("invalid result ID")
	ErrInvalidRank       = errors.New("rank must be >= 1")
	ErrInvalidResultKind = errors.New("result kind must be budget_line or pdf_page")
	ErrMissingFileInfo   = errors.New("source file is required")
)
