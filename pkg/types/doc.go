// Package types provides shared type definitions for budgetdb.
//
// This package defines domain types used across the parser, staging, loader,
// and builder packages so that parser output can move between them without
// conversion.
//
// # Core Types
//
// BudgetLine represents one line item extracted from a spreadsheet exhibit:
//
//	line := types.BudgetLine{
//	    SourceFile:    "FY2026/US_Army/p1_display.xlsx",
//	    ExhibitType:   "p1",
//	    FiscalYear:    "FY 2026",
//	    Organization:  "Army",
//	    LineItemTitle: "Utility Helicopter",
//	    Amounts: map[string]float64{
//	        "amount_fy2026_request": 1250.5,
//	    },
//	}
//
// The Amounts map is keyed by fiscal-year column name. A missing key means the
// row carries no value for that column, and it is stored as NULL.
//
// PdfPage represents one page of an ingested PDF:
//
//	page := types.PdfPage{
//	    SourceFile: "FY2026/US_Navy/rdten_vol1.pdf",
//	    PageNumber: 12,
//	    Text:       pageText,
//	    HasTables:  true,
//	}
//
// # Parse Results
//
// ParseResult is the single output shape of every parser. The staging layer
// reads Parquet files back into the same shape, which keeps staged and direct
// loads interchangeable.
//
// # Progress
//
// ProgressFunc is invoked with (phase, current, total, detail) at each unit of
// work. Phases are the Phase* constants.
package types
