// Package exhibit holds the reference data and string matching rules for DoD
// budget exhibits.
//
// Exhibit type detection runs an ordered chain of matchers against a file
// name, stopping at the first tier that recognizes it:
//   - CodeMatcher finds a known exhibit code ("p1r", "r1"). Codes are tried
//     longest first so "p1r_display.xlsx" detects p1r, not p1.
//   - AbbreviationMatcher maps service appropriation book abbreviations
//     ("rdten", "apn") to a canonical exhibit type, longest first.
//   - Anything else is Unknown.
//
// Example:
//
//	code := exhibit.Detect("p1r_display.xlsx") // "p1r"
//
// The package also normalizes fiscal years ("FY26", "fy-2026" -> "FY 2026"),
// extracts Program Element numbers, and carries the organization and budget
// cycle lists seeded into the reference tables.
package exhibit
