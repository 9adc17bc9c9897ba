package exhibit

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	fyPattern        = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])fy[\s_\-]*((?:19|20)\d{2}|\d{2})(?:[^0-9]|$)`)
	fiscalDirPattern = regexp.MustCompile(`(?i)^fy\d{4}`)
)

// FiscalYear extracts a fiscal year from free text and returns it in the
// canonical "FY 2026" form. Two digit years are read as 20xx.
func FiscalYear(s string) (string, bool) {
	m := fyPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	if year < 100 {
		year += 2000
	}
	return FormatFiscalYear(year), true
}

// FormatFiscalYear renders a year in canonical form
func FormatFiscalYear(year int) string {
	return fmt.Sprintf("FY %d", year)
}

// FiscalYearFromPath looks for a directory segment named like FY2026,
// innermost first.
func FiscalYearFromPath(path string) (string, bool) {
	segments := strings.Split(filepath.ToSlash(filepath.Dir(path)), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if !fiscalDirPattern.MatchString(seg) {
			continue
		}
		year, err := strconv.Atoi(seg[2:6])
		if err == nil {
			return FormatFiscalYear(year), true
		}
	}
	return "", false
}

// ResolveFiscalYear prefers the sheet name, then an FY directory in the
// path. An empty string is returned when nothing matches.
func ResolveFiscalYear(sheet, path string) string {
	if fy, ok := FiscalYear(sheet); ok {
		return fy
	}
	if fy, ok := FiscalYearFromPath(path); ok {
		return fy
	}
	return ""
}

// IsFiscalYearDir reports whether a directory name marks a fiscal year
// directory in the documents tree.
func IsFiscalYearDir(name string) bool {
	return fiscalDirPattern.MatchString(name)
}
