package parser

import (
	"strings"

	"github.com/shopspring/decimal"
)

var numberReplacer = strings.NewReplacer(
	"$", "",
	",", "",
	" ", "",
	"\u00a0", "",
	"\t", "",
)

// ParseNumber converts a spreadsheet cell to a number. Currency symbols,
// thousands separators, surrounding whitespace and accounting style
// parentheses negatives are tolerated. def is returned when the text is not
// a number.
func ParseNumber(s string, def float64) float64 {
	if v, ok := parseOptionalNumber(s); ok {
		return v
	}
	return def
}

// parseOptionalNumber reports false for blank and unparseable cells, which
// become NULL amounts.
func parseOptionalNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "--" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = numberReplacer.Replace(s)
	if s == "" {
		return 0, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	if negative {
		d = d.Neg()
	}
	v, _ := d.Float64()
	return v, true
}
