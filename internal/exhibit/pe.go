package exhibit

import "regexp"

var peRE = regexp.MustCompile(`\b\d{7}[A-Z]{1,2}\b`)

// ExtractPENumbers returns the distinct Program Element numbers found in
// the given texts, in order of first appearance.
func ExtractPENumbers(texts ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, pe := range peRE.FindAllString(text, -1) {
			if _, ok := seen[pe]; ok {
				continue
			}
			seen[pe] = struct{}{}
			out = append(out, pe)
		}
	}
	return out
}

// IsPENumber reports whether s is exactly one PE number
func IsPENumber(s string) bool {
	loc := peRE.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}
