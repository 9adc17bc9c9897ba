package exhibit

import (
	"path/filepath"
	"sort"
	"strings"
)

// Matcher is one tier of exhibit type detection
type Matcher interface {
	// Name identifies the tier in logs and tests
	Name() string
	// Match returns the exhibit code found in a lowercased file name
	Match(name string) (string, bool)
}

// CodeMatcher finds a known exhibit code embedded in a file name. Codes are
// tried longest first and must start at a token boundary, so "p1r" wins over
// "p1" and "rp1" does not match "p1".
type CodeMatcher struct {
	codes []string
}

// NewCodeMatcher builds a matcher over the given codes
func NewCodeMatcher(codes []string) *CodeMatcher {
	return &CodeMatcher{codes: longestFirst(codes)}
}

func (m *CodeMatcher) Name() string { return "code" }

func (m *CodeMatcher) Match(name string) (string, bool) {
	for _, code := range m.codes {
		if containsToken(name, code) {
			return code, true
		}
	}
	return "", false
}

// AbbreviationMatcher maps appropriation book abbreviations found in a file
// name to a canonical exhibit code, longest abbreviation first.
type AbbreviationMatcher struct {
	abbrevs []string
	targets map[string]string
}

// NewAbbreviationMatcher builds a matcher from an abbreviation table
func NewAbbreviationMatcher(table map[string]string) *AbbreviationMatcher {
	keys := make([]string, 0, len(table))
	targets := make(map[string]string, len(table))
	for k, v := range table {
		k = strings.ToLower(k)
		keys = append(keys, k)
		targets[k] = v
	}
	return &AbbreviationMatcher{abbrevs: longestFirst(keys), targets: targets}
}

func (m *AbbreviationMatcher) Name() string { return "abbreviation" }

func (m *AbbreviationMatcher) Match(name string) (string, bool) {
	for _, abbr := range m.abbrevs {
		if containsToken(name, abbr) {
			return m.targets[abbr], true
		}
	}
	return "", false
}

// Detector evaluates matchers in order and falls back to Unknown
type Detector struct {
	matchers []Matcher
}

// NewDetector creates a detector over an ordered matcher chain
func NewDetector(matchers ...Matcher) *Detector {
	return &Detector{matchers: matchers}
}

// Detect returns the exhibit code for a file path. Only the base name is
// examined, and the extension is ignored.
func (d *Detector) Detect(path string) string {
	code, _ := d.DetectWith(path)
	return code
}

// DetectWith returns the exhibit code and the name of the matcher tier that
// produced it ("fallback" when none matched).
func (d *Detector) DetectWith(path string) (string, string) {
	base := filepath.Base(filepath.ToSlash(path))
	name := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	for _, m := range d.matchers {
		if code, ok := m.Match(name); ok {
			return code, m.Name()
		}
	}
	return Unknown, "fallback"
}

var defaultDetector = newDefaultDetector()

func newDefaultDetector() *Detector {
	codes := make([]string, 0, len(Types))
	for _, t := range Types {
		codes = append(codes, t.Code)
	}
	return NewDetector(NewCodeMatcher(codes), NewAbbreviationMatcher(Abbreviations))
}

// Detect runs the default matcher chain over a file path
func Detect(path string) string {
	return defaultDetector.Detect(path)
}

func longestFirst(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// containsToken reports whether tok occurs in s starting at a boundary: the
// start of s or a non-alphanumeric byte. The right side is left open so
// "p1r_display" and "p1display" both contain their code.
func containsToken(s, tok string) bool {
	if tok == "" {
		return false
	}
	from := 0
	for {
		i := strings.Index(s[from:], tok)
		if i < 0 {
			return false
		}
		at := from + i
		if at == 0 || !isAlnum(s[at-1]) {
			return true
		}
		from = at + 1
	}
}

func isAlnum(b byte) bool {
	return isLetter(b) || (b >= '0' && b <= '9')
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
