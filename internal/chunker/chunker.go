package chunker

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/budgetdb/pkg/types"
)

// DefaultHeaders are the section headers recognized in narrative exhibits
var DefaultHeaders = []string{
	"Mission Description and Budget Item Justification",
	"Accomplishments/Planned Programs",
	"Acquisition Strategy",
	"Performance Metrics",
	"Program Change Summary",
	"Change Summary Explanation",
	"Other Program Funding Summary",
	"Remarks",
	"Program Description",
	"Justification",
	"Description of Operations Financed",
	"Financial Summary",
	"Summary of Increases and Decreases",
	"Personnel Summary",
	"Item Justification",
	"Production Rate",
	"Procurement Leadtimes",
	"Congressional Adds",
}

var markerRE = regexp.MustCompile(`^(?:[A-Za-z]|\d{1,2}|[ivxIVX]{1,4})[.)]\s+`)

// Chunker splits text on a fixed header vocabulary
type Chunker struct {
	headers []string // normalized, longest first
	display map[string]string
}

// New creates a Chunker. With no arguments DefaultHeaders are used.
func New(headers ...string) *Chunker {
	if len(headers) == 0 {
		headers = DefaultHeaders
	}
	c := &Chunker{display: make(map[string]string, len(headers))}
	for _, h := range headers {
		n := normalize(h)
		if n == "" {
			continue
		}
		if _, dup := c.display[n]; !dup {
			c.headers = append(c.headers, n)
			c.display[n] = h
		}
	}
	sort.SliceStable(c.headers, func(i, j int) bool {
		return len(c.headers[i]) > len(c.headers[j])
	})
	return c
}

var defaultChunker = New()

// SplitSections splits text using DefaultHeaders
func SplitSections(text string) []types.Section {
	return defaultChunker.Split(text)
}

// Split returns the sections of text in document order
func (c *Chunker) Split(text string) []types.Section {
	var (
		sections []types.Section
		header   string
		body     []string
		found    bool
	)
	emit := func() {
		b := strings.TrimSpace(strings.Join(body, "\n"))
		if header != "" || b != "" {
			sections = append(sections, types.Section{Header: header, Body: b})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if h, rest, ok := c.matchHeader(line); ok {
			emit()
			found = true
			header = h
			body = body[:0]
			if rest != "" {
				body = append(body, rest)
			}
			continue
		}
		body = append(body, line)
	}
	if !found {
		return nil
	}
	emit()
	return sections
}

// matchHeader reports whether line starts with a known header. The remainder
// of the line after the header (and an optional colon) is returned as body.
func (c *Chunker) matchHeader(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	trimmed = markerRE.ReplaceAllString(trimmed, "")
	lower := strings.ToLower(collapseSpace(trimmed))
	for _, h := range c.headers {
		if !strings.HasPrefix(lower, h) {
			continue
		}
		rest := lower[len(h):]
		// require a word boundary after the header
		if rest != "" && isWordByte(rest[0]) {
			continue
		}
		tail := rest
		if orig := collapseSpace(trimmed); len(orig) == len(lower) {
			tail = orig[len(h):]
		}
		tail = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tail), ":"))
		return c.display[h], tail, true
	}
	return "", "", false
}

func normalize(s string) string {
	return strings.ToLower(collapseSpace(strings.TrimSpace(s)))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
