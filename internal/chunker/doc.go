// Package chunker divides narrative budget exhibit pages into labeled
// sections.
//
// R-2, R-2A, P-40 and OP-5 justification pages follow a fixed outline:
// "Mission Description and Budget Item Justification", "Accomplishments/
// Planned Programs", "Acquisition Strategy" and so on. A section starts
// wherever one of the recognized header phrases begins a line, and runs until
// the next header.
//
// # Basic Usage
//
//	sections := chunker.SplitSections(pageText)
//	for _, s := range sections {
//	    fmt.Printf("%s: %d chars\n", s.Header, len(s.Body))
//	}
//
// Text before the first header is returned as a section with an empty
// Header. Pages with no recognized header produce no sections.
//
// A custom vocabulary can be supplied with New:
//
//	c := chunker.New("Program Change Summary", "Other Program Funding")
//	sections := c.Split(pageText)
//
// Matching is case-insensitive and tolerant of trailing colons, leading
// letter or number markers ("A.", "B)") and extra whitespace.
package chunker
