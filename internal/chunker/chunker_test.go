package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSections(t *testing.T) {
	text := `Exhibit R-2, RDT&E Budget Item Justification: PB 2026 Army
A. Mission Description and Budget Item Justification
This program element funds applied research.
B. Program Change Summary ($ in Millions)
Previous President's Budget 10.1
Accomplishments/Planned Programs: Continue prototype testing.
Title: Sensors`

	sections := SplitSections(text)
	require.Len(t, sections, 4)

	assert.Equal(t, "", sections[0].Header)
	assert.Contains(t, sections[0].Body, "Exhibit R-2")

	assert.Equal(t, "Mission Description and Budget Item Justification", sections[1].Header)
	assert.Equal(t, "This program element funds applied research.", sections[1].Body)

	assert.Equal(t, "Program Change Summary", sections[2].Header)
	assert.Contains(t, sections[2].Body, "($ in Millions)")
	assert.Contains(t, sections[2].Body, "Previous President's Budget")

	assert.Equal(t, "Accomplishments/Planned Programs", sections[3].Header)
	assert.Equal(t, "Continue prototype testing.\nTitle: Sensors", sections[3].Body)
}

func TestSplitSections_NoHeaders(t *testing.T) {
	assert.Nil(t, SplitSections("Line 1\nLine 2"))
	assert.Nil(t, SplitSections(""))
}

func TestSplitSections_HeaderMustStartLine(t *testing.T) {
	text := "The acquisition strategy is described below.\nRemarks\nNone."
	sections := SplitSections(text)
	require.Len(t, sections, 2)
	assert.Equal(t, "", sections[0].Header)
	assert.Equal(t, "Remarks", sections[1].Header)
	assert.Equal(t, "None.", sections[1].Body)
}

func TestSplitSections_WordBoundary(t *testing.T) {
	// "Remarkseries" must not open a Remarks section
	assert.Nil(t, SplitSections("Remarkseries of tests"))
}

func TestNew_CustomHeaders(t *testing.T) {
	c := New("Budget Line", "budget line", "Budget Line Detail")
	require.Len(t, c.headers, 2)
	assert.Equal(t, "budget line detail", c.headers[0])

	sections := c.Split("budget line detail: 42\nmore")
	require.Len(t, sections, 1)
	assert.Equal(t, "Budget Line Detail", sections[0].Header)
	assert.Equal(t, "42\nmore", sections[0].Body)
}
