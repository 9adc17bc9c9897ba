package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Output colors: red for failures, yellow for warnings, green for success,
// cyan for phase headings
var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

func success(w io.Writer, msg string) {
	_, _ = green.Fprintf(w, "✓ %s\n", msg)
}

func warning(w io.Writer, msg string) {
	_, _ = yellow.Fprintf(w, "! %s\n", msg)
}

func failure(w io.Writer, msg string) {
	_, _ = red.Fprintf(w, "✗ %s\n", msg)
}

func heading(w io.Writer, msg string) {
	_, _ = bold.Fprintln(w, msg)
}

// field prints an aligned "label: value" line
func field(w io.Writer, label string, value interface{}) {
	_, _ = fmt.Fprintf(w, "  %-18s %v\n", label+":", value)
}
