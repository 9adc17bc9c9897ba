package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WritePDF writes a minimal single-font PDF with one content stream per page
func WritePDF(t testing.TB, path string, pages []string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	n := len(pages)
	// objects: 1 catalog, 2 pages, 3 font, then page/content pairs
	var objs []string
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, content := range pages {
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// TextOps writes one text block; T* breaks lines so extracted plain text
// keeps one line per entry
func TextOps(lines ...string) string {
	var sb strings.Builder
	sb.WriteString("BT /F1 12 Tf 14 TL 72 720 Td\n")
	for i, l := range lines {
		if i > 0 {
			sb.WriteString("T*\n")
		}
		fmt.Fprintf(&sb, "(%s) Tj\n", l)
	}
	sb.WriteString("ET\n")
	return sb.String()
}

// RectOps draws n stroked rectangles
func RectOps(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d 100 20 10 re S\n", 50+i*25)
	}
	return sb.String()
}

// NavyR2 writes a two page narrative R-2 justification under root and
// returns its path
func NavyR2(t testing.TB, root string) string {
	path := filepath.Join(root, "FY2026", "Navy", "r2_navy_justification.pdf")
	WritePDF(t, path, []string{
		TextOps("Mission Description and Budget Item Justification", "Develops hypersonic strike technology."),
		RectOps(12) + TextOps("Program Change Summary", "Navy strike program totals"),
	})
	return path
}
