package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/budgetdb/pkg/types"
)

// Reader reads staged output back into parse results
type Reader struct {
	root string
}

// NewReader opens a staging root. It returns ErrStagingDirMissing when root
// does not exist or is not a directory.
func NewReader(root string) (*Reader, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", root, ErrStagingDirMissing)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory: %w", root, ErrStagingDirMissing)
	}
	return &Reader{root: root}, nil
}

// ListSidecars returns every sidecar under the root ordered by source path
func (r *Reader) ListSidecars() ([]*Sidecar, error) {
	var sidecars []*Sidecar

	err := filepath.Walk(r.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), sidecarSuffix) {
			return nil
		}
		sc, err := ReadSidecar(path)
		if err != nil {
			return err
		}
		sidecars = append(sidecars, sc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sidecars, func(i, j int) bool {
		return sidecars[i].SourceFile < sidecars[j].SourceFile
	})
	return sidecars, nil
}

// FYColumnUnion returns the sorted union of FY columns across sidecars
func FYColumnUnion(sidecars []*Sidecar) []string {
	seen := make(map[string]struct{})
	for _, sc := range sidecars {
		for _, col := range sc.FYColumns {
			seen[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// ReadStaged returns the parse result a sidecar describes, in the same shape
// parser.ParseFile produces. A sidecar that recorded a parse error yields a
// result with Err set and no rows.
func (r *Reader) ReadStaged(ctx context.Context, sc *Sidecar) (*types.ParseResult, error) {
	res := &types.ParseResult{
		SourceFile:  sc.SourceFile,
		Kind:        sc.FileType,
		ExhibitType: sc.ExhibitType,
		FiscalYear:  sc.FiscalYear,
		FYColumns:   sc.FYColumns,
	}
	if sc.Error != "" {
		res.Err = errors.New(sc.Error)
		return res, nil
	}
	for _, is := range sc.Issues {
		res.Issues = append(res.Issues, types.ExtractionIssue{
			SourceFile: sc.SourceFile,
			PageNumber: is.PageNumber,
			IssueType:  is.IssueType,
			Detail:     is.Detail,
		})
	}

	path := sc.DataPath()
	if path == "" {
		return res, nil
	}

	var err error
	switch sc.FileType {
	case types.KindPDF:
		res.Pages, err = readPages(ctx, path)
	default:
		res.Lines, err = readLines(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	if got := res.RowCount() + res.PageCount(); got != sc.RowCount+sc.PageCount {
		return nil, fmt.Errorf("%s: sidecar records %d rows and %d pages, data file has %d",
			sc.SourceFile, sc.RowCount, sc.PageCount, got)
	}
	return res, nil
}

// ReadSummary loads _staging_meta.json from a staging root
func ReadSummary(stagingRoot string) (*Summary, error) {
	data, err := os.ReadFile(MetaPath(stagingRoot))
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid staging metadata: %w", err)
	}
	return &s, nil
}
