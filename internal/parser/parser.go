package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/budgetdb/internal/exhibit"
	"github.com/dshills/budgetdb/pkg/types"
)

// Version is recorded in staging sidecars. Bump it when parser output changes
// so staged files are re-parsed.
const Version = "1.3.0"

const (
	// DefaultTableRectThreshold is an empirical cut-off carried over from
	// the first corpus it was tuned on; re-validate against new document sets.
	DefaultTableRectThreshold = 10
	DefaultTableTimeout       = 5 * time.Second
)

// ErrUnsupportedFormat is returned for files no parser can read
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Options configures parsing
type Options struct {
	// DocsRoot makes SourceFile relative to the documents tree. When empty
	// the path is used as given.
	DocsRoot string

	TableRectThreshold int
	TableTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.TableRectThreshold <= 0 {
		o.TableRectThreshold = DefaultTableRectThreshold
	}
	if o.TableTimeout <= 0 {
		o.TableTimeout = DefaultTableTimeout
	}
	return o
}

// RelPath returns the path relative to the docs root in slash form
func (o Options) RelPath(path string) string {
	if o.DocsRoot != "" {
		if rel, err := filepath.Rel(o.DocsRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

// KindOf classifies a path by extension
func KindOf(path string) (types.FileKind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xls", ".csv":
		return types.KindExcel, true
	case ".pdf":
		return types.KindPDF, true
	default:
		return "", false
	}
}

// ParseFile parses any supported file and captures failures in the result
func ParseFile(ctx context.Context, path string, opts Options) *types.ParseResult {
	kind, ok := KindOf(path)
	if !ok {
		return failedResult(path, "", opts, fmt.Errorf("%s: %w", filepath.Ext(path), ErrUnsupportedFormat))
	}

	var (
		res *types.ParseResult
		err error
	)
	switch kind {
	case types.KindPDF:
		res, err = ParsePDF(ctx, path, opts)
	default:
		res, err = ParseSpreadsheet(path, opts)
	}
	if err != nil {
		return failedResult(path, kind, opts, err)
	}
	return res
}

func failedResult(path string, kind types.FileKind, opts Options, err error) *types.ParseResult {
	rel := opts.RelPath(path)
	return &types.ParseResult{
		SourceFile:  rel,
		Kind:        kind,
		ExhibitType: exhibit.Detect(rel),
		FiscalYear:  exhibit.ResolveFiscalYear("", rel),
		Err:         err,
	}
}
