package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dshills/budgetdb/internal/chunker"
	"github.com/dshills/budgetdb/internal/exhibit"
	"github.com/dshills/budgetdb/pkg/types"
)

// ParsePDF extracts every page of a PDF exhibit. Page level failures become
// ExtractionIssues; only an unreadable document returns an error.
func ParsePDF(ctx context.Context, path string, opts Options) (*types.ParseResult, error) {
	opts = opts.withDefaults()
	rel := opts.RelPath(path)

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	result := &types.ParseResult{
		SourceFile:  rel,
		Kind:        types.KindPDF,
		ExhibitType: exhibit.Detect(rel),
		FiscalYear:  exhibit.ResolveFiscalYear("", rel),
	}
	narrative := exhibit.IsNarrative(result.ExhibitType)

	numPages, err := pageCount(r)
	if err != nil {
		return nil, err
	}

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		pp := types.PdfPage{
			SourceFile:  rel,
			PageNumber:  i,
			FiscalYear:  result.FiscalYear,
			ExhibitType: result.ExhibitType,
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			result.Issues = append(result.Issues, types.ExtractionIssue{
				SourceFile: rel,
				PageNumber: i,
				IssueType:  types.IssueError,
				Detail:     fmt.Sprintf("text extraction: %v", err),
			})
		}
		pp.Text = strings.TrimSpace(text)

		content, err := pageContent(page)
		if err != nil {
			result.Issues = append(result.Issues, types.ExtractionIssue{
				SourceFile: rel,
				PageNumber: i,
				IssueType:  types.IssueError,
				Detail:     err.Error(),
			})
		} else if len(content.Rect) > opts.TableRectThreshold {
			pp.HasTables = true
			tables, issue := extractTablesWithTimeout(ctx, content.Text, opts)
			if issue != nil {
				issue.SourceFile = rel
				issue.PageNumber = i
				result.Issues = append(result.Issues, *issue)
			} else if len(tables) > 0 {
				if b, err := json.Marshal(tables); err == nil {
					pp.TableData = string(b)
				}
			}
		}

		if narrative && pp.Text != "" {
			pp.Sections = chunker.SplitSections(pp.Text)
		}
		result.Pages = append(result.Pages, pp)
	}

	return result, nil
}

// pageCount guards NumPage, which panics on a malformed page tree
func pageCount(r *pdf.Reader) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("failed to read page tree: %v", rec)
		}
	}()
	return r.NumPage(), nil
}

func pageContent(page pdf.Page) (content pdf.Content, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("content stream: %v", rec)
		}
	}()
	return page.Content(), nil
}

type tableOutcome struct {
	tables [][][]string
	err    error
}

// extractTablesWithTimeout runs table extraction under opts.TableTimeout. On
// timeout the worker goroutine is abandoned; it holds only its own copy of
// the page runs.
func extractTablesWithTimeout(ctx context.Context, runs []pdf.Text, opts Options) ([][][]string, *types.ExtractionIssue) {
	ctx, cancel := context.WithTimeout(ctx, opts.TableTimeout)
	defer cancel()

	done := make(chan tableOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- tableOutcome{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		done <- tableOutcome{tables: ExtractTables(runs)}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, &types.ExtractionIssue{IssueType: types.IssueError, Detail: out.err.Error()}
		}
		return out.tables, nil
	case <-ctx.Done():
		return nil, &types.ExtractionIssue{
			IssueType: types.IssueTimeout,
			Detail:    fmt.Sprintf("table extraction exceeded %s", opts.TableTimeout),
		}
	}
}
