package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/dshills/budgetdb/pkg/types"
)

// SearchBudgetLines runs a full-text query over budget line titles,
// organization and PE number. Results are ordered by BM25.
func (s *SQLiteStorage) SearchBudgetLines(ctx context.Context, query string, limit int, filters *SearchFilters) ([]types.SearchResult, error) {
	match := sanitizeFTSQuery(query)
	if match == "" {
		return nil, fmt.Errorf("empty search query")
	}

	sqlQuery := `
		SELECT bl.id, bm25(budget_lines_fts) AS score, bl.source_file, bl.fiscal_year, bl.exhibit_type,
			bl.organization, bl.line_item_title, bl.pe_number,
			snippet(budget_lines_fts, -1, '[', ']', '...', 12)
		FROM budget_lines_fts
		JOIN budget_lines bl ON bl.id = budget_lines_fts.rowid
		WHERE budget_lines_fts MATCH ?
	`
	args := []interface{}{match}
	sqlQuery, args = applyFilters(sqlQuery, args, "bl", filters, true)
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.SearchResult, 0)
	for rows.Next() {
		var (
			r                          types.SearchResult
			bm25                       float64
			fy, ex, org, title, pe, sn sql.NullString
		)
		if err := rows.Scan(&r.ID, &bm25, &r.SourceFile, &fy, &ex, &org, &title, &pe, &sn); err != nil {
			return nil, err
		}
		r.Kind = types.ResultBudgetLine
		r.Score = normalizeBM25(bm25)
		r.FiscalYear, r.ExhibitType, r.Organization = fy.String, ex.String, org.String
		r.Title, r.PENumber, r.Snippet = title.String, pe.String, sn.String
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchPdfPages runs a full-text query over PDF page text
func (s *SQLiteStorage) SearchPdfPages(ctx context.Context, query string, limit int, filters *SearchFilters) ([]types.SearchResult, error) {
	match := sanitizeFTSQuery(query)
	if match == "" {
		return nil, fmt.Errorf("empty search query")
	}

	sqlQuery := `
		SELECT p.id, bm25(pdf_pages_fts) AS score, p.source_file, p.fiscal_year, p.exhibit_type,
			p.page_number, snippet(pdf_pages_fts, 0, '[', ']', '...', 16)
		FROM pdf_pages_fts
		JOIN pdf_pages p ON p.id = pdf_pages_fts.rowid
		WHERE pdf_pages_fts MATCH ?
	`
	args := []interface{}{match}
	sqlQuery, args = applyFilters(sqlQuery, args, "p", filters, false)
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.SearchResult, 0)
	for rows.Next() {
		var (
			r          types.SearchResult
			bm25       float64
			fy, ex, sn sql.NullString
		)
		if err := rows.Scan(&r.ID, &bm25, &r.SourceFile, &fy, &ex, &r.PageNumber, &sn); err != nil {
			return nil, err
		}
		r.Kind = types.ResultPdfPage
		r.Score = normalizeBM25(bm25)
		r.FiscalYear, r.ExhibitType, r.Snippet = fy.String, ex.String, sn.String
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	return results, rows.Err()
}

// applyFilters adds WHERE clause filters. Organization only exists on
// budget lines.
func applyFilters(query string, args []interface{}, alias string, filters *SearchFilters, hasOrg bool) (string, []interface{}) {
	if filters == nil {
		return query, args
	}
	if filters.FiscalYear != "" {
		query += " AND " + alias + ".fiscal_year = ?"
		args = append(args, filters.FiscalYear)
	}
	if filters.ExhibitType != "" {
		query += " AND " + alias + ".exhibit_type = ?"
		args = append(args, filters.ExhibitType)
	}
	if hasOrg && filters.Organization != "" {
		query += " AND " + alias + ".organization = ?"
		args = append(args, filters.Organization)
	}
	if filters.SourceFile != "" {
		query += " AND " + alias + ".source_file LIKE ?"
		args = append(args, "%"+filters.SourceFile+"%")
	}
	return query, args
}

// normalizeBM25 maps SQLite's negative BM25 (lower is better) into (0, 1]
func normalizeBM25(score float64) float64 {
	return 1.0 / (1.0 + math.Abs(score)/50.0)
}
