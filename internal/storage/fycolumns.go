package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/budgetdb/pkg/types"
)

// ErrInvalidColumnName is returned for FY column names that do not match
// amount_fy<year>_<phase> or quantity_fy<year>_<phase>
var ErrInvalidColumnName = errors.New("invalid fiscal year column name")

// parseFYColumn splits a validated column name into its parts
func parseFYColumn(name string) (FYColumn, error) {
	if !types.ValidFYColumn(name) {
		return FYColumn{}, fmt.Errorf("%q: %w", name, ErrInvalidColumnName)
	}
	kind, rest, _ := strings.Cut(name, "_fy")
	yearText, phase, _ := strings.Cut(rest, "_")
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return FYColumn{}, fmt.Errorf("%q: %w", name, ErrInvalidColumnName)
	}
	return FYColumn{Name: name, Kind: kind, FiscalYear: year, Phase: phase}, nil
}

// EnsureFYColumns registers any unknown FY columns and returns how many were
// added. Existing catalog entries are never changed and stored values are
// untouched; lines without a value for a new column read as NULL in
// budget_lines_wide. All names are validated before anything is written.
func (s *SQLiteStorage) EnsureFYColumns(ctx context.Context, names []string) (int, error) {
	cols := make([]FYColumn, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		col, err := parseFYColumn(name)
		if err != nil {
			return 0, err
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	now := time.Now().UTC()
	for _, col := range cols {
		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO fy_columns (name, kind, fiscal_year, phase, added_at) VALUES (?, ?, ?, ?, ?)",
			col.Name, col.Kind, col.FiscalYear, col.Phase, now)
		if err != nil {
			return 0, fmt.Errorf("failed to register column %s: %w", col.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added++
		}
	}

	if added > 0 {
		if err := recreateWideView(ctx, tx); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// recreateWideView rebuilds budget_lines_wide with one column per catalogued
// FY column. Names come from the validated catalog, so they are safe to
// interpolate.
func recreateWideView(ctx context.Context, q querier) error {
	names, err := fyColumnNames(ctx, q)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("CREATE VIEW budget_lines_wide AS SELECT bl.*")
	for _, name := range names {
		if !types.ValidFYColumn(name) {
			return fmt.Errorf("catalog entry %q: %w", name, ErrInvalidColumnName)
		}
		fmt.Fprintf(&sb,
			",\n    (SELECT a.value FROM budget_line_amounts a WHERE a.budget_line_id = bl.id AND a.column_name = '%s') AS %s",
			name, name)
	}
	sb.WriteString("\nFROM budget_lines bl")

	if _, err := q.ExecContext(ctx, "DROP VIEW IF EXISTS budget_lines_wide"); err != nil {
		return fmt.Errorf("failed to drop budget_lines_wide: %w", err)
	}
	if _, err := q.ExecContext(ctx, sb.String()); err != nil {
		return fmt.Errorf("failed to create budget_lines_wide: %w", err)
	}
	return nil
}

func fyColumnNames(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM fy_columns")
	if err != nil {
		return nil, fmt.Errorf("failed to list FY columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortFYColumns(names)
	return names, nil
}

// sortFYColumns orders by fiscal year, then amount before quantity, then name
func sortFYColumns(names []string) {
	sort.Slice(names, func(i, j int) bool {
		a, errA := parseFYColumn(names[i])
		b, errB := parseFYColumn(names[j])
		if errA != nil || errB != nil {
			return names[i] < names[j]
		}
		if a.FiscalYear != b.FiscalYear {
			return a.FiscalYear < b.FiscalYear
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Phase < b.Phase
	})
}

// ListFYColumns returns the catalog in view column order
func (s *SQLiteStorage) ListFYColumns(ctx context.Context) ([]FYColumn, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, kind, fiscal_year, phase, added_at FROM fy_columns")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byName := make(map[string]FYColumn)
	var names []string
	for rows.Next() {
		var col FYColumn
		if err := rows.Scan(&col.Name, &col.Kind, &col.FiscalYear, &col.Phase, &col.AddedAt); err != nil {
			return nil, err
		}
		byName[col.Name] = col
		names = append(names, col.Name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortFYColumns(names)
	cols := make([]FYColumn, 0, len(names))
	for _, n := range names {
		cols = append(cols, byName[n])
	}
	return cols, nil
}
