package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/budgetdb/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open opens the database without migrating it
func Open(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// NewSQLiteStorage opens the database and applies pending migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	s, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(context.Background(), s.db); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return s, nil
}

// Migrate applies pending migrations and returns how many ran
func (s *SQLiteStorage) Migrate(ctx context.Context) (int, error) {
	return Migrate(ctx, s.db)
}

// DB exposes the underlying handle for migrations and ad hoc queries
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Tx is a write transaction covering one source file. The connection pool
// has a single connection, so no other storage call may run until the
// transaction ends.
type Tx struct {
	tx *sql.Tx
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// DeleteSourceRows removes every row previously loaded from a source file
func (t *Tx) DeleteSourceRows(ctx context.Context, sourceFile string) error {
	return deleteSourceRows(ctx, t.tx, sourceFile)
}

// InsertBudgetLines inserts lines and their FY amounts. Every amount column
// must already be catalogued with EnsureFYColumns.
func (t *Tx) InsertBudgetLines(ctx context.Context, lines []types.BudgetLine) (int, error) {
	return insertBudgetLines(ctx, t.tx, lines)
}

// InsertPdfPages inserts PDF pages
func (t *Tx) InsertPdfPages(ctx context.Context, pages []types.PdfPage) (int, error) {
	return insertPdfPages(ctx, t.tx, pages)
}

// InsertExtractionIssues records page level PDF extraction failures
func (t *Tx) InsertExtractionIssues(ctx context.Context, issues []types.ExtractionIssue) error {
	return insertExtractionIssues(ctx, t.tx, issues)
}

// UpsertIngestedFile writes the change-detection record for a file
func (t *Tx) UpsertIngestedFile(ctx context.Context, f *IngestedFile) error {
	return upsertIngestedFile(ctx, t.tx, f)
}

func deleteSourceRows(ctx context.Context, q querier, sourceFile string) error {
	stmts := []string{
		"DELETE FROM budget_line_amounts WHERE budget_line_id IN (SELECT id FROM budget_lines WHERE source_file = ?)",
		"DELETE FROM budget_lines WHERE source_file = ?",
		"DELETE FROM pdf_pages WHERE source_file = ?",
		"DELETE FROM pdf_extraction_issues WHERE source_file = ?",
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt, sourceFile); err != nil {
			return fmt.Errorf("failed to delete rows for %s: %w", sourceFile, err)
		}
	}
	return nil
}

func insertBudgetLines(ctx context.Context, q querier, lines []types.BudgetLine) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	lineStmt, err := q.PrepareContext(ctx, `
		INSERT INTO budget_lines (source_file, exhibit_type, sheet_name, fiscal_year, organization,
			account, account_title, budget_activity, budget_activity_title, sub_activity,
			sub_activity_title, line_item, line_item_title, pe_number, classification, extra_fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare line insert: %w", err)
	}
	defer func() { _ = lineStmt.Close() }()

	amountStmt, err := q.PrepareContext(ctx,
		"INSERT INTO budget_line_amounts (budget_line_id, column_name, value) VALUES (?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare amount insert: %w", err)
	}
	defer func() { _ = amountStmt.Close() }()

	for i := range lines {
		l := &lines[i]
		res, err := lineStmt.ExecContext(ctx,
			l.SourceFile, nullString(l.ExhibitType), nullString(l.SheetName), nullString(l.FiscalYear),
			nullString(l.Organization), nullString(l.Account), nullString(l.AccountTitle),
			nullString(l.BudgetActivity), nullString(l.BudgetActivityTitle), nullString(l.SubActivity),
			nullString(l.SubActivityTitle), nullString(l.LineItem), nullString(l.LineItemTitle),
			nullString(l.PENumber), nullString(l.Classification), nullString(l.ExtraFields))
		if err != nil {
			return i, fmt.Errorf("failed to insert budget line: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return i, err
		}
		for _, col := range l.AmountColumns() {
			if _, err := amountStmt.ExecContext(ctx, id, col, l.Amounts[col]); err != nil {
				return i, fmt.Errorf("failed to insert amount %s: %w", col, err)
			}
		}
	}
	return len(lines), nil
}

func insertPdfPages(ctx context.Context, q querier, pages []types.PdfPage) (int, error) {
	if len(pages) == 0 {
		return 0, nil
	}

	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO pdf_pages (source_file, page_number, page_text, has_tables, table_data,
			fiscal_year, exhibit_type, sections)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range pages {
		p := &pages[i]
		var sections sql.NullString
		if len(p.Sections) > 0 {
			b, err := json.Marshal(p.Sections)
			if err != nil {
				return i, err
			}
			sections = sql.NullString{String: string(b), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, p.SourceFile, p.PageNumber, nullString(p.Text), p.HasTables,
			nullString(p.TableData), nullString(p.FiscalYear), nullString(p.ExhibitType), sections)
		if err != nil {
			return i, fmt.Errorf("failed to insert page %d: %w", p.PageNumber, err)
		}
	}
	return len(pages), nil
}

func insertExtractionIssues(ctx context.Context, q querier, issues []types.ExtractionIssue) error {
	for _, is := range issues {
		_, err := q.ExecContext(ctx,
			"INSERT INTO pdf_extraction_issues (source_file, page_number, issue_type, detail, recorded_at) VALUES (?, ?, ?, ?, ?)",
			is.SourceFile, is.PageNumber, is.IssueType, nullString(is.Detail), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to record extraction issue: %w", err)
		}
	}
	return nil
}

func upsertIngestedFile(ctx context.Context, q querier, f *IngestedFile) error {
	if f.IngestedAt.IsZero() {
		f.IngestedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO ingested_files (file_path, file_type, size_bytes, mod_time, row_count, page_count,
			status, error_text, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			file_type = excluded.file_type,
			size_bytes = excluded.size_bytes,
			mod_time = excluded.mod_time,
			row_count = excluded.row_count,
			page_count = excluded.page_count,
			status = excluded.status,
			error_text = excluded.error_text,
			ingested_at = excluded.ingested_at
	`
	_, err := q.ExecContext(ctx, query, f.Path, string(f.FileType), f.SizeBytes, f.ModTime.UnixNano(),
		f.RowCount, f.PageCount, f.Status, nullString(f.ErrorText), f.IngestedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert ingested file: %w", err)
	}
	return nil
}

const ingestedColumns = `file_path, file_type, size_bytes, mod_time, row_count, page_count, status, error_text, ingested_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIngestedFile(r rowScanner) (*IngestedFile, error) {
	var (
		f        IngestedFile
		fileType string
		modTime  int64
		errText  sql.NullString
	)
	if err := r.Scan(&f.Path, &fileType, &f.SizeBytes, &modTime, &f.RowCount, &f.PageCount,
		&f.Status, &errText, &f.IngestedAt); err != nil {
		return nil, err
	}
	f.FileType = types.FileKind(fileType)
	f.ModTime = time.Unix(0, modTime)
	f.ErrorText = errText.String
	return &f, nil
}

// GetIngestedFile returns the change-detection record for a path
func (s *SQLiteStorage) GetIngestedFile(ctx context.Context, path string) (*IngestedFile, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+ingestedColumns+" FROM ingested_files WHERE file_path = ?", path)
	f, err := scanIngestedFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListIngestedFiles returns every record ordered by path
func (s *SQLiteStorage) ListIngestedFiles(ctx context.Context) ([]*IngestedFile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+ingestedColumns+" FROM ingested_files ORDER BY file_path")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*IngestedFile, 0)
	for rows.Next() {
		f, err := scanIngestedFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ClearData removes all loaded content and change-detection records.
// Checkpoints, reference tables and the FY column catalog are kept.
func (s *SQLiteStorage) ClearData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		"DELETE FROM budget_line_amounts",
		"DELETE FROM budget_lines",
		"DELETE FROM pdf_pages",
		"DELETE FROM pdf_extraction_issues",
		"DELETE FROM ingested_files",
		"INSERT INTO budget_lines_fts(budget_lines_fts) VALUES('delete-all')",
		"INSERT INTO pdf_pages_fts(pdf_pages_fts) VALUES('delete-all')",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear data: %w", err)
		}
	}
	return tx.Commit()
}

// RegisterDataSource upserts a <fiscal year>/<source label> directory
func (s *SQLiteStorage) RegisterDataSource(ctx context.Context, ds *DataSource) error {
	if ds.RegisteredAt.IsZero() {
		ds.RegisteredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_sources (fiscal_year, source_label, path, registered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fiscal_year, source_label) DO UPDATE SET path = excluded.path
	`, ds.FiscalYear, ds.SourceLabel, nullString(ds.Path), ds.RegisteredAt)
	if err != nil {
		return fmt.Errorf("failed to register data source: %w", err)
	}
	return nil
}

// ListDataSources returns registered data sources ordered by year and label
func (s *SQLiteStorage) ListDataSources(ctx context.Context) ([]*DataSource, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT fiscal_year, source_label, path, registered_at FROM data_sources ORDER BY fiscal_year, source_label")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*DataSource, 0)
	for rows.Next() {
		var (
			ds   DataSource
			path sql.NullString
		)
		if err := rows.Scan(&ds.FiscalYear, &ds.SourceLabel, &path, &ds.RegisteredAt); err != nil {
			return nil, err
		}
		ds.Path = path.String
		sources = append(sources, &ds)
	}
	return sources, rows.Err()
}

// BudgetLines reads back the lines of one source file in insertion order,
// or every line when sourceFile is empty.
func (s *SQLiteStorage) BudgetLines(ctx context.Context, sourceFile string) ([]types.BudgetLine, error) {
	query := `
		SELECT id, source_file, exhibit_type, sheet_name, fiscal_year, organization, account,
			account_title, budget_activity, budget_activity_title, sub_activity, sub_activity_title,
			line_item, line_item_title, pe_number, classification, extra_fields
		FROM budget_lines`
	var args []interface{}
	if sourceFile != "" {
		query += " WHERE source_file = ?"
		args = append(args, sourceFile)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var (
		lines []types.BudgetLine
		ids   []int64
	)
	for rows.Next() {
		var (
			id int64
			l  types.BudgetLine
			ns [15]sql.NullString
		)
		if err := rows.Scan(&id, &l.SourceFile, &ns[0], &ns[1], &ns[2], &ns[3], &ns[4], &ns[5], &ns[6],
			&ns[7], &ns[8], &ns[9], &ns[10], &ns[11], &ns[12], &ns[13], &ns[14]); err != nil {
			_ = rows.Close()
			return nil, err
		}
		l.ExhibitType, l.SheetName, l.FiscalYear, l.Organization = ns[0].String, ns[1].String, ns[2].String, ns[3].String
		l.Account, l.AccountTitle = ns[4].String, ns[5].String
		l.BudgetActivity, l.BudgetActivityTitle = ns[6].String, ns[7].String
		l.SubActivity, l.SubActivityTitle = ns[8].String, ns[9].String
		l.LineItem, l.LineItemTitle = ns[10].String, ns[11].String
		l.PENumber, l.Classification, l.ExtraFields = ns[12].String, ns[13].String, ns[14].String
		lines = append(lines, l)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	amounts, err := s.amountsByLine(ctx, sourceFile)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if a, ok := amounts[id]; ok {
			lines[i].Amounts = a
		}
	}
	return lines, nil
}

func (s *SQLiteStorage) amountsByLine(ctx context.Context, sourceFile string) (map[int64]map[string]float64, error) {
	query := `
		SELECT a.budget_line_id, a.column_name, a.value
		FROM budget_line_amounts a
		JOIN budget_lines bl ON bl.id = a.budget_line_id`
	var args []interface{}
	if sourceFile != "" {
		query += " WHERE bl.source_file = ?"
		args = append(args, sourceFile)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64]map[string]float64)
	for rows.Next() {
		var (
			id    int64
			name  string
			value sql.NullFloat64
		)
		if err := rows.Scan(&id, &name, &value); err != nil {
			return nil, err
		}
		if !value.Valid {
			continue
		}
		if out[id] == nil {
			out[id] = make(map[string]float64)
		}
		out[id][name] = value.Float64
	}
	return out, rows.Err()
}

// PdfPages reads back the pages of one source file ordered by page number,
// or every page when sourceFile is empty.
func (s *SQLiteStorage) PdfPages(ctx context.Context, sourceFile string) ([]types.PdfPage, error) {
	query := `
		SELECT source_file, page_number, page_text, has_tables, table_data, fiscal_year, exhibit_type, sections
		FROM pdf_pages`
	var args []interface{}
	if sourceFile != "" {
		query += " WHERE source_file = ?"
		args = append(args, sourceFile)
	}
	query += " ORDER BY source_file, page_number"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var pages []types.PdfPage
	for rows.Next() {
		var (
			p  types.PdfPage
			ns [5]sql.NullString
		)
		if err := rows.Scan(&p.SourceFile, &p.PageNumber, &ns[0], &p.HasTables, &ns[1], &ns[2], &ns[3], &ns[4]); err != nil {
			return nil, err
		}
		p.Text, p.TableData, p.FiscalYear, p.ExhibitType = ns[0].String, ns[1].String, ns[2].String, ns[3].String
		if ns[4].Valid && ns[4].String != "" {
			if err := json.Unmarshal([]byte(ns[4].String), &p.Sections); err != nil {
				return nil, fmt.Errorf("page %d sections: %w", p.PageNumber, err)
			}
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// GetStatus returns row counts and health information
func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{}

	version, err := CurrentVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version

	counts := []struct {
		dest  *int
		query string
	}{
		{&status.BudgetLines, "SELECT COUNT(*) FROM budget_lines"},
		{&status.PdfPages, "SELECT COUNT(*) FROM pdf_pages"},
		{&status.IngestedFiles, "SELECT COUNT(*) FROM ingested_files"},
		{&status.FailedFiles, "SELECT COUNT(*) FROM ingested_files WHERE status = 'error'"},
		{&status.FYColumns, "SELECT COUNT(*) FROM fy_columns"},
		{&status.DataSources, "SELECT COUNT(*) FROM data_sources"},
		{&status.ExtractIssues, "SELECT COUNT(*) FROM pdf_extraction_issues"},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to read status: %w", err)
		}
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.LastSession, err = s.latestSession(ctx)
	if err != nil {
		return nil, err
	}

	triggers, err := s.FTSTriggersPresent(ctx)
	if err != nil {
		return nil, err
	}
	status.Health = HealthStatus{
		DatabaseAccessible: true,
		FTSTriggersPresent: triggers,
	}
	return status, nil
}
