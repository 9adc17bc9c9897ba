package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dshills/budgetdb/internal/exhibit"
)

// Migration represents one step of the schema ladder. Up, Seed and the
// version row are applied in a single transaction.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
	Seed        func(ctx context.Context, tx *sql.Tx) error
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version:     1,
		Description: "core tables and full-text indexes",
		Up:          migrationV1Up + ftsTriggersSQL,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "reference tables",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
		Seed:        seedReferenceData,
	},
	{
		Version:     3,
		Description: "build checkpoints",
		Up:          migrationV3Up,
		Down:        migrationV3Down,
	},
	{
		Version:     4,
		Description: "fiscal year column catalog, extraction issues, data sources",
		Up:          migrationV4Up,
		Down:        migrationV4Down,
	},
}

// LatestVersion is the highest migration version
func LatestVersion() int {
	return AllMigrations[len(AllMigrations)-1].Version
}

const schemaVersionSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    description TEXT,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS budget_lines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_file TEXT NOT NULL,
    exhibit_type TEXT,
    sheet_name TEXT,
    fiscal_year TEXT,
    organization TEXT,
    account TEXT,
    account_title TEXT,
    budget_activity TEXT,
    budget_activity_title TEXT,
    sub_activity TEXT,
    sub_activity_title TEXT,
    line_item TEXT,
    line_item_title TEXT,
    pe_number TEXT,
    classification TEXT,
    extra_fields TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_budget_lines_source ON budget_lines(source_file);
CREATE INDEX IF NOT EXISTS idx_budget_lines_fy ON budget_lines(fiscal_year);
CREATE INDEX IF NOT EXISTS idx_budget_lines_exhibit ON budget_lines(exhibit_type);
CREATE INDEX IF NOT EXISTS idx_budget_lines_org ON budget_lines(organization);
CREATE INDEX IF NOT EXISTS idx_budget_lines_pe ON budget_lines(pe_number);

CREATE TABLE IF NOT EXISTS pdf_pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_file TEXT NOT NULL,
    page_number INTEGER NOT NULL,
    page_text TEXT,
    has_tables INTEGER NOT NULL DEFAULT 0,
    table_data TEXT,
    fiscal_year TEXT,
    exhibit_type TEXT,
    sections TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_file, page_number)
);

CREATE INDEX IF NOT EXISTS idx_pdf_pages_fy ON pdf_pages(fiscal_year);
CREATE INDEX IF NOT EXISTS idx_pdf_pages_exhibit ON pdf_pages(exhibit_type);

CREATE TABLE IF NOT EXISTS ingested_files (
    file_path TEXT PRIMARY KEY,
    file_type TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    mod_time INTEGER NOT NULL,
    row_count INTEGER NOT NULL DEFAULT 0,
    page_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    error_text TEXT,
    ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ingested_files_status ON ingested_files(status);

CREATE VIRTUAL TABLE IF NOT EXISTS budget_lines_fts USING fts5(
    account_title, budget_activity_title, sub_activity_title,
    line_item_title, organization, pe_number,
    content='budget_lines',
    content_rowid='id'
);

CREATE VIRTUAL TABLE IF NOT EXISTS pdf_pages_fts USING fts5(
    page_text,
    content='pdf_pages',
    content_rowid='id'
);
`

const migrationV1Down = `
DROP TRIGGER IF EXISTS budget_lines_ai;
DROP TRIGGER IF EXISTS budget_lines_ad;
DROP TRIGGER IF EXISTS budget_lines_au;
DROP TRIGGER IF EXISTS pdf_pages_ai;
DROP TRIGGER IF EXISTS pdf_pages_ad;
DROP TRIGGER IF EXISTS pdf_pages_au;
DROP TABLE IF EXISTS budget_lines_fts;
DROP TABLE IF EXISTS pdf_pages_fts;
DROP TABLE IF EXISTS ingested_files;
DROP TABLE IF EXISTS pdf_pages;
DROP TABLE IF EXISTS budget_lines;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS exhibit_types (
    code TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    exhibit_class TEXT NOT NULL,
    description TEXT
);

CREATE TABLE IF NOT EXISTS services_agencies (
    code TEXT PRIMARY KEY,
    full_name TEXT NOT NULL,
    category TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS budget_cycles (
    code TEXT PRIMARY KEY,
    label TEXT NOT NULL
);
`

const migrationV2Down = `
DROP TABLE IF EXISTS budget_cycles;
DROP TABLE IF EXISTS services_agencies;
DROP TABLE IF EXISTS exhibit_types;
`

const migrationV3Up = `
CREATE TABLE IF NOT EXISTS build_progress (
    session_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    files_processed INTEGER NOT NULL DEFAULT 0,
    total_files INTEGER NOT NULL DEFAULT 0,
    pages_processed INTEGER NOT NULL DEFAULT 0,
    rows_inserted INTEGER NOT NULL DEFAULT 0,
    bytes_processed INTEGER NOT NULL DEFAULT 0,
    last_file TEXT,
    status TEXT NOT NULL DEFAULT 'in_progress',
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_build_progress_status ON build_progress(status);

CREATE TABLE IF NOT EXISTS processed_files (
    session_id TEXT NOT NULL,
    file_path TEXT NOT NULL,
    file_type TEXT,
    rows_count INTEGER NOT NULL DEFAULT 0,
    pages_count INTEGER NOT NULL DEFAULT 0,
    processed_at TIMESTAMP,
    PRIMARY KEY (session_id, file_path)
);
`

const migrationV3Down = `
DROP TABLE IF EXISTS processed_files;
DROP TABLE IF EXISTS build_progress;
`

const migrationV4Up = `
CREATE TABLE IF NOT EXISTS fy_columns (
    name TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    fiscal_year INTEGER NOT NULL,
    phase TEXT NOT NULL,
    added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS budget_line_amounts (
    budget_line_id INTEGER NOT NULL REFERENCES budget_lines(id) ON DELETE CASCADE,
    column_name TEXT NOT NULL REFERENCES fy_columns(name),
    value REAL,
    PRIMARY KEY (budget_line_id, column_name)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_amounts_column ON budget_line_amounts(column_name);

CREATE TABLE IF NOT EXISTS pdf_extraction_issues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_file TEXT NOT NULL,
    page_number INTEGER,
    issue_type TEXT NOT NULL,
    detail TEXT,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_extraction_issues_source ON pdf_extraction_issues(source_file);

CREATE TABLE IF NOT EXISTS data_sources (
    fiscal_year TEXT NOT NULL,
    source_label TEXT NOT NULL,
    path TEXT,
    registered_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (fiscal_year, source_label)
);

CREATE VIEW IF NOT EXISTS budget_lines_wide AS SELECT bl.* FROM budget_lines bl;
`

const migrationV4Down = `
DROP VIEW IF EXISTS budget_lines_wide;
DROP TABLE IF EXISTS data_sources;
DROP TABLE IF EXISTS pdf_extraction_issues;
DROP TABLE IF EXISTS budget_line_amounts;
DROP TABLE IF EXISTS fy_columns;
`

func seedReferenceData(ctx context.Context, tx *sql.Tx) error {
	for _, t := range exhibit.Types {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO exhibit_types (code, display_name, exhibit_class, description) VALUES (?, ?, ?, ?)",
			t.Code, t.DisplayName, t.Class, t.Description); err != nil {
			return fmt.Errorf("failed to seed exhibit type %s: %w", t.Code, err)
		}
	}
	for _, o := range exhibit.Organizations {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO services_agencies (code, full_name, category) VALUES (?, ?, ?)",
			o.Code, o.Name, o.Category); err != nil {
			return fmt.Errorf("failed to seed organization %s: %w", o.Code, err)
		}
	}
	for _, c := range exhibit.BudgetCycles {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO budget_cycles (code, label) VALUES (?, ?)",
			c.Code, c.Label); err != nil {
			return fmt.Errorf("failed to seed budget cycle %s: %w", c.Code, err)
		}
	}
	return nil
}

// CurrentVersion returns the highest applied migration version. A missing,
// empty or unreadable version table reads as 0.
func CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&v)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, nil
	}
	if !v.Valid || v.Int64 < 0 {
		return 0, nil
	}
	return int(v.Int64), nil
}

// Migrate applies every migration newer than CurrentVersion in ascending
// order and returns how many were applied. A failed migration is rolled back
// and leaves the version where it was.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, schemaVersionSQL); err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range AllMigrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
	}
	if m.Seed != nil {
		if err := m.Seed(ctx, tx); err != nil {
			return fmt.Errorf("failed to seed migration %d: %w", m.Version, err)
		}
	}
	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// Rollback reverts the most recent migration
func Rollback(ctx context.Context, db *sql.DB) (int, error) {
	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range AllMigrations {
		if AllMigrations[i].Version == current {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return 0, fmt.Errorf("migration %d not found", current)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return 0, fmt.Errorf("failed to rollback migration %d: %w", current, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", current); err != nil {
		return 0, fmt.Errorf("failed to remove migration record %d: %w", current, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return current, nil
}
