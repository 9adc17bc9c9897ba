// Package storage provides SQLite persistence for parsed budget exhibits.
//
// The storage layer manages:
//   - Budget lines and their fiscal year amounts
//   - PDF pages and page level extraction issues
//   - Ingested file records used for change detection
//   - Build checkpoints (build_progress, processed_files)
//   - Reference tables (exhibit types, organizations, budget cycles)
//   - FTS5 full-text indexes over titles and page text
//
// # Schema Migrations
//
// The schema is built by an integer migration ladder recorded in
// schema_version. Each migration runs in one transaction together with its
// reference seeds and its version row, so a failure leaves the version
// unchanged:
//
//	applied, err := storage.Migrate(ctx, db) // 4 on a new file
//	applied, err = storage.Migrate(ctx, db)  // 0
//
// # Fiscal Year Columns
//
// The set of amount_fy<year>_<phase> and quantity_fy<year>_<phase> columns
// grows as new budget years appear. budget_lines is never altered; values
// live in budget_line_amounts keyed by (line, column) and the fy_columns
// catalog drives the budget_lines_wide view, which exposes one real column
// per catalogued name and is recreated whenever the catalog grows:
//
//	added, err := s.EnsureFYColumns(ctx, []string{"amount_fy2026_request"})
//
//	SELECT line_item_title, amount_fy2026_request FROM budget_lines_wide;
//
// # Bulk Loading
//
// Each source file is written in one transaction:
//
//	tx, err := s.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	tx.DeleteSourceRows(ctx, res.SourceFile)
//	tx.InsertBudgetLines(ctx, res.Lines)
//	tx.UpsertIngestedFile(ctx, record)
//
//	return tx.Commit()
//
// For large loads the FTS sync triggers are dropped first and the indexes
// rebuilt once at the end with DropFTSTriggers, CreateFTSTriggers and
// RebuildFTS.
//
// # Drivers
//
// modernc.org/sqlite is used by default. Build with
// -tags "sqlite_cgo,fts5" to use github.com/mattn/go-sqlite3 instead.
package storage
