package storage

import (
	"context"
	"fmt"
	"strings"
)

// ftsTriggersSQL keeps the external-content FTS5 tables in sync with their
// base tables. Deletes use the FTS5 'delete' command with the old values.
const ftsTriggersSQL = `
CREATE TRIGGER IF NOT EXISTS budget_lines_ai AFTER INSERT ON budget_lines BEGIN
    INSERT INTO budget_lines_fts(rowid, account_title, budget_activity_title, sub_activity_title, line_item_title, organization, pe_number)
    VALUES (new.id, new.account_title, new.budget_activity_title, new.sub_activity_title, new.line_item_title, new.organization, new.pe_number);
END;

CREATE TRIGGER IF NOT EXISTS budget_lines_ad AFTER DELETE ON budget_lines BEGIN
    INSERT INTO budget_lines_fts(budget_lines_fts, rowid, account_title, budget_activity_title, sub_activity_title, line_item_title, organization, pe_number)
    VALUES ('delete', old.id, old.account_title, old.budget_activity_title, old.sub_activity_title, old.line_item_title, old.organization, old.pe_number);
END;

CREATE TRIGGER IF NOT EXISTS budget_lines_au AFTER UPDATE ON budget_lines BEGIN
    INSERT INTO budget_lines_fts(budget_lines_fts, rowid, account_title, budget_activity_title, sub_activity_title, line_item_title, organization, pe_number)
    VALUES ('delete', old.id, old.account_title, old.budget_activity_title, old.sub_activity_title, old.line_item_title, old.organization, old.pe_number);
    INSERT INTO budget_lines_fts(rowid, account_title, budget_activity_title, sub_activity_title, line_item_title, organization, pe_number)
    VALUES (new.id, new.account_title, new.budget_activity_title, new.sub_activity_title, new.line_item_title, new.organization, new.pe_number);
END;

CREATE TRIGGER IF NOT EXISTS pdf_pages_ai AFTER INSERT ON pdf_pages BEGIN
    INSERT INTO pdf_pages_fts(rowid, page_text) VALUES (new.id, new.page_text);
END;

CREATE TRIGGER IF NOT EXISTS pdf_pages_ad AFTER DELETE ON pdf_pages BEGIN
    INSERT INTO pdf_pages_fts(pdf_pages_fts, rowid, page_text) VALUES ('delete', old.id, old.page_text);
END;

CREATE TRIGGER IF NOT EXISTS pdf_pages_au AFTER UPDATE ON pdf_pages BEGIN
    INSERT INTO pdf_pages_fts(pdf_pages_fts, rowid, page_text) VALUES ('delete', old.id, old.page_text);
    INSERT INTO pdf_pages_fts(rowid, page_text) VALUES (new.id, new.page_text);
END;
`

var ftsTriggerNames = []string{
	"budget_lines_ai", "budget_lines_ad", "budget_lines_au",
	"pdf_pages_ai", "pdf_pages_ad", "pdf_pages_au",
}

var ftsTables = []string{"budget_lines_fts", "pdf_pages_fts"}

// DropFTSTriggers removes the sync triggers before a bulk load. The FTS
// index goes stale until RebuildFTS runs.
func (s *SQLiteStorage) DropFTSTriggers(ctx context.Context) error {
	for _, name := range ftsTriggerNames {
		if _, err := s.db.ExecContext(ctx, "DROP TRIGGER IF EXISTS "+name); err != nil {
			return fmt.Errorf("failed to drop trigger %s: %w", name, err)
		}
	}
	return nil
}

// CreateFTSTriggers recreates the sync triggers
func (s *SQLiteStorage) CreateFTSTriggers(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ftsTriggersSQL); err != nil {
		return fmt.Errorf("failed to create FTS triggers: %w", err)
	}
	return nil
}

// RebuildFTS regenerates both full-text indexes from their content tables
func (s *SQLiteStorage) RebuildFTS(ctx context.Context) error {
	for _, table := range ftsTables {
		stmt := fmt.Sprintf("INSERT INTO %s(%s) VALUES('rebuild')", table, table)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to rebuild %s: %w", table, err)
		}
	}
	return nil
}

// FTSTriggersPresent reports whether every sync trigger exists
func (s *SQLiteStorage) FTSTriggersPresent(ctx context.Context) (bool, error) {
	var n int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name IN (" +
		placeholders(len(ftsTriggerNames)) + ")"
	args := make([]interface{}, len(ftsTriggerNames))
	for i, name := range ftsTriggerNames {
		args[i] = name
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n == len(ftsTriggerNames), nil
}

// sanitizeFTSQuery turns free text into an FTS5 query of quoted terms that
// must all match. Operators and column filters in the input are treated as
// plain words.
func sanitizeFTSQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '"'
	})
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
