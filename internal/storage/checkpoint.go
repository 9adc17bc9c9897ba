package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/budgetdb/pkg/types"
)

// NewSessionID returns a time-ordered UUIDv7. IDs generated within the same
// millisecond still sort in creation order.
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SaveCheckpoint upserts the session row. StartedAt is kept from the first
// save; Status defaults to in_progress.
func (s *SQLiteStorage) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp.SessionID == "" {
		return fmt.Errorf("checkpoint without session id")
	}
	now := time.Now().UTC()
	if cp.StartedAt.IsZero() {
		cp.StartedAt = now
	}
	if cp.Status == "" {
		cp.Status = SessionInProgress
	}
	cp.UpdatedAt = now

	query := `
		INSERT INTO build_progress (session_id, started_at, updated_at, files_processed, total_files,
			pages_processed, rows_inserted, bytes_processed, last_file, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			files_processed = excluded.files_processed,
			total_files = excluded.total_files,
			pages_processed = excluded.pages_processed,
			rows_inserted = excluded.rows_inserted,
			bytes_processed = excluded.bytes_processed,
			last_file = excluded.last_file,
			status = excluded.status,
			notes = excluded.notes
	`
	_, err := s.db.ExecContext(ctx, query,
		cp.SessionID, cp.StartedAt, cp.UpdatedAt, cp.FilesProcessed, cp.TotalFiles,
		cp.PagesProcessed, cp.RowsInserted, cp.BytesProcessed, nullString(cp.LastFile),
		cp.Status, nullString(cp.Notes))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// MarkFileProcessed records a file under a session. Repeated calls for the
// same pair overwrite the counts.
func (s *SQLiteStorage) MarkFileProcessed(ctx context.Context, sessionID, path string, fileType types.FileKind, rows, pages int) error {
	query := `
		INSERT INTO processed_files (session_id, file_path, file_type, rows_count, pages_count, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, file_path) DO UPDATE SET
			file_type = excluded.file_type,
			rows_count = excluded.rows_count,
			pages_count = excluded.pages_count,
			processed_at = excluded.processed_at
	`
	_, err := s.db.ExecContext(ctx, query, sessionID, path, string(fileType), rows, pages, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark file processed: %w", err)
	}
	return nil
}

// ProcessedFiles returns the set of files recorded under a session
func (s *SQLiteStorage) ProcessedFiles(ctx context.Context, sessionID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_path FROM processed_files WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		files[path] = struct{}{}
	}
	return files, rows.Err()
}

const checkpointColumns = `session_id, started_at, updated_at, files_processed, total_files,
	pages_processed, rows_inserted, bytes_processed, last_file, status, notes`

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	var (
		cp       Checkpoint
		lastFile sql.NullString
		notes    sql.NullString
	)
	err := row.Scan(&cp.SessionID, &cp.StartedAt, &cp.UpdatedAt, &cp.FilesProcessed, &cp.TotalFiles,
		&cp.PagesProcessed, &cp.RowsInserted, &cp.BytesProcessed, &lastFile, &cp.Status, &notes)
	if err != nil {
		return nil, err
	}
	cp.LastFile = lastFile.String
	cp.Notes = notes.String
	return &cp, nil
}

// LastCheckpoint returns the newest session that is not completed, or nil
// when there is none. Session ids are UUIDv7 so they order by start time.
func (s *SQLiteStorage) LastCheckpoint(ctx context.Context) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+checkpointColumns+" FROM build_progress WHERE status != ? ORDER BY session_id DESC LIMIT 1",
		SessionCompleted)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last checkpoint: %w", err)
	}
	return cp, nil
}

// GetCheckpoint returns one session by id
func (s *SQLiteStorage) GetCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+checkpointColumns+" FROM build_progress WHERE session_id = ?", sessionID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// latestSession returns the newest session regardless of status
func (s *SQLiteStorage) latestSession(ctx context.Context) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+checkpointColumns+" FROM build_progress ORDER BY session_id DESC LIMIT 1")
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

// MarkSessionComplete flips a session to completed. LastCheckpoint never
// returns it afterwards.
func (s *SQLiteStorage) MarkSessionComplete(ctx context.Context, sessionID, notes string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE build_progress SET status = ?, notes = ?, updated_at = ? WHERE session_id = ?",
		SessionCompleted, nullString(notes), time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
