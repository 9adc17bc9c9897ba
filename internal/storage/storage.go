package storage

import (
	"context"
	"time"

	"github.com/dshills/budgetdb/pkg/types"
)

// Storage defines the persistence operations used by the loader, builder and
// search layers
type Storage interface {
	// Schema operations
	Migrate(ctx context.Context) (int, error)
	EnsureFYColumns(ctx context.Context, names []string) (int, error)
	ListFYColumns(ctx context.Context) ([]FYColumn, error)
	DropFTSTriggers(ctx context.Context) error
	CreateFTSTriggers(ctx context.Context) error
	RebuildFTS(ctx context.Context) error

	// Ingested file tracking
	GetIngestedFile(ctx context.Context, path string) (*IngestedFile, error)
	ListIngestedFiles(ctx context.Context) ([]*IngestedFile, error)

	// Checkpoint operations
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	MarkFileProcessed(ctx context.Context, sessionID, path string, fileType types.FileKind, rows, pages int) error
	ProcessedFiles(ctx context.Context, sessionID string) (map[string]struct{}, error)
	LastCheckpoint(ctx context.Context) (*Checkpoint, error)
	GetCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error)
	MarkSessionComplete(ctx context.Context, sessionID, notes string) error

	// Data operations
	ClearData(ctx context.Context) error
	RegisterDataSource(ctx context.Context, ds *DataSource) error
	ListDataSources(ctx context.Context) ([]*DataSource, error)
	BudgetLines(ctx context.Context, sourceFile string) ([]types.BudgetLine, error)
	PdfPages(ctx context.Context, sourceFile string) ([]types.PdfPage, error)

	// Search operations
	SearchBudgetLines(ctx context.Context, query string, limit int, filters *SearchFilters) ([]types.SearchResult, error)
	SearchPdfPages(ctx context.Context, query string, limit int, filters *SearchFilters) ([]types.SearchResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (*Tx, error)
}

// Ingested file statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// IngestedFile is the change-detection record for one source document
type IngestedFile struct {
	Path       string // Relative to the documents root
	FileType   types.FileKind
	SizeBytes  int64
	ModTime    time.Time
	RowCount   int
	PageCount  int
	Status     string
	ErrorText  string
	IngestedAt time.Time
}

// Unchanged reports whether a file with the given size and mtime can be
// skipped. Files whose last attempt failed are never unchanged.
func (f *IngestedFile) Unchanged(size int64, modTime time.Time) bool {
	return f.Status == StatusOK && f.SizeBytes == size && f.ModTime.UnixNano() == modTime.UnixNano()
}

// Session statuses
const (
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
)

// Checkpoint is a snapshot of one build session
type Checkpoint struct {
	SessionID      string
	StartedAt      time.Time
	UpdatedAt      time.Time
	FilesProcessed int
	TotalFiles     int
	PagesProcessed int
	RowsInserted   int
	BytesProcessed int64
	LastFile       string
	Status         string
	Notes          string
}

// FYColumn is a catalogued fiscal year amount or quantity column
type FYColumn struct {
	Name       string
	Kind       string // "amount" or "quantity"
	FiscalYear int
	Phase      string
	AddedAt    time.Time
}

// DataSource is a registered <fiscal year>/<source label> directory
type DataSource struct {
	FiscalYear   string
	SourceLabel  string
	Path         string
	RegisteredAt time.Time
}

// SearchFilters narrows search results
type SearchFilters struct {
	FiscalYear   string
	ExhibitType  string
	Organization string
	SourceFile   string // Substring of the source path
}

// Status contains statistics about the store
type Status struct {
	SchemaVersion  int
	BudgetLines    int
	PdfPages       int
	IngestedFiles  int
	FailedFiles    int
	FYColumns      int
	DataSources    int
	ExtractIssues  int
	DatabaseSizeMB float64
	LastSession    *Checkpoint
	Health         HealthStatus
}

// HealthStatus reports the state of derived structures
type HealthStatus struct {
	DatabaseAccessible bool
	FTSTriggersPresent bool
}
