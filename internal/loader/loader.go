// Package loader writes parse results into the store.
//
// A Loader is the single writer during a build. Each source file is loaded
// in its own transaction that first deletes whatever the file produced
// before, so reloading is idempotent. Between BeginBulk and EndBulk the FTS
// sync triggers are dropped and the indexes are rebuilt once at the end.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/budgetdb/internal/logging"
	"github.com/dshills/budgetdb/internal/metrics"
	"github.com/dshills/budgetdb/internal/staging"
	"github.com/dshills/budgetdb/internal/storage"
	"github.com/dshills/budgetdb/pkg/types"
)

// FileStat is the change-detection identity recorded for a loaded file
type FileStat struct {
	Size    int64
	ModTime time.Time
}

// Summary describes a LoadStaged run
type Summary struct {
	Files      int
	Failed     int
	Rows       int
	Pages      int
	FYColumns  int // Catalog entries added
	FileErrors []types.FileError
	Duration   time.Duration
}

// Loader loads parse results into a store
type Loader struct {
	store   storage.Storage
	logger  *zap.Logger
	metrics *metrics.Metrics

	known map[string]bool // FY columns already in the catalog
	bulk  bool
}

// New creates a Loader. logger and m may be nil.
func New(store storage.Storage, logger *zap.Logger, m *metrics.Metrics) *Loader {
	return &Loader{
		store:   store,
		logger:  logging.OrNop(logger),
		metrics: m,
		known:   make(map[string]bool),
	}
}

// BeginBulk drops the FTS triggers. Every BeginBulk must be followed by
// EndBulk, even when loading fails.
func (l *Loader) BeginBulk(ctx context.Context) error {
	if err := l.store.DropFTSTriggers(ctx); err != nil {
		return err
	}
	l.bulk = true
	return nil
}

// EndBulk recreates the FTS triggers and rebuilds both indexes
func (l *Loader) EndBulk(ctx context.Context) error {
	if err := l.store.CreateFTSTriggers(ctx); err != nil {
		return err
	}
	if err := l.store.RebuildFTS(ctx); err != nil {
		return err
	}
	l.bulk = false
	return nil
}

// InBulk reports whether BeginBulk is in effect
func (l *Loader) InBulk() bool {
	return l.bulk
}

// EnsureColumns registers FY columns that the loader has not seen yet
func (l *Loader) EnsureColumns(ctx context.Context, cols []string) (int, error) {
	var missing []string
	for _, c := range cols {
		if !l.known[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	added, err := l.store.EnsureFYColumns(ctx, missing)
	if err != nil {
		return 0, err
	}
	for _, c := range missing {
		l.known[c] = true
	}
	return added, nil
}

// LoadResult replaces everything previously loaded from res.SourceFile with
// the contents of res and records the file as ingested. A failed parse is
// recorded with status error and no rows.
func (l *Loader) LoadResult(ctx context.Context, res *types.ParseResult, stat FileStat) error {
	start := time.Now()

	if !res.HasError() {
		if _, err := l.EnsureColumns(ctx, resultColumns(res)); err != nil {
			return fmt.Errorf("%s: %w", res.SourceFile, err)
		}
	}

	// No other store call may run until the transaction ends
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.DeleteSourceRows(ctx, res.SourceFile); err != nil {
		return err
	}

	record := &storage.IngestedFile{
		Path:      res.SourceFile,
		FileType:  res.Kind,
		SizeBytes: stat.Size,
		ModTime:   stat.ModTime,
		Status:    storage.StatusOK,
	}

	if res.HasError() {
		record.Status = storage.StatusError
		record.ErrorText = res.ErrorText()
	} else {
		if record.RowCount, err = tx.InsertBudgetLines(ctx, res.Lines); err != nil {
			return fmt.Errorf("%s: %w", res.SourceFile, err)
		}
		if record.PageCount, err = tx.InsertPdfPages(ctx, res.Pages); err != nil {
			return fmt.Errorf("%s: %w", res.SourceFile, err)
		}
		if err := tx.InsertExtractionIssues(ctx, res.Issues); err != nil {
			return fmt.Errorf("%s: %w", res.SourceFile, err)
		}
	}

	if err := tx.UpsertIngestedFile(ctx, record); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", res.SourceFile, err)
	}

	l.metrics.RecordLoad(record.RowCount, record.PageCount, time.Since(start))
	return nil
}

// LoadStaged loads every staged file under stagingRoot. The FY column
// catalog is widened once from the union of all sidecars before any rows
// are written. Files that cannot be read are reported and skipped.
func (l *Loader) LoadStaged(ctx context.Context, stagingRoot string, progress types.ProgressFunc) (summary *Summary, err error) {
	start := time.Now()

	reader, err := staging.NewReader(stagingRoot)
	if err != nil {
		return nil, err
	}
	sidecars, err := reader.ListSidecars()
	if err != nil {
		return nil, fmt.Errorf("failed to list staged files: %w", err)
	}

	summary = &Summary{}
	union := staging.FYColumnUnion(sidecars)
	if summary.FYColumns, err = l.EnsureColumns(ctx, union); err != nil {
		return nil, fmt.Errorf("failed to widen FY columns: %w", err)
	}

	if err := l.BeginBulk(ctx); err != nil {
		return nil, err
	}
	defer func() {
		progress.Report(types.PhaseIndex, 0, 0, "rebuilding full-text indexes")
		// Triggers come back even if the load was cancelled
		if endErr := l.EndBulk(context.WithoutCancel(ctx)); endErr != nil {
			err = errors.Join(err, endErr)
		}
		summary.Duration = time.Since(start)
	}()

	for i, sc := range sidecars {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		res, readErr := reader.ReadStaged(ctx, sc)
		if readErr == nil {
			readErr = l.LoadResult(ctx, res, FileStat{Size: sc.SizeBytes, ModTime: time.Unix(0, sc.ModTimeNanos)})
		}

		summary.Files++
		switch {
		case readErr != nil:
			summary.Failed++
			summary.FileErrors = append(summary.FileErrors, types.FileError{Path: sc.SourceFile, Err: readErr.Error()})
			l.logger.Warn("failed to load staged file", zap.String("file", sc.SourceFile), zap.Error(readErr))
		case res.HasError():
			summary.Failed++
			summary.FileErrors = append(summary.FileErrors, types.FileError{Path: sc.SourceFile, Err: res.ErrorText()})
		default:
			summary.Rows += res.RowCount()
			summary.Pages += res.PageCount()
		}
		progress.Report(types.PhaseLoad, i+1, len(sidecars), sc.SourceFile)
	}

	l.logger.Info("staged load finished",
		zap.Int("files", summary.Files),
		zap.Int("rows", summary.Rows),
		zap.Int("pages", summary.Pages),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// resultColumns returns the FY columns a result needs, sorted
func resultColumns(res *types.ParseResult) []string {
	seen := make(map[string]struct{}, len(res.FYColumns))
	for _, c := range res.FYColumns {
		seen[c] = struct{}{}
	}
	for i := range res.Lines {
		for c := range res.Lines[i].Amounts {
			seen[c] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
