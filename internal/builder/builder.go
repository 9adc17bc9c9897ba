package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/dshills/budgetdb/internal/exhibit"
	"github.com/dshills/budgetdb/internal/loader"
	"github.com/dshills/budgetdb/internal/logging"
	"github.com/dshills/budgetdb/internal/metrics"
	"github.com/dshills/budgetdb/internal/parser"
	"github.com/dshills/budgetdb/internal/staging"
	"github.com/dshills/budgetdb/internal/storage"
	"github.com/dshills/budgetdb/pkg/types"
)

// DefaultCheckpointInterval is how many files are loaded between checkpoints
const DefaultCheckpointInterval = 20

// ErrBuildInProgress is returned when Build is called while another build on
// the same Builder is running
var ErrBuildInProgress = errors.New("build already in progress")

// Outcome is how a build ended
type Outcome int

const (
	Completed Outcome = iota
	Stopped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Options configures a build
type Options struct {
	DocsRoot           string
	Rebuild            bool // Clear loaded data first; implies a fresh session
	Resume             bool // Continue the last in_progress session if there is one
	Workers            int  // Concurrent parsers (default: runtime.NumCPU())
	CheckpointInterval int  // Files between checkpoints (default: 20)

	UseStaging bool
	StagingDir string // Default: "staging" next to DocsRoot

	PDFTimeout         time.Duration // Per-page table extraction limit
	TableRectThreshold int

	Progress types.ProgressFunc
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}
	if o.UseStaging && o.StagingDir == "" {
		o.StagingDir = filepath.Join(filepath.Dir(filepath.Clean(o.DocsRoot)), "staging")
	}
	if o.Rebuild {
		o.Resume = false
	}
	return o
}

// Result summarizes one Build call. Counts cover this invocation; Checkpoint
// holds the session totals, which include files loaded before a resume.
type Result struct {
	Outcome   Outcome
	Reason    string // Set when Outcome is Failed
	SessionID string
	Resumed   bool

	TotalFiles       int
	Processed        int
	SkippedResumed   int
	SkippedUnchanged int
	Failed           int
	Rows             int
	Pages            int
	Bytes            int64
	DataSources      int

	Errors     []types.FileError
	Checkpoint *storage.Checkpoint
	Duration   time.Duration
}

// Builder coordinates builds against one store
type Builder struct {
	store   storage.Storage
	logger  *zap.Logger
	metrics *metrics.Metrics
	lock    BuildLock
}

// New creates a Builder. logger and m may be nil.
func New(store storage.Storage, logger *zap.Logger, m *metrics.Metrics) *Builder {
	return &Builder{
		store:   store,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
}

// Running reports whether a build is in progress
func (b *Builder) Running() bool {
	return b.lock.Held()
}

// Build runs one build. A cancelled ctx stops the build between files and
// returns Outcome Stopped with a nil error. Setup and store failures return
// Outcome Failed together with the error; per-file parse failures do neither
// and are listed in Result.Errors.
func (b *Builder) Build(ctx context.Context, opts Options) (*Result, error) {
	if !b.lock.TryAcquire() {
		return nil, ErrBuildInProgress
	}
	defer b.lock.Release()

	opts = opts.withDefaults()
	r := &run{
		Builder: b,
		opts:    opts,
		parserOpts: parser.Options{
			DocsRoot:           opts.DocsRoot,
			TableRectThreshold: opts.TableRectThreshold,
			TableTimeout:       opts.PDFTimeout,
		},
		loader: loader.New(b.store, b.logger, b.metrics),
		result: &Result{},
		start:  time.Now(),
	}
	return r.execute(ctx)
}

// run holds the state of one Build call
type run struct {
	*Builder
	opts       Options
	parserOpts parser.Options
	loader     *loader.Loader
	stager     *staging.Stager
	reader     *staging.Reader

	cp              *storage.Checkpoint
	processed       map[string]struct{}
	result          *Result
	current         int
	sinceCheckpoint int
	start           time.Time
}

func (r *run) progress(phase string, current, total int, detail string) {
	r.opts.Progress.Report(phase, current, total, detail)
}

// execute runs one build. Store calls use a context that outlives
// cancellation; ctx is only consulted as the stop signal.
func (r *run) execute(ctx context.Context) (*Result, error) {
	work := context.WithoutCancel(ctx)
	if _, err := r.store.Migrate(work); err != nil {
		return r.fail(ctx, fmt.Errorf("failed to migrate: %w", err))
	}
	if r.opts.Rebuild {
		if err := r.store.ClearData(work); err != nil {
			return r.fail(ctx, fmt.Errorf("failed to clear data: %w", err))
		}
	}
	if err := r.startSession(work); err != nil {
		return r.fail(ctx, err)
	}

	r.progress(types.PhaseScan, 0, 0, r.opts.DocsRoot)
	sources, err := parser.Discover(r.opts.DocsRoot)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("failed to discover files: %w", err))
	}
	parts := parser.Partition(sources)
	r.result.TotalFiles = len(sources)
	r.cp.TotalFiles = len(sources)
	r.progress(types.PhaseScan, len(sources), len(sources),
		fmt.Sprintf("%d spreadsheets, %d PDFs", len(parts[types.KindExcel]), len(parts[types.KindPDF])))

	if err := r.registerDataSources(work); err != nil {
		r.logger.Warn("failed to register data sources", zap.Error(err))
	}

	todo, err := r.filter(ctx, sources)
	if err != nil {
		return r.fail(ctx, err)
	}
	if ctx.Err() != nil {
		return r.stop(ctx)
	}
	if err := r.store.SaveCheckpoint(work, r.cp); err != nil {
		return r.fail(ctx, err)
	}
	if r.opts.UseStaging {
		if err := r.prepareStaging(work); err != nil {
			return r.fail(ctx, err)
		}
	}
	if ctx.Err() != nil {
		return r.stop(ctx)
	}

	if err := r.loader.BeginBulk(work); err != nil {
		return r.fail(ctx, err)
	}
	stopped, loadErr := r.process(ctx, todo)

	r.progress(types.PhaseIndex, r.current, r.result.TotalFiles, "rebuilding full-text indexes")
	endErr := r.loader.EndBulk(work)
	if err := errors.Join(loadErr, endErr); err != nil {
		return r.fail(ctx, err)
	}

	if stopped {
		return r.stop(ctx)
	}
	return r.complete(work)
}

// startSession picks up the last in_progress session when resuming, or
// starts a new one. A resume with nothing to resume starts fresh.
func (r *run) startSession(ctx context.Context) error {
	if r.opts.Resume {
		cp, err := r.store.LastCheckpoint(ctx)
		if err != nil {
			return err
		}
		if cp != nil {
			processed, err := r.store.ProcessedFiles(ctx, cp.SessionID)
			if err != nil {
				return err
			}
			r.cp = cp
			r.processed = processed
			r.result.Resumed = true
			r.logger.Info("resuming build session",
				zap.String("session", cp.SessionID),
				zap.Int("files_done", len(processed)))
		}
	}
	if r.cp == nil {
		r.cp = &storage.Checkpoint{SessionID: storage.NewSessionID()}
		r.processed = make(map[string]struct{})
	}
	r.cp.Status = storage.SessionInProgress
	r.result.SessionID = r.cp.SessionID
	return nil
}

// registerDataSources records every <FY####>/<label> directory under the
// docs root. Other top level directories are ignored.
func (r *run) registerDataSources(ctx context.Context) error {
	years, err := os.ReadDir(r.opts.DocsRoot)
	if err != nil {
		return err
	}
	for _, year := range years {
		if !year.IsDir() || !exhibit.IsFiscalYearDir(year.Name()) {
			continue
		}
		fy, ok := exhibit.FiscalYear(year.Name())
		if !ok {
			continue
		}
		labels, err := os.ReadDir(filepath.Join(r.opts.DocsRoot, year.Name()))
		if err != nil {
			return err
		}
		for _, label := range labels {
			if !label.IsDir() || strings.HasPrefix(label.Name(), ".") {
				continue
			}
			ds := &storage.DataSource{
				FiscalYear:  fy,
				SourceLabel: label.Name(),
				Path:        year.Name() + "/" + label.Name(),
			}
			if err := r.store.RegisterDataSource(ctx, ds); err != nil {
				return err
			}
			r.result.DataSources++
		}
	}
	return nil
}

// filter drops files finished earlier in a resumed session and files whose
// size and mtime match their ingested record. It returns early once ctx is
// cancelled.
func (r *run) filter(ctx context.Context, sources []parser.Source) ([]parser.Source, error) {
	total := len(sources)
	todo := make([]parser.Source, 0, total)
	work := context.WithoutCancel(ctx)

	for _, src := range sources {
		if ctx.Err() != nil {
			return todo, nil
		}
		if _, done := r.processed[src.RelPath]; done {
			r.result.SkippedResumed++
			r.current++
			r.metrics.RecordSkip("resumed")
			r.progress(types.PhaseFor(src.Kind), r.current, total, "resumed: "+src.RelPath)
			continue
		}

		f, err := r.store.GetIngestedFile(work, src.RelPath)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to read ingest record for %s: %w", src.RelPath, err)
		}
		if err == nil && f.Unchanged(src.Size, time.Unix(0, src.ModTime)) {
			r.result.SkippedUnchanged++
			r.current++
			r.metrics.RecordSkip("unchanged")
			r.progress(types.PhaseFor(src.Kind), r.current, total, "unchanged: "+src.RelPath)
			continue
		}

		todo = append(todo, src)
	}
	return todo, nil
}

func (r *run) prepareStaging(ctx context.Context) error {
	if err := os.MkdirAll(r.opts.StagingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	reader, err := staging.NewReader(r.opts.StagingDir)
	if err != nil {
		return err
	}
	r.reader = reader
	r.stager = staging.New(staging.Options{
		DocsRoot:    r.opts.DocsRoot,
		StagingRoot: r.opts.StagingDir,
		Workers:     r.opts.Workers,
		Parser:      r.parserOpts,
		Logger:      r.logger,
		Metrics:     r.metrics,
	})

	// Widen the catalog once for everything already staged
	sidecars, err := reader.ListSidecars()
	if err != nil {
		return err
	}
	if _, err := r.loader.EnsureColumns(ctx, staging.FYColumnUnion(sidecars)); err != nil {
		return fmt.Errorf("failed to widen FY columns: %w", err)
	}
	return nil
}

// load writes one parse result and records it under the session. It runs to
// completion even if ctx is cancelled meanwhile.
func (r *run) load(ctx context.Context, src parser.Source, res *types.ParseResult) error {
	ctx = context.WithoutCancel(ctx)
	stat := loader.FileStat{Size: src.Size, ModTime: time.Unix(0, src.ModTime)}

	if err := r.loader.LoadResult(ctx, res, stat); err != nil {
		return fmt.Errorf("failed to load %s: %w", src.RelPath, err)
	}
	if err := r.store.MarkFileProcessed(ctx, r.cp.SessionID, src.RelPath, src.Kind, res.RowCount(), res.PageCount()); err != nil {
		return err
	}

	r.result.Processed++
	r.result.Rows += res.RowCount()
	r.result.Pages += res.PageCount()
	r.result.Bytes += src.Size
	if res.HasError() {
		r.result.Failed++
		r.result.Errors = append(r.result.Errors, types.FileError{Path: src.RelPath, Err: res.ErrorText()})
		r.logger.Warn("failed to parse file", zap.String("file", src.RelPath), zap.String("error", res.ErrorText()))
	}

	r.cp.FilesProcessed++
	r.cp.RowsInserted += res.RowCount()
	r.cp.PagesProcessed += res.PageCount()
	r.cp.BytesProcessed += src.Size
	r.cp.LastFile = src.RelPath

	r.current++
	r.progress(types.PhaseFor(src.Kind), r.current, r.result.TotalFiles,
		fmt.Sprintf("%s (%s)", src.RelPath, humanize.Bytes(uint64(src.Size))))

	r.sinceCheckpoint++
	if r.sinceCheckpoint >= r.opts.CheckpointInterval {
		r.sinceCheckpoint = 0
		if err := r.store.SaveCheckpoint(ctx, r.cp); err != nil {
			return err
		}
	}
	return nil
}

// fail records what was done so far and returns a Failed result
func (r *run) fail(ctx context.Context, err error) (*Result, error) {
	if r.cp != nil {
		r.cp.Notes = "failed: " + err.Error()
		if cpErr := r.store.SaveCheckpoint(context.WithoutCancel(ctx), r.cp); cpErr != nil {
			r.logger.Error("failed to save checkpoint", zap.Error(cpErr))
		}
	}
	r.result.Outcome = Failed
	r.result.Reason = err.Error()
	r.result.Checkpoint = r.cp
	r.result.Duration = time.Since(r.start)
	r.logger.Error("build failed", zap.Error(err))
	return r.result, err
}

// stop saves a final checkpoint and leaves the session resumable
func (r *run) stop(ctx context.Context) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	r.cp.Notes = "stopped"
	if err := r.store.SaveCheckpoint(ctx, r.cp); err != nil {
		return r.fail(ctx, err)
	}

	r.result.Outcome = Stopped
	r.result.Checkpoint = r.cp
	r.result.Duration = time.Since(r.start)
	r.progress(types.PhaseStopped, r.current, r.result.TotalFiles,
		fmt.Sprintf("stopped after %d of %d files; resume to continue session %s",
			r.cp.FilesProcessed, r.result.TotalFiles, r.cp.SessionID))
	r.logger.Info("build stopped",
		zap.String("session", r.cp.SessionID),
		zap.Int("files", r.result.Processed))
	return r.result, nil
}

func (r *run) complete(ctx context.Context) (*Result, error) {
	if err := r.store.SaveCheckpoint(ctx, r.cp); err != nil {
		return r.fail(ctx, err)
	}
	notes := fmt.Sprintf("%d files, %d rows, %d pages", r.cp.FilesProcessed, r.cp.RowsInserted, r.cp.PagesProcessed)
	if err := r.store.MarkSessionComplete(ctx, r.cp.SessionID, notes); err != nil {
		return r.fail(ctx, err)
	}
	r.cp.Status = storage.SessionCompleted
	r.cp.Notes = notes

	r.result.Outcome = Completed
	r.result.Checkpoint = r.cp
	r.result.Duration = time.Since(r.start)
	r.progress(types.PhaseDone, r.result.TotalFiles, r.result.TotalFiles,
		fmt.Sprintf("%d rows, %d pages in %s", r.result.Rows, r.result.Pages, r.result.Duration.Round(time.Millisecond)))
	r.logger.Info("build completed",
		zap.String("session", r.cp.SessionID),
		zap.Int("processed", r.result.Processed),
		zap.Int("unchanged", r.result.SkippedUnchanged),
		zap.Int("resumed", r.result.SkippedResumed),
		zap.Int("failed", r.result.Failed),
		zap.Int("rows", r.result.Rows),
		zap.Int("pages", r.result.Pages),
		zap.Duration("duration", r.result.Duration))
	return r.result, nil
}
