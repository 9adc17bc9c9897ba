package staging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/budgetdb/internal/logging"
	"github.com/dshills/budgetdb/internal/metrics"
	"github.com/dshills/budgetdb/internal/parser"
	"github.com/dshills/budgetdb/pkg/types"
)

// Options configures a Stager
type Options struct {
	DocsRoot    string
	StagingRoot string
	Workers     int  // Concurrent parsers (default: runtime.NumCPU())
	Force       bool // Restage every file regardless of its sidecar
	Parser      parser.Options
	Progress    types.ProgressFunc
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Summary is written to _staging_meta.json after StageAll
type Summary struct {
	FormatVersion string    `json:"format_version"`
	ParserVersion string    `json:"parser_version"`
	StagedAt      time.Time `json:"staged_at"`
	TotalFiles    int       `json:"total_files"`
	ExcelFiles    int       `json:"excel_files"`
	PDFFiles      int       `json:"pdf_files"`
	StagedFiles   int       `json:"staged_files"`
	SkippedFiles  int       `json:"skipped_files"`
	FailedFiles   int       `json:"failed_files"`
	TotalRows     int       `json:"total_rows"`
	TotalPages    int       `json:"total_pages"`
	FYColumns     []string  `json:"fy_columns"`
	Errors        []string  `json:"errors,omitempty"`

	FileErrors []types.FileError `json:"-"`
	Duration   time.Duration     `json:"-"`
}

// Stager parses documents into the staging directory
type Stager struct {
	opts   Options
	logger *zap.Logger
}

// New creates a Stager. Parser.DocsRoot defaults to DocsRoot.
func New(opts Options) *Stager {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Parser.DocsRoot == "" {
		opts.Parser.DocsRoot = opts.DocsRoot
	}
	return &Stager{opts: opts, logger: logging.OrNop(opts.Logger)}
}

// StageFile parses one source and writes its data file and sidecar. A parse
// failure is recorded in the sidecar and any stale data file is removed; the
// returned error covers only failures to write the staging files.
func (s *Stager) StageFile(ctx context.Context, src parser.Source) (*Sidecar, error) {
	info, err := os.Stat(src.Path)
	if err != nil {
		return nil, err
	}

	sidecarPath := SidecarPath(s.opts.StagingRoot, src.RelPath)
	dataPath := DataPath(s.opts.StagingRoot, src.RelPath)

	start := time.Now()
	s.opts.Metrics.WorkerStarted()
	res := parser.ParseFile(ctx, src.Path, s.opts.Parser)
	s.opts.Metrics.WorkerDone()
	s.opts.Metrics.RecordParse(string(src.Kind), time.Since(start), res.HasError())

	sc := &Sidecar{
		SourceFile:    res.SourceFile,
		FileType:      src.Kind,
		SizeBytes:     info.Size(),
		ModTimeNanos:  info.ModTime().UnixNano(),
		FormatVersion: FormatVersion,
		ParserVersion: parser.Version,
		ExhibitType:   res.ExhibitType,
		FiscalYear:    res.FiscalYear,
		StagedAt:      time.Now().UTC(),
	}
	if sum, err := fileSHA256(src.Path); err == nil {
		sc.SHA256 = sum
	}

	if res.HasError() {
		sc.Error = res.ErrorText()
		if err := os.Remove(dataPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale data file: %w", err)
		}
		return sc, writeSidecar(sidecarPath, sc)
	}

	sc.RowCount = res.RowCount()
	sc.PageCount = res.PageCount()
	sc.FYColumns = resultFYColumns(res)
	for _, is := range res.Issues {
		sc.Issues = append(sc.Issues, SidecarIssue{PageNumber: is.PageNumber, IssueType: is.IssueType, Detail: is.Detail})
		s.opts.Metrics.RecordIssue(is.IssueType)
	}

	switch {
	case len(res.Lines) > 0:
		err = writeLines(dataPath, res.Lines, sc.FYColumns)
	case len(res.Pages) > 0:
		err = writePages(dataPath, res.Pages)
	default:
		err = os.Remove(dataPath)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}
	if sc.RowCount > 0 || sc.PageCount > 0 {
		sc.DataFile = filepath.Base(dataPath)
	}

	return sc, writeSidecar(sidecarPath, sc)
}

// StageAll stages every supported document under DocsRoot. Per-file failures
// are collected in the summary and do not stop the batch. Cancelling ctx stops
// new files from starting; files already running finish.
func (s *Stager) StageAll(ctx context.Context) (*Summary, error) {
	start := time.Now()
	if err := os.MkdirAll(s.opts.StagingRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	s.opts.Progress.Report(types.PhaseScan, 0, 0, s.opts.DocsRoot)
	sources, err := parser.Discover(s.opts.DocsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	parts := parser.Partition(sources)
	s.opts.Progress.Report(types.PhaseScan, len(sources), len(sources),
		fmt.Sprintf("%d spreadsheets, %d PDFs", len(parts[types.KindExcel]), len(parts[types.KindPDF])))

	summary := &Summary{
		FormatVersion: FormatVersion,
		ParserVersion: parser.Version,
		TotalFiles:    len(sources),
		ExcelFiles:    len(parts[types.KindExcel]),
		PDFFiles:      len(parts[types.KindPDF]),
	}

	var (
		mu      sync.Mutex
		current int
	)
	record := func(src parser.Source, sc *Sidecar, skipped bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		current++
		switch {
		case err != nil:
			summary.FailedFiles++
			summary.FileErrors = append(summary.FileErrors, types.FileError{Path: src.RelPath, Err: err.Error()})
			s.logger.Warn("failed to stage file", zap.String("file", src.RelPath), zap.Error(err))
		case skipped:
			summary.SkippedFiles++
			s.opts.Metrics.RecordSkip("staged")
		case sc.Error != "":
			summary.FailedFiles++
			summary.FileErrors = append(summary.FileErrors, types.FileError{Path: src.RelPath, Err: sc.Error})
			s.logger.Warn("failed to parse file", zap.String("file", src.RelPath), zap.String("error", sc.Error))
		default:
			summary.StagedFiles++
			summary.TotalRows += sc.RowCount
			summary.TotalPages += sc.PageCount
		}
		s.opts.Progress.Report(types.PhaseFor(src.Kind), current, len(sources),
			fmt.Sprintf("%s (%s)", src.RelPath, humanize.Bytes(uint64(src.Size))))
	}

	for _, kind := range []types.FileKind{types.KindExcel, types.KindPDF} {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Workers)

		for _, src := range parts[kind] {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if !s.opts.Force && !NeedsRestaging(src.Path, s.opts.StagingRoot, s.opts.DocsRoot, src.Kind) {
					record(src, nil, true, nil)
					return nil
				}
				sc, err := s.StageFile(gctx, src)
				record(src, sc, false, err)
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.Slice(summary.FileErrors, func(i, j int) bool {
		return summary.FileErrors[i].Path < summary.FileErrors[j].Path
	})
	for _, fe := range summary.FileErrors {
		summary.Errors = append(summary.Errors, fe.String())
	}

	reader := &Reader{root: s.opts.StagingRoot}
	sidecars, err := reader.ListSidecars()
	if err != nil {
		return summary, err
	}
	summary.FYColumns = FYColumnUnion(sidecars)
	summary.StagedAt = time.Now().UTC()
	summary.Duration = time.Since(start)

	if err := writeJSONAtomic(MetaPath(s.opts.StagingRoot), summary); err != nil {
		return summary, fmt.Errorf("failed to write staging metadata: %w", err)
	}

	s.logger.Info("staging finished",
		zap.Int("files", summary.TotalFiles),
		zap.Int("staged", summary.StagedFiles),
		zap.Int("skipped", summary.SkippedFiles),
		zap.Int("failed", summary.FailedFiles),
		zap.Duration("duration", summary.Duration))

	return summary, ctx.Err()
}

// MetaPath returns the location of the staging summary file
func MetaPath(stagingRoot string) string {
	return filepath.Join(stagingRoot, metaFileName)
}

// resultFYColumns returns the sorted set of FY columns found in the file
// headers plus any used by a line. Columns with no values are kept.
func resultFYColumns(res *types.ParseResult) []string {
	seen := make(map[string]struct{}, len(res.FYColumns))
	for _, col := range res.FYColumns {
		seen[col] = struct{}{}
	}
	for i := range res.Lines {
		for col := range res.Lines[i].Amounts {
			seen[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
