package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/budgetdb/internal/parser"
	"github.com/dshills/budgetdb/internal/staging"
)

func newStageCmd(a *app) *cobra.Command {
	var (
		workers    int
		force      bool
		stagingDir string
	)

	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Parse documents into Parquet files and JSON sidecars",
		Long: `Stage parses every document under the documents root into the staging
directory without touching the database. Files whose sidecar still matches
the source are skipped unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if stagingDir == "" {
				stagingDir = a.cfg.StagingDir()
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Build.Workers
			}
			a.serveMetrics(ctx)

			progress := newProgressReporter(a)
			stager := staging.New(staging.Options{
				DocsRoot:    a.cfg.DocsDir,
				StagingRoot: stagingDir,
				Workers:     workers,
				Force:       force,
				Parser: parser.Options{
					DocsRoot:           a.cfg.DocsDir,
					TableRectThreshold: a.cfg.Build.TableRectThreshold,
					TableTimeout:       a.cfg.Build.PDFTimeout,
				},
				Progress: progress.Func(),
				Logger:   a.logger,
				Metrics:  a.metrics,
			})
			summary, err := stager.StageAll(ctx)
			progress.Close()
			if summary != nil {
				a.printStageSummary(stagingDir, summary)
			}
			if err != nil {
				return fmt.Errorf("staging failed: %w", err)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&workers, "workers", 0, "concurrent parsers (default from config, 0 = CPUs)")
	fl.BoolVar(&force, "force", false, "restage every file")
	fl.StringVar(&stagingDir, "staging-dir", "", "staging directory (default from config)")
	return cmd
}

func (a *app) printStageSummary(dir string, s *staging.Summary) {
	w := a.out
	heading(w, "Staging summary")
	field(w, "directory", dir)
	field(w, "files", fmt.Sprintf("%d staged, %d skipped, %d failed of %d (%d spreadsheets, %d PDFs)",
		s.StagedFiles, s.SkippedFiles, s.FailedFiles, s.TotalFiles, s.ExcelFiles, s.PDFFiles))
	field(w, "rows", humanize.Comma(int64(s.TotalRows)))
	field(w, "pages", humanize.Comma(int64(s.TotalPages)))
	field(w, "fy columns", len(s.FYColumns))
	field(w, "duration", s.Duration.Round(time.Millisecond))
	for _, fe := range s.FileErrors {
		warning(w, fe.String())
	}
	success(w, "staged to "+dir)
}
