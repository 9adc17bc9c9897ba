package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/budgetdb/internal/builder"
)

type buildFlags struct {
	rebuild            bool
	resume             bool
	workers            int
	checkpointInterval int
	staging            bool
	stagingDir         string
}

func newBuildCmd(a *app) *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Parse the documents tree and load it into the database",
		Long: `Build discovers every spreadsheet and PDF under the documents root, skips
files that are unchanged since they were last loaded, and loads the rest.

Interrupting a build (Ctrl-C) stops it after the file being loaded and saves
a checkpoint; run "budgetdb build --resume" to continue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd.Context(), cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.rebuild, "rebuild", false, "clear loaded data and reload every file")
	fl.BoolVar(&f.resume, "resume", false, "continue the last unfinished build session")
	fl.IntVar(&f.workers, "workers", 0, "concurrent parsers (default from config, 0 = CPUs)")
	fl.IntVar(&f.checkpointInterval, "checkpoint-interval", 0, "files between checkpoints (default from config)")
	fl.BoolVar(&f.staging, "staging", false, "parse through the Parquet staging directory")
	fl.StringVar(&f.stagingDir, "staging-dir", "", "staging directory (default from config)")
	return cmd
}

func (a *app) runBuild(ctx context.Context, cmd *cobra.Command, f buildFlags) error {
	opts := builder.Options{
		DocsRoot:           a.cfg.DocsDir,
		Rebuild:            f.rebuild,
		Resume:             f.resume,
		Workers:            a.cfg.Build.Workers,
		CheckpointInterval: a.cfg.Build.CheckpointInterval,
		UseStaging:         a.cfg.Staging.Enabled || f.staging,
		StagingDir:         a.cfg.StagingDir(),
		PDFTimeout:         a.cfg.Build.PDFTimeout,
		TableRectThreshold: a.cfg.Build.TableRectThreshold,
	}
	if cmd.Flags().Changed("workers") {
		opts.Workers = f.workers
	}
	if cmd.Flags().Changed("checkpoint-interval") {
		opts.CheckpointInterval = f.checkpointInterval
	}
	if f.stagingDir != "" {
		opts.StagingDir = f.stagingDir
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	a.serveMetrics(ctx)

	progress := newProgressReporter(a)
	opts.Progress = progress.Func()
	result, err := builder.New(store, a.logger, a.metrics).Build(ctx, opts)
	progress.Close()
	if result != nil {
		a.printBuildResult(result)
	}
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

func (a *app) printBuildResult(r *builder.Result) {
	w := a.out
	heading(w, "Build "+r.Outcome.String())
	field(w, "session", r.SessionID)
	field(w, "files", fmt.Sprintf("%d processed, %d unchanged, %d resumed, %d failed of %d",
		r.Processed, r.SkippedUnchanged, r.SkippedResumed, r.Failed, r.TotalFiles))
	field(w, "rows", humanize.Comma(int64(r.Rows)))
	field(w, "pages", humanize.Comma(int64(r.Pages)))
	field(w, "read", humanize.Bytes(uint64(r.Bytes)))
	field(w, "duration", r.Duration.Round(time.Millisecond))

	for _, fe := range r.Errors {
		warning(w, fe.String())
	}

	switch r.Outcome {
	case builder.Completed:
		success(w, fmt.Sprintf("database ready: %s rows, %s pages loaded this session",
			humanize.Comma(int64(r.Checkpoint.RowsInserted)), humanize.Comma(int64(r.Checkpoint.PagesProcessed))))
	case builder.Stopped:
		warning(w, "build stopped; run \"budgetdb build --resume\" to continue")
	case builder.Failed:
		failure(w, r.Reason)
	}
}
