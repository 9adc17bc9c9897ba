package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/budgetdb/internal/loader"
)

func newLoadCmd(a *app) *cobra.Command {
	var stagingDir string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load previously staged files into the database",
		Long: `Load reads every sidecar in the staging directory and loads its Parquet data
into the database. It fails when the staging directory does not exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if stagingDir == "" {
				stagingDir = a.cfg.StagingDir()
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			progress := newProgressReporter(a)
			summary, err := loader.New(store, a.logger, a.metrics).LoadStaged(ctx, stagingDir, progress.Func())
			progress.Close()
			if err != nil {
				return fmt.Errorf("load failed: %w", err)
			}

			w := a.out
			heading(w, "Load summary")
			field(w, "files", fmt.Sprintf("%d loaded, %d recorded as failed", summary.Files, summary.Failed))
			field(w, "rows", humanize.Comma(int64(summary.Rows)))
			field(w, "pages", humanize.Comma(int64(summary.Pages)))
			field(w, "new fy columns", summary.FYColumns)
			field(w, "duration", summary.Duration.Round(time.Millisecond))
			for _, fe := range summary.FileErrors {
				warning(w, fe.String())
			}
			success(w, "loaded from "+stagingDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&stagingDir, "staging-dir", "", "staging directory (default from config)")
	return cmd
}
