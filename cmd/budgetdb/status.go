package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database statistics and the last build session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			status, err := store.GetStatus(ctx)
			if err != nil {
				return err
			}
			columns, err := store.ListFYColumns(ctx)
			if err != nil {
				return err
			}
			sources, err := store.ListDataSources(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"status":       status,
					"fy_columns":   columns,
					"data_sources": sources,
				})
			}

			w := a.out
			heading(w, "Database "+a.cfg.DBPath)
			field(w, "schema version", status.SchemaVersion)
			field(w, "size", fmt.Sprintf("%.2f MB", status.DatabaseSizeMB))
			field(w, "budget lines", humanize.Comma(int64(status.BudgetLines)))
			field(w, "pdf pages", humanize.Comma(int64(status.PdfPages)))
			field(w, "ingested files", fmt.Sprintf("%d (%d failed)", status.IngestedFiles, status.FailedFiles))
			field(w, "extraction issues", status.ExtractIssues)
			field(w, "data sources", status.DataSources)
			field(w, "fy columns", status.FYColumns)
			for _, c := range columns {
				_, _ = dim.Fprintf(w, "    %s\n", c.Name)
			}

			if !status.Health.FTSTriggersPresent {
				warning(w, "full-text triggers are missing; the last bulk load did not finish")
			}

			if cp := status.LastSession; cp != nil {
				heading(w, "Last session")
				field(w, "id", cp.SessionID)
				field(w, "status", cp.Status)
				field(w, "progress", fmt.Sprintf("%d of %d files", cp.FilesProcessed, cp.TotalFiles))
				field(w, "updated", humanize.Time(cp.UpdatedAt))
				field(w, "elapsed", cp.UpdatedAt.Sub(cp.StartedAt).Round(time.Second))
				if cp.Notes != "" {
					field(w, "notes", cp.Notes)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
