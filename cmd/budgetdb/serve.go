package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/budgetdb/internal/mcp"
	"github.com/dshills/budgetdb/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Serve speaks the Model Context Protocol on stdin/stdout and exposes the
build_database, search_budget and get_build_status tools. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			a.serveMetrics(ctx)

			server := mcp.NewServer(store, mcp.Config{
				DocsDir:            a.cfg.DocsDir,
				StagingDir:         a.cfg.StagingDir(),
				UseStaging:         a.cfg.Staging.Enabled,
				Workers:            a.cfg.Build.Workers,
				CheckpointInterval: a.cfg.Build.CheckpointInterval,
				SearchCacheSize:    a.cfg.Search.CacheSize,
				SearchLimit:        a.cfg.Search.DefaultLimit,
			}, a.logger, a.metrics)

			a.logger.Info("MCP server ready, listening on stdio",
				zap.String("db", a.cfg.DBPath),
				zap.String("driver", storage.DriverName))
			return server.Serve(ctx)
		},
	}
}
