// Command budgetdb builds and searches a SQLite database of DoD budget
// justification documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/budgetdb/internal/config"
	"github.com/dshills/budgetdb/internal/logging"
	"github.com/dshills/budgetdb/internal/metrics"
	"github.com/dshills/budgetdb/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// globalFlags are the persistent flags shared by every command
type globalFlags struct {
	configPath string
	logLevel   string
	dbPath     string
	docsDir    string
	quiet      bool
	noColor    bool
}

// app carries state built once per invocation in PersistentPreRunE
type app struct {
	flags   globalFlags
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	out     io.Writer
	errOut  io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		failure(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "budgetdb",
		Short:         "Build a searchable database from DoD budget exhibits",
		Version:       fmt.Sprintf("%s (built %s, %s sqlite)", version, buildTime, storage.BuildMode),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "config file (default ./budgetdb.yaml if present)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.flags.dbPath, "db", "", "database path")
	pf.StringVar(&a.flags.docsDir, "docs", "", "documents root")
	pf.BoolVarP(&a.flags.quiet, "quiet", "q", false, "disable progress bars")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newBuildCmd(a),
		newStageCmd(a),
		newLoadCmd(a),
		newMigrateCmd(a),
		newStatusCmd(a),
		newSearchCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads configuration, applies global flag overrides and builds the
// logger and metrics
func (a *app) setup() error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	if a.flags.dbPath != "" {
		cfg.DBPath = a.flags.dbPath
	}
	if a.flags.docsDir != "" {
		cfg.DocsDir = a.flags.docsDir
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.logger = logger
	a.metrics = metrics.New(cfg.Metrics)

	if a.flags.noColor {
		color.NoColor = true
	}
	return nil
}

// openStore opens the configured database and brings its schema up to date
func (a *app) openStore() (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", a.cfg.DBPath, err)
	}
	return store, nil
}

// serveMetrics exposes /metrics while ctx is live when metrics are enabled
func (a *app) serveMetrics(ctx context.Context) {
	if !a.metrics.IsEnabled() {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("address", a.cfg.Metrics.Address))
}
