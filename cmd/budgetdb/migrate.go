package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/budgetdb/internal/storage"
)

func newMigrateCmd(a *app) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := storage.Open(a.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database %s: %w", a.cfg.DBPath, err)
			}
			defer func() { _ = store.Close() }()

			if rollback {
				reverted, err := storage.Rollback(ctx, store.DB())
				if err != nil {
					return err
				}
				success(a.out, fmt.Sprintf("reverted migration %d", reverted))
				return nil
			}

			applied, err := store.Migrate(ctx)
			if err != nil {
				return err
			}
			version, err := storage.CurrentVersion(ctx, store.DB())
			if err != nil {
				return err
			}
			if applied == 0 {
				success(a.out, fmt.Sprintf("schema is up to date at version %d", version))
				return nil
			}
			success(a.out, fmt.Sprintf("applied %d migration(s), schema version %d", applied, version))
			return nil
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "revert the most recent migration instead")
	return cmd
}
