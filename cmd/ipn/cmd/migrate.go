package cmd

import (
	"context"
	"fmt"

	ipnmigrations "github.com/goliatone/go-ipn/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the audit, job queue and attempt ledger migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			dialect, err := opts.migrationDialect()
			if err != nil {
				return err
			}
			client, err := opts.openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			_, err = ipnmigrations.Register(ctx, dialect, func(_ context.Context, source ipnmigrations.Source) error {
				client.RegisterSQLMigrations(source.FS)
				return nil
			})
			if err != nil {
				return err
			}
			if err := client.Migrate(ctx); err != nil {
				return fmt.Errorf("ipn: migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", dialect)
			return nil
		},
	}
}
