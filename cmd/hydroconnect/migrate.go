package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuMe-02/Hydroconnect/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var status, down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Applies every pending migration. With --down, rolls back the most
recently applied migration instead and applies nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			path := resolveConfigPath(*configPath)

			if down {
				_, _, db, err := openDatabase(ctx, path)
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // CLI exits right after

				if err := db.MigrateDown(ctx, migrations.FS); err != nil {
					return fmt.Errorf("rolling back migration: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back latest migration")
				return nil
			}

			_, _, db, err := openStore(ctx, path)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only after migrate

			if !status {
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			}

			applied, _, err := db.MigrationStatus(ctx, migrations.FS)
			if err != nil {
				return fmt.Errorf("reading migration status: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tAPPLIED")
			for _, m := range applied {
				fmt.Fprintf(w, "%s\t%s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "list applied migrations")
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recently applied migration")
	cmd.MarkFlagsMutuallyExclusive("status", "down")
	return cmd
}
