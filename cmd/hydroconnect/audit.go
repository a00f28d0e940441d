package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuMe-02/Hydroconnect/internal/audit"
)

func newAuditCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(newAuditListCmd(configPath))
	return cmd
}

func newAuditListCmd(configPath *string) *cobra.Command {
	var filter audit.Filter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, _, db, err := openStore(ctx, resolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only

			entries, err := audit.NewSQLiteRepository(db.DB).List(ctx, filter)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit entries found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tENTITY\tID\tSOURCE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.UTC().Format(time.DateTime), e.Action, e.EntityType, orDash(e.EntityID), e.Source)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Action, "action", "", "only entries with this action (e.g. key_rotated)")
	cmd.Flags().StringVar(&filter.EntityType, "entity", "", "only entries for this entity type (user or device)")
	cmd.Flags().StringVar(&filter.EntityID, "id", "", "only entries for this entity ID")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum entries to show (default 50, max 200)")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
