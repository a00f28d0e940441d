package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuMe-02/Hydroconnect/internal/audit"
	"github.com/YuMe-02/Hydroconnect/internal/auth"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/database"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
)

func newDeviceCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Provision and list device hubs",
	}
	cmd.AddCommand(newDeviceAddCmd(configPath), newDeviceListCmd(configPath))
	return cmd
}

// withKeyStore opens config, database and key store, runs fn and closes
// everything again.
func withKeyStore(ctx context.Context, configPath string, fn func(*logging.Logger, *database.DB, auth.KeyStore) error) error {
	cfg, log, db, err := openStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exits right after

	store, _, closeStore, err := openKeyStore(ctx, cfg.KeyStore, db, log)
	if err != nil {
		return err
	}
	defer closeStore()

	return fn(log, db, store)
}

func newDeviceAddCmd(configPath *string) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Provision a device hub and print its first key",
		Long: `Registers a device hub and prints its API key once. The key is not
stored and cannot be shown again; flash it onto the hub. The hub receives a
replacement automatically every 7 days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			return withKeyStore(cmd.Context(), resolveConfigPath(*configPath),
				func(log *logging.Logger, db *database.DB, store auth.KeyStore) error {
					authority := auth.NewDeviceKeyAuthority(store, nil, log)
					device, key, err := authority.Provision(cmd.Context(), name, time.Now().UTC())
					if errors.Is(err, auth.ErrDeviceExists) {
						return fmt.Errorf("a device named %q already exists", name)
					}
					if err != nil {
						return err
					}

					audit.NewRecorder(audit.NewSQLiteRepository(db.DB), log).Record(cmd.Context(), audit.Entry{
						Action:     audit.ActionDeviceProvisioned,
						EntityType: audit.EntityDevice,
						EntityID:   device.DeviceID,
						Source:     audit.SourceCLI,
						Details:    map[string]any{"name": device.Name},
					})

					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "device_id: %s\n", device.DeviceID)
					fmt.Fprintf(out, "name:      %s\n", device.Name)
					fmt.Fprintf(out, "api_key:   %s\n", key)
					return nil
				})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "unique device name")
	return cmd
}

func newDeviceListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provisioned device hubs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKeyStore(cmd.Context(), resolveConfigPath(*configPath),
				func(_ *logging.Logger, _ *database.DB, store auth.KeyStore) error {
					devices, err := store.List(cmd.Context())
					if err != nil {
						return err
					}
					if len(devices) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No devices found.")
						return nil
					}

					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "DEVICE ID\tNAME\tLAST ROTATED\tNEXT ROTATION")
					for _, d := range devices {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.DeviceID, d.Name,
							d.LastRotated.Format(auth.DateLayout),
							d.LastRotated.AddDate(0, 0, auth.RotationInterval).Format(auth.DateLayout))
					}
					return w.Flush()
				})
		},
	}
}
