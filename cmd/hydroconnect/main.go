// Hydroconnect - water usage backend for tap sensor hubs and the mobile app.
//
// Subcommands:
//
//	hydroconnect serve                  run the HTTP API (default)
//	hydroconnect migrate [--status]     apply database migrations
//	hydroconnect device add --name N    provision a device hub and print its key
//	hydroconnect device list            list provisioned device hubs
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/config"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/database"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
	"github.com/YuMe-02/Hydroconnect/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command serves.
func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "hydroconnect",
		Short:         "Water usage backend for tap sensor hubs",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default $HYDROCONNECT_CONFIG or "+defaultConfigPath+")")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newDeviceCmd(&configPath),
		newAuditCmd(&configPath),
	)
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), resolveConfigPath(*configPath))
		},
	}
}

// resolveConfigPath picks the --config flag, then HYDROCONNECT_CONFIG, then
// the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("HYDROCONNECT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openStore loads config, opens the database and applies migrations.
// Every subcommand except migrate --down starts here.
func openStore(ctx context.Context, configPath string) (*config.Config, *logging.Logger, *database.DB, error) {
	cfg, log, db, err := openDatabase(ctx, configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return cfg, log, db, nil
}

// openDatabase loads config and opens the database without touching the
// schema.
func openDatabase(ctx context.Context, configPath string) (*config.Config, *logging.Logger, *database.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, log, db, nil
}
