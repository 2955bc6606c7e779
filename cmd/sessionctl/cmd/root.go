package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionstore/config"
	"github.com/jmcleod/sessionstore/internal/backend"
	"github.com/jmcleod/sessionstore/internal/logging"
)

// Version is overridden at link time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "sessionctl manages persisted web sessions",
	Long: `Inspect and revoke persisted web sessions, sweep expired ones, and
serve the admin HTTP API. The backend is chosen by configuration.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (SESSIONS_* environment variables override it)")
}

// deps bundles what every subcommand needs.
type deps struct {
	cfg    config.Config
	logger *slog.Logger
	store  backend.Store
}

// setup loads configuration and opens the configured store. The caller
// must Close the returned store.
func setup(ctx context.Context, cmd *cobra.Command) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, err
	}
	store, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	return &deps{cfg: cfg, logger: logger, store: store}, nil
}
