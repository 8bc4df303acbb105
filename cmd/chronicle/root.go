package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorebind/chronicle/internal/config"
	"github.com/lorebind/chronicle/internal/ledger"
	"github.com/lorebind/chronicle/internal/store"
	"github.com/lorebind/chronicle/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "Batch-job orchestration engine for long-running narrative analysis",
	Long: `Chronicle orchestrates long multi-step AI jobs over serialized works:
character, term, and timeline extraction, and chapter translation.

Jobs are planned into size-bounded batches and advanced one batch at a
time by short-lived periodic worker invocations. Progress, retries, and
mid-unit checkpoints persist in the database, so any invocation can pick
up where the last one stopped.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.chronicle/config.yaml)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(unitsCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(configCmd)
}

// deps is the shared wiring most commands need.
type deps struct {
	cfg    *config.Config
	store  *store.Store
	ledger *ledger.Ledger
	logger *slog.Logger
}

func buildDeps() (*deps, error) {
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	st, err := store.Open(store.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &deps{
		cfg:    cfg,
		store:  st,
		ledger: ledger.New(st, cfg.Worker.LeaseDuration, logger),
		logger: logger,
	}, nil
}
