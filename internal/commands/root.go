// Package commands holds the ledger CLI: the HTTP server plus the schema and
// chart maintenance commands that operators run beside it.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinoosan/retail-ledger/internal/chart"
	"github.com/tinoosan/retail-ledger/internal/config"
	"github.com/tinoosan/retail-ledger/internal/httpapi"
	"github.com/tinoosan/retail-ledger/internal/storage/memory"
	pgstore "github.com/tinoosan/retail-ledger/internal/storage/postgres"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Double-entry accounting ledger for retail businesses",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	load := func() (config.Config, error) { return config.Load(configPath) }
	rootCmd.AddCommand(newServeCommand(load))
	rootCmd.AddCommand(newMigrateCommand(load))
	rootCmd.AddCommand(newInitializeCommand(load))

	return rootCmd
}

type configLoader func() (config.Config, error)

// buildLogger returns a slog logger writing to w. Format is json unless
// configured as text.
func buildLogger(w io.Writer, c config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(c.Level)}
	if strings.EqualFold(strings.TrimSpace(c.Format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// openStore picks Postgres when a database URL is configured and the
// in-memory store otherwise. The returned func releases the backend.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (httpapi.Store, func(), error) {
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("storage backend: postgres")
		return pg, pg.Close, nil
	}
	logger.Info("storage backend: memory")
	return memory.New(), func() {}, nil
}

func loadChart(cfg config.Config) ([]chart.AccountDef, error) {
	if cfg.ChartFile == "" {
		return chart.Default(), nil
	}
	defs, err := chart.Load(cfg.ChartFile)
	if err != nil {
		return nil, fmt.Errorf("load chart %s: %w", cfg.ChartFile, err)
	}
	return defs, nil
}

func stdoutLogger(cfg config.Config) *slog.Logger {
	logger := buildLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)
	return logger
}
