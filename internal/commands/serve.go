package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinoosan/retail-ledger/internal/config"
	"github.com/tinoosan/retail-ledger/internal/httpapi"
	"github.com/tinoosan/retail-ledger/internal/migrate"
	"github.com/tinoosan/retail-ledger/internal/service/account"
)

func newServeCommand(load configLoader) *cobra.Command {
	var runMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, runMigrations)
		},
	}
	cmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply pending schema migrations before serving (postgres only)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, runMigrations bool) error {
	logger := stdoutLogger(cfg)

	if runMigrations && cfg.DatabaseURL != "" {
		if _, err := migrateUp(ctx, cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}
	defs, err := loadChart(cfg)
	if err != nil {
		return err
	}
	store, closeFn, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if cfg.DevSeed {
		res, err := account.New(store, store, logger).Initialize(ctx, defs)
		if err != nil {
			return fmt.Errorf("dev seed: %w", err)
		}
		logger.Info("dev seed applied", "created", len(res.Created), "skipped", res.Skipped)
	}

	api := httpapi.New(store, httpapi.Options{
		Currency:       cfg.Currency,
		Chart:          defs,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger service listening", "addr", srv.Addr, "currency", cfg.Currency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
			return err
		}
		return nil
	case err := <-errCh:
		logger.Error("server error", "err", err)
		return err
	}
}

// migrateUp applies the embedded schema and reports what ran.
func migrateUp(ctx context.Context, dsn string, logger *slog.Logger) ([]string, error) {
	db, err := migrate.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	applied, err := migrate.New(db, migrate.WithLogger(logger)).Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return applied, nil
}
