package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinoosan/retail-ledger/internal/httpapi"
	"github.com/tinoosan/retail-ledger/internal/service/account"
	"github.com/tinoosan/retail-ledger/internal/storage/memory"
)

func newInitializeCommand(load configLoader) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "initialize",
		Short: "Seed the chart of accounts in Postgres (existing codes are skipped)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" && !dryRun {
				return fmt.Errorf("initialize needs a persistent store: %w", errNoDatabase)
			}
			logger := stdoutLogger(cfg)
			defs, err := loadChart(cfg)
			if err != nil {
				return err
			}

			// A dry run checks the chart against an empty in-memory ledger.
			var store httpapi.Store = memory.New()
			if !dryRun {
				pg, closeFn, err := openStore(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer closeFn()
				store = pg
			}
			res, err := account.New(store, store, logger).Initialize(cmd.Context(), defs)
			if err != nil {
				return err
			}
			verb := "created"
			if dryRun {
				verb = "would create"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d accounts, skipped %d\n", verb, len(res.Created), res.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the chart against an empty in-memory store without writing anything")
	return cmd
}
