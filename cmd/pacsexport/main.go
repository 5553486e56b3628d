// Command pacsexport incrementally exports CT/MR studies from a Horos
// database into dated, verified ZIP archives. It is a batch job: an
// external scheduler invokes `pacsexport run` periodically; each
// invocation does one bounded cycle and exits.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmsantos/pacsexport/internal/config"
	"github.com/tmsantos/pacsexport/internal/export"
	"github.com/tmsantos/pacsexport/internal/issues"
	"github.com/tmsantos/pacsexport/internal/logging"
	"github.com/tmsantos/pacsexport/internal/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pacsexport",
		Short:         "Incremental export of CT/MR studies to ZIP archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML (default $PACSEXPORT_CONFIG_PATH)")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newStatusCmd(&configPath))
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one export cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			logger, closer := logging.New(cfg.Log, cfg.LogPath())
			defer closer.Close()

			coord := export.New(cfg, logger, nil)
			outcome, err := coord.Run(cmd.Context())
			if err != nil {
				logger.Error("cycle aborted", "outcome", outcome, "error", err)
				return err
			}
			logger.Info("cycle finished", "outcome", outcome)
			return nil
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show export ledger and issue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			exported, err := ledgerCount(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			problems, err := issues.NewCSVSink(cfg.IssuesPath()).Count()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ledger:  %s\n", cfg.LedgerPath())
			fmt.Fprintf(cmd.OutOrStdout(), "exported studies: %d\n", exported)
			fmt.Fprintf(cmd.OutOrStdout(), "recorded issues:  %d\n", problems)
			return nil
		},
	}
}

func ledgerCount(ctx context.Context, cfg config.Config) (int, error) {
	if _, err := os.Stat(cfg.LedgerPath()); os.IsNotExist(err) {
		return 0, nil
	}
	l, err := sqlite.OpenLedger(cfg.LedgerPath())
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Count(ctx)
}
