// Command spendctl administers the aggregation engine: it migrates the
// store, registers cards, publishes change events and prints aggregates.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"monthly-spend/internal/cli"
	"monthly-spend/internal/config"
	"monthly-spend/internal/log"
)

// env is what every subcommand shares once the root has run.
type env struct {
	cfg    *config.Config
	logger *log.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var backend string

	root := &cobra.Command{
		Use:           "spendctl",
		Short:         "Administer monthly spending aggregates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			if backend != "" {
				os.Setenv("DATA_BACKEND", backend)
			}
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentApp)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&backend, "backend", "", "data backend (memory, sqlite, postgres); overrides DATA_BACKEND")

	root.AddCommand(
		newMigrateCmd(e),
		newCardCmd(e),
		newPublishCmd(e),
		newApplyCmd(e),
		newShowCmd(e),
	)
	return root
}

// withStores opens the configured stores for the duration of fn.
func (e *env) withStores(ctx context.Context, fn func(*cli.Stores) error) error {
	stores, err := cli.OpenStores(ctx, e.logger, e.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			e.logger.Warn("Failed to close store", log.FieldError, err)
		}
	}()
	return fn(stores)
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening a SQL backend runs its migrations.
			return e.withStores(cmd.Context(), func(*cli.Stores) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s backend is up to date\n", e.cfg.DataBackend)
				return nil
			})
		},
	}
}
