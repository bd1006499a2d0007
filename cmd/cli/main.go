package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/cashflow-tracker/internal/app"
	"github.com/dvloznov/cashflow-tracker/internal/config"
	"github.com/dvloznov/cashflow-tracker/internal/logger"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
	log     zerolog.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "cashflow",
		Short:             "Cashflow tracker command line tools",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or $HOME/.config/cashflow/config.yaml)")
	flags.String("storage-driver", config.DriverSQLite, "storage driver (sqlite3, postgres, bigquery)")
	flags.String("dsn", "cashflow.db", "database DSN for sqlite3 or postgres")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")

	// Bind flags to viper
	_ = v.BindPFlag("storage.driver", flags.Lookup("storage-driver"))
	_ = v.BindPFlag("storage.dsn", flags.Lookup("dsn"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))

	cmd.AddCommand(userCmd())
	cmd.AddCommand(insightsCmd())
	cmd.AddCommand(reconcileCmd())
	cmd.AddCommand(exportCmd())
	cmd.AddCommand(downloadCmd())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	log, err = logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	return nil
}

// withRepo opens the configured store for the duration of fn.
func withRepo(ctx context.Context, fn func(store.Repository) error) error {
	repo, err := app.OpenRepository(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(repo)
}
