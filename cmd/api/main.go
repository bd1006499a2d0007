package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/cashflow-tracker/internal/advisor"
	"github.com/dvloznov/cashflow-tracker/internal/api"
	"github.com/dvloznov/cashflow-tracker/internal/app"
	"github.com/dvloznov/cashflow-tracker/internal/assistant"
	"github.com/dvloznov/cashflow-tracker/internal/config"
	"github.com/dvloznov/cashflow-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/cashflow-tracker/internal/logger"
	"github.com/dvloznov/cashflow-tracker/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
	log     zerolog.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "cashflow-api",
		Short:             "Cashflow tracker HTTP API",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
		RunE:              run,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or $HOME/.config/cashflow/config.yaml)")
	flags.Int("port", 8080, "HTTP server port")
	flags.String("storage-driver", config.DriverSQLite, "storage driver (sqlite3, postgres, bigquery)")
	flags.String("dsn", "cashflow.db", "database DSN for sqlite3 or postgres")
	flags.String("ai-provider", config.ProviderNone, "AI provider (http, gemini, none)")
	flags.String("ai-base-url", "", "base URL of the remote AI service")
	flags.String("bucket", "", "GCS bucket for transaction exports")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"server.port":    "port",
		"storage.driver": "storage-driver",
		"storage.dsn":    "dsn",
		"ai.provider":    "ai-provider",
		"ai.base_url":    "ai-base-url",
		"export.bucket":  "bucket",
		"logging.level":  "log-level",
		"logging.format": "log-format",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
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

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	collector := metrics.NewPrometheusCollector("cashflow")

	// Initialize repositories
	repo, err := app.OpenRepository(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer repo.Close()
	log.Info().Str("driver", cfg.Storage.Driver).Msg("Storage ready")

	delegate, err := app.NewDelegate(ctx, cfg.AI, collector, log)
	if err != nil {
		return err
	}
	log.Info().Str("provider", cfg.AI.Provider).Msg("AI delegate configured")

	objects, err := app.NewObjectStore(ctx, cfg.Export.Bucket)
	if err != nil {
		return err
	}
	if objects != nil {
		defer objects.Close()
	} else {
		log.Warn().Msg("No export bucket configured - transaction exports will be disabled")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.Buffer, jobStore,
		inmemory.WithWorkers(cfg.Jobs.Workers),
		inmemory.WithMaxRetries(cfg.Jobs.MaxRetries),
		inmemory.WithMetrics(collector),
		inmemory.WithLogger(log),
	)

	// Workers outlive the signal so in-flight jobs can finish during shutdown.
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	router := app.JobRouter(repo, objects, cfg.Export.Bucket, log)
	if err := jobQueue.Start(workerCtx, router.Handle); err != nil {
		return fmt.Errorf("starting job queue: %w", err)
	}

	handler := api.NewRouter(api.Deps{
		Repo:           repo,
		Advisor:        advisor.New(delegate, log),
		Assistant:      assistant.New(delegate, log),
		Jobs:           jobStore,
		Publisher:      jobQueue,
		ExportEnabled:  objects != nil,
		Metrics:        collector,
		MetricsHandler: collector.Handler(),
		Log:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		// Stop job queue and wait for in-flight jobs
		if err := jobQueue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
		cancelWorkers()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited")
	return nil
}
