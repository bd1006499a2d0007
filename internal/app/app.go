// Package app builds the long-lived collaborators shared by the binaries from
// a loaded configuration.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dvloznov/cashflow-tracker/internal/aiservice"
	"github.com/dvloznov/cashflow-tracker/internal/config"
	"github.com/dvloznov/cashflow-tracker/internal/export"
	"github.com/dvloznov/cashflow-tracker/internal/gcs"
	infraBQ "github.com/dvloznov/cashflow-tracker/internal/infra/bigquery"
	"github.com/dvloznov/cashflow-tracker/internal/infra/sqlstore"
	"github.com/dvloznov/cashflow-tracker/internal/jobs"
	"github.com/dvloznov/cashflow-tracker/internal/metrics"
	"github.com/dvloznov/cashflow-tracker/internal/reconcile"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/rs/zerolog"
)

// OpenRepository connects to the configured storage backend.
func OpenRepository(ctx context.Context, cfg config.StorageConfig) (store.Repository, error) {
	switch cfg.Driver {
	case config.DriverSQLite, config.DriverPostgres:
		s, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return s, nil
	case config.DriverBigQuery:
		r, err := infraBQ.NewRepository(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("OpenRepository: unknown storage driver %q", cfg.Driver)
	}
}

// NewDelegate returns the configured AI delegate wrapped with timeouts and
// circuit breakers. The "none" provider yields aiservice.Disabled.
func NewDelegate(ctx context.Context, cfg config.AIConfig, collector metrics.Collector, log zerolog.Logger) (aiservice.Delegate, error) {
	var next aiservice.Delegate
	switch cfg.Provider {
	case config.ProviderNone, "":
		return aiservice.Disabled{}, nil
	case config.ProviderHTTP:
		next = aiservice.NewHTTPDelegate(cfg.BaseURL, &http.Client{})
	case config.ProviderGemini:
		g, err := aiservice.NewGeminiDelegate(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("NewDelegate: %w", err)
		}
		next = g
	default:
		return nil, fmt.Errorf("NewDelegate: unknown ai provider %q", cfg.Provider)
	}

	return aiservice.NewResilient(next, aiservice.ResilientConfig{
		InsightsTimeout: cfg.InsightsTimeout,
		ChatTimeout:     cfg.ChatTimeout,
		Breaker: aiservice.BreakerConfig{
			MaxRequests:         cfg.Breaker.MaxRequests,
			Interval:            cfg.Breaker.Interval,
			Timeout:             cfg.Breaker.Timeout,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
		},
	}, collector, log), nil
}

// ObjectStore is a GCS client, or nil when no export bucket is configured.
type ObjectStore interface {
	gcs.ObjectWriter
	Close() error
}

// NewObjectStore opens a GCS client when bucket is set.
func NewObjectStore(ctx context.Context, bucket string) (ObjectStore, error) {
	if bucket == "" {
		return nil, nil
	}
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewObjectStore: %w", err)
	}
	return c, nil
}

// JobRouter maps every job type to its handler.
func JobRouter(repo store.Repository, objects gcs.ObjectWriter, bucket string, log zerolog.Logger) jobs.Router {
	return jobs.Router{
		jobs.JobTypeReconcileBalance:   reconcile.New(repo, log).JobHandler(),
		jobs.JobTypeExportTransactions: export.New(repo, objects, bucket, log).JobHandler(),
	}
}
