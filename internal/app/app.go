// Package app wires configuration, storage, providers and the ingestion
// scheduler into a runnable service. Both binaries under cmd/ build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	kafkaadapter "github.com/couchcryptid/hydro-ingest-service/internal/adapter/kafka"
	"github.com/couchcryptid/hydro-ingest-service/internal/adapter/memory"
	"github.com/couchcryptid/hydro-ingest-service/internal/adapter/postgres"
	"github.com/couchcryptid/hydro-ingest-service/internal/adapter/provider"
	"github.com/couchcryptid/hydro-ingest-service/internal/adapter/redislock"
	"github.com/couchcryptid/hydro-ingest-service/internal/adapter/uetk"
	"github.com/couchcryptid/hydro-ingest-service/internal/config"
	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/ingest"
	"github.com/couchcryptid/hydro-ingest-service/internal/observability"
	"github.com/couchcryptid/hydro-ingest-service/internal/report"
	"github.com/couchcryptid/hydro-ingest-service/internal/source"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
)

// Directory is the plant directory the service reads from.
type Directory interface {
	ingest.PlantDirectory
	report.PlantLister
}

// Store is the readings store the service writes to and reports from.
type Store interface {
	ingest.ReadingStore
	report.ReadingLister
}

// App holds the wired components.
type App struct {
	Scheduler *ingest.Scheduler
	Reports   *report.Service

	checks  []sharedobs.ReadinessChecker
	closers []func() error
	logger  *slog.Logger
}

// New builds every component described by cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{logger: logger}

	catalog, err := config.LoadCatalog(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	dir, store, err := a.openStorage(ctx, cfg, catalog)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	registry := source.DefaultRegistry(catalog.ProviderLocation)
	for _, p := range catalog.Providers {
		if _, err := registry.Lookup(p.Kind); err != nil {
			logger.Warn("provider has no normalizer, its plants will fail",
				"source_kind", p.Kind, "supported", registry.Kinds())
		}
	}

	worker := ingest.NewWorker(
		source.NewResolver(catalog.Providers),
		provider.NewClient(cfg.FetchTimeout, metrics, logger),
		registry,
		store,
		logger,
		metrics,
	)

	var opts []ingest.Option
	if cfg.RedisAddr != "" {
		client := redislock.NewClient(cfg.RedisAddr)
		lock := redislock.New(client, redislock.DefaultKey, cfg.CycleLockTTL, logger)
		opts = append(opts, ingest.WithCycleLock(lock))
		a.checks = append(a.checks, lock)
		a.closers = append(a.closers, client.Close)
		logger.Info("distributed cycle lock enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.CycleLockTTL)
	}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, ingest.WithSink(writer))
		a.closers = append(a.closers, writer.Close)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaReadingsTopic)
	}

	a.Scheduler = ingest.NewScheduler(dir, worker, ingest.Options{
		Interval:     cfg.IngestInterval,
		RunOnStart:   cfg.IngestRunOnStart,
		Concurrency:  cfg.IngestConcurrency,
		CycleTimeout: cfg.IngestCycleTimeout,
		SkipOverlap:  cfg.CycleOverlap == config.OverlapSkip,
	}, logger, metrics, opts...)

	// Feature-flagged via GIS_ENABLED.
	var lookup domain.MetadataLookup
	if cfg.GISEnabled {
		client := uetk.NewClient(cfg.GISBaseURL, cfg.GISTimeout, metrics, logger)
		lookup = uetk.NewCachedLookup(client, cfg.GISCacheSize, metrics)
		metrics.GISEnabled.Set(1)
		logger.Info("uetk register lookup enabled", "cache_size", cfg.GISCacheSize, "timeout", cfg.GISTimeout)
	} else {
		metrics.GISEnabled.Set(0)
		logger.Info("uetk register lookup disabled")
	}
	a.Reports = report.NewService(dir, store, lookup, cfg.Location(), clockwork.NewRealClock(), logger)

	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config, catalog *config.Catalog) (Directory, Store, error) {
	if cfg.DatabaseURL == "" {
		a.logger.Warn("DATABASE_URL not set, using in-memory storage", "plants", len(catalog.Plants))
		return memory.NewDirectory(catalog.Plants), memory.NewStore(), nil
	}

	pg, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.checks = append(a.checks, pg)
	a.closers = append(a.closers, func() error { pg.Close(); return nil })

	if err := pg.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	if len(catalog.Plants) > 0 {
		if err := pg.UpsertPlants(ctx, catalog.Plants); err != nil {
			return nil, nil, fmt.Errorf("seed plants: %w", err)
		}
		a.logger.Info("plants seeded from catalog", "plants", len(catalog.Plants))
	}
	return pg, pg, nil
}

// StorageReadiness checks the backing services: the database and the cycle
// lock, when configured.
func (a *App) StorageReadiness(ctx context.Context) error {
	for _, c := range a.checks {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CheckReadiness reports ready once the backing services respond and the
// first ingestion cycle has completed.
func (a *App) CheckReadiness(ctx context.Context) error {
	if err := a.StorageReadiness(ctx); err != nil {
		return err
	}
	return a.Scheduler.CheckReadiness(ctx)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
