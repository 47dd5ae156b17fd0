package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/observability"
)

// Worker ingests the latest reading of a single plant.
type Worker struct {
	resolver   SourceResolver
	fetcher    Fetcher
	normalizer Normalizer
	store      ReadingStore
	dupes      duplicateChecker
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewWorker creates a Worker.
func NewWorker(r SourceResolver, f Fetcher, n Normalizer, s ReadingStore, logger *slog.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{
		resolver:   r,
		fetcher:    f,
		normalizer: n,
		store:      s,
		dupes:      duplicateChecker{store: s},
		logger:     logger,
		metrics:    metrics,
	}
}

// Ingest runs fetch, normalize, duplicate check and insert for plant. It never
// panics or returns an error: every failure is reported as a Failed outcome.
func (w *Worker) Ingest(ctx context.Context, plant domain.Plant) (out domain.Outcome) {
	out = domain.Outcome{PlantID: plant.ID}
	if plant.Source != nil {
		out.Source = *plant.Source
	}

	defer func() {
		if r := recover(); r != nil {
			out = w.fail(out, fmt.Errorf("ingest plant %d: panic: %v", plant.ID, r))
		}
		w.record(out)
	}()

	cfg, err := w.resolver.Resolve(plant)
	if err != nil {
		return w.fail(out, err)
	}

	raw, attempts, err := w.fetcher.Fetch(ctx, cfg)
	out.Attempts = attempts
	if err != nil {
		return w.fail(out, err)
	}

	reading, ok, err := w.normalizer.Normalize(cfg.Kind, raw)
	if err != nil {
		return w.fail(out, err)
	}
	if !ok {
		out.Status = domain.StatusNoData
		return out
	}
	reading.PlantID = plant.ID
	reading.ObservedAt = domain.CanonicalTime(reading.ObservedAt)

	exists, err := w.dupes.exists(ctx, plant.ID, reading.ObservedAt)
	if err != nil {
		return w.fail(out, err)
	}
	if exists {
		out.Status = domain.StatusAlreadyExists
		return out
	}

	inserted, err := w.store.Insert(ctx, reading)
	switch {
	case errors.Is(err, domain.ErrReadingExists):
		out.Status = domain.StatusAlreadyExists
		return out
	case err != nil:
		return w.fail(out, fmt.Errorf("%w: insert reading: %w", domain.ErrPersistence, err))
	}

	out.Status = domain.StatusInserted
	out.Reading = &inserted
	return out
}

func (w *Worker) fail(out domain.Outcome, err error) domain.Outcome {
	failed := domain.FailedOutcome(out.PlantID, out.Attempts, err)
	failed.Source = out.Source
	return failed
}

func (w *Worker) record(out domain.Outcome) {
	w.metrics.Outcomes.WithLabelValues(string(out.Status), string(out.Source.Kind)).Inc()

	attrs := []any{
		"plant_id", out.PlantID,
		"source_kind", out.Source.Kind,
		"source_key", out.Source.Key,
		"status", out.Status,
		"attempts", out.Attempts,
	}
	switch out.Status {
	case domain.StatusFailed:
		attrs = append(attrs, "error_class", domain.ErrorClass(out.Err), "error", out.Err)
		w.logger.Warn("plant ingestion failed", attrs...)
	case domain.StatusInserted:
		attrs = append(attrs, "observed_at", out.Reading.ObservedAt)
		w.logger.Info("reading inserted", attrs...)
	default:
		w.logger.Debug("plant ingested", attrs...)
	}
}
