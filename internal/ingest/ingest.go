// Package ingest is the scheduled ingestion and reconciliation engine. Each
// cycle lists the plants with an external source, runs one Worker per plant
// concurrently and aggregates the outcomes into a domain.CycleSummary.
//
// A worker fetches the latest provider payload, normalizes it, checks whether
// a reading with the same (plant, observation time) is already stored and
// inserts it if not. Per-plant failures become Failed outcomes; only a failure
// to list plants fails a cycle.
package ingest

import (
	"context"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/source"
)

// PlantDirectory lists the plants that take part in ingestion.
type PlantDirectory interface {
	ListEligiblePlants(ctx context.Context) ([]domain.Plant, error)
}

// ReadingStore is the existing-readings store. Find returns nil when no
// reading exists for the key.
type ReadingStore interface {
	Find(ctx context.Context, plantID int64, observedAt time.Time) (*domain.Reading, error)
	Insert(ctx context.Context, r domain.Reading) (domain.Reading, error)
}

// SourceResolver maps a plant to the provider endpoint to poll.
type SourceResolver interface {
	Resolve(plant domain.Plant) (source.Config, error)
}

// Fetcher retrieves a raw provider payload, retrying up to cfg.MaxAttempts.
// It returns the number of attempts made.
type Fetcher interface {
	Fetch(ctx context.Context, cfg source.Config) ([]byte, int, error)
}

// Normalizer turns a raw payload of the given kind into a reading. ok is
// false when the payload holds no observation yet.
type Normalizer interface {
	Normalize(kind domain.SourceKind, raw []byte) (r domain.Reading, ok bool, err error)
}

// ReadingSink receives the readings inserted during a cycle.
type ReadingSink interface {
	PublishBatch(ctx context.Context, readings []domain.Reading) error
}

// PlantIngester ingests one plant. *Worker implements it.
type PlantIngester interface {
	Ingest(ctx context.Context, plant domain.Plant) domain.Outcome
}
