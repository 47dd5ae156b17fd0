// Package memory provides mutex-guarded in-memory implementations of the plant
// directory and readings store. It backs the service when no DATABASE_URL is
// configured and is used throughout the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
)

// Directory is an in-memory plant directory.
type Directory struct {
	mu     sync.RWMutex
	plants map[int64]domain.Plant
}

// NewDirectory creates a directory seeded with plants.
func NewDirectory(plants []domain.Plant) *Directory {
	d := &Directory{plants: make(map[int64]domain.Plant, len(plants))}
	for _, p := range plants {
		d.plants[p.ID] = p
	}
	return d
}

// Upsert adds or replaces a plant.
func (d *Directory) Upsert(p domain.Plant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plants[p.ID] = p
}

// ListPlants returns every plant ordered by id.
func (d *Directory) ListPlants(_ context.Context) ([]domain.Plant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.Plant, 0, len(d.plants))
	for _, p := range d.plants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListEligiblePlants returns plants with an external source, ordered by id.
func (d *Directory) ListEligiblePlants(ctx context.Context) ([]domain.Plant, error) {
	all, err := d.ListPlants(ctx)
	if err != nil {
		return nil, err
	}
	return domain.FilterEligible(all), nil
}

// Store is an in-memory readings store keyed by (plant, observation time).
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	readings []domain.Reading
	index    map[domain.ReadingKey]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{index: make(map[domain.ReadingKey]int)}
}

// Find returns the reading for plantID at observedAt, or nil.
func (s *Store) Find(_ context.Context, plantID int64, observedAt time.Time) (*domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[domain.ReadingKey{PlantID: plantID, ObservedAt: domain.CanonicalTime(observedAt)}]
	if !ok {
		return nil, nil
	}
	r := s.readings[i]
	return &r, nil
}

// Insert stores r and returns it with its id and creation time set. A second
// reading for the same key fails with domain.ErrReadingExists.
func (s *Store) Insert(_ context.Context, r domain.Reading) (domain.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ObservedAt = domain.CanonicalTime(r.ObservedAt)
	key := r.Key()
	if _, ok := s.index[key]; ok {
		return domain.Reading{}, domain.ErrReadingExists
	}

	s.nextID++
	r.ID = s.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = domain.Now().UTC()
	}
	s.index[key] = len(s.readings)
	s.readings = append(s.readings, r)
	return r, nil
}

// ListReadings returns readings observed in [from, to), oldest first.
func (s *Store) ListReadings(_ context.Context, from, to time.Time) ([]domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Reading
	for _, r := range s.readings {
		if !r.ObservedAt.Before(from) && r.ObservedAt.Before(to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

// LatestReadings returns the most recently observed reading per plant.
func (s *Store) LatestReadings(_ context.Context) (map[int64]domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]domain.Reading)
	for _, r := range s.readings {
		if cur, ok := out[r.PlantID]; !ok || r.ObservedAt.After(cur.ObservedAt) {
			out[r.PlantID] = r
		}
	}
	return out, nil
}

// Len returns the number of stored readings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
