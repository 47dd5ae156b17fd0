// Package report computes threshold-breach statistics over stored readings.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrPlantNotFound is returned by Plant for an unknown plant id.
	ErrPlantNotFound = errors.New("plant not found")
	// ErrInvalidRange is returned by Map when from is not before to.
	ErrInvalidRange = errors.New("invalid time range")
)

// DefaultMapRange is the range Map covers when no bounds are given.
const DefaultMapRange = 24 * time.Hour

// PlantLister lists every known plant, eligible for ingestion or not.
type PlantLister interface {
	ListPlants(ctx context.Context) ([]domain.Plant, error)
}

// ReadingLister is the read side of the readings store.
type ReadingLister interface {
	ListReadings(ctx context.Context, from, to time.Time) ([]domain.Reading, error)
	LatestReadings(ctx context.Context) (map[int64]domain.Reading, error)
}

// Row is one plant line of the breach table.
type Row struct {
	PlantID         int64      `json:"id"`
	Name            string     `json:"name"`
	Power           string     `json:"power,omitempty"`
	HydrostaticID   string     `json:"hydrostatic_id"`
	UpperBasinMax   *float64   `json:"upper_basin_max"`
	UpperBasinMin   *float64   `json:"upper_basin_min"`
	LowerBasinMin   *float64   `json:"lower_basin_min"`
	UpperBasinLevel *float64   `json:"upper_basin_level"`
	LowerBasinLevel *float64   `json:"lower_basin_level"`
	LastObservedAt  *time.Time `json:"last_observed_at,omitempty"`
	BreachesToday   int        `json:"breaches_today"`
	BreachesWeek    int        `json:"breaches_week"`
	BreachesMonth   int        `json:"breaches_month"`
}

// MapEntry is a plant with its readings inside a time range.
type MapEntry struct {
	PlantID       int64            `json:"id"`
	Name          string           `json:"name"`
	HydrostaticID string           `json:"hydrostatic_id"`
	Breaches      int              `json:"breaches"`
	Readings      []domain.Reading `json:"readings"`
}

// PlantDetail is a single plant with its register metadata and latest reading.
type PlantDetail struct {
	domain.Plant
	Latest *domain.Reading `json:"latest,omitempty"`
}

// Service answers reporting queries.
type Service struct {
	plants   PlantLister
	readings ReadingLister
	lookup   domain.MetadataLookup
	loc      *time.Location
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewService creates a report service. lookup may be nil, in which case
// stored plant names are used. Days are counted in loc.
func NewService(plants PlantLister, readings ReadingLister, lookup domain.MetadataLookup, loc *time.Location, clock clockwork.Clock, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{plants: plants, readings: readings, lookup: lookup, loc: loc, clock: clock, logger: logger}
}

// Windows returns the start of today, last week and last month, plus the
// exclusive end shared by all three (the start of tomorrow).
func Windows(now time.Time, loc *time.Location) (today, week, month, end time.Time) {
	local := now.In(loc)
	today = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	week = today.AddDate(0, 0, -7)
	month = monthBefore(today)
	end = today.AddDate(0, 0, 1)
	return today, week, month, end
}

// monthBefore steps back one calendar month, clamping the day to the length
// of the target month: March 31 becomes February 28 (or 29).
func monthBefore(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month()-1, 1, 0, 0, 0, 0, t.Location())
	day := t.Day()
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Breach reports whether a reading is outside the plant's thresholds: the
// upper level below its minimum or above its maximum, or the lower level below
// its minimum. Each comparison needs both the level and its bound.
func Breach(p domain.Plant, r domain.Reading) bool {
	if u := r.UpperBasinLevel; u != nil {
		if p.UpperBasinMin != nil && *u < *p.UpperBasinMin {
			return true
		}
		if p.UpperBasinMax != nil && *u > *p.UpperBasinMax {
			return true
		}
	}
	if l := r.LowerBasinLevel; l != nil && p.LowerBasinMin != nil && *l < *p.LowerBasinMin {
		return true
	}
	return false
}

// Table builds the breach table: one row per plant, sorted by name.
func (s *Service) Table(ctx context.Context) ([]Row, error) {
	plants, err := s.enrichedPlants(ctx)
	if err != nil {
		return nil, err
	}

	today, week, month, end := Windows(s.clock.Now(), s.loc)
	readings, err := s.readings.ListReadings(ctx, month, end)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	latest, err := s.readings.LatestReadings(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest readings: %w", err)
	}

	rows := make([]Row, len(plants))
	index := make(map[int64]int, len(plants))
	for i, p := range plants {
		index[p.ID] = i
		rows[i] = Row{
			PlantID:       p.ID,
			Name:          p.Name,
			Power:         p.Power,
			HydrostaticID: p.HydrostaticID,
			UpperBasinMax: p.UpperBasinMax,
			UpperBasinMin: p.UpperBasinMin,
			LowerBasinMin: p.LowerBasinMin,
		}
		if r, ok := latest[p.ID]; ok {
			at := r.ObservedAt
			rows[i].UpperBasinLevel = r.UpperBasinLevel
			rows[i].LowerBasinLevel = r.LowerBasinLevel
			rows[i].LastObservedAt = &at
		}
	}

	for _, r := range readings {
		i, ok := index[r.PlantID]
		if !ok || !Breach(plants[i], r) {
			continue
		}
		rows[i].BreachesMonth++
		if !r.ObservedAt.Before(week) {
			rows[i].BreachesWeek++
		}
		if !r.ObservedAt.Before(today) {
			rows[i].BreachesToday++
		}
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].Name != rows[b].Name {
			return rows[a].Name < rows[b].Name
		}
		return rows[a].PlantID < rows[b].PlantID
	})
	return rows, nil
}

// Map lists every plant, sorted by name, with all of its readings in
// [from, to) in time order and the number of those that breach. A zero to
// means now; a zero from means DefaultMapRange before to.
func (s *Service) Map(ctx context.Context, from, to time.Time) ([]MapEntry, error) {
	if to.IsZero() {
		to = s.clock.Now()
	}
	if from.IsZero() {
		from = to.Add(-DefaultMapRange)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from %s is not before to %s", ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	plants, err := s.enrichedPlants(ctx)
	if err != nil {
		return nil, err
	}
	readings, err := s.readings.ListReadings(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}

	out := make([]MapEntry, len(plants))
	index := make(map[int64]int, len(plants))
	for i, p := range plants {
		index[p.ID] = i
		out[i] = MapEntry{PlantID: p.ID, Name: p.Name, HydrostaticID: p.HydrostaticID, Readings: []domain.Reading{}}
	}
	for _, r := range readings {
		i, ok := index[r.PlantID]
		if !ok {
			continue
		}
		out[i].Readings = append(out[i].Readings, r)
		if Breach(plants[i], r) {
			out[i].Breaches++
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Name != out[b].Name {
			return out[a].Name < out[b].Name
		}
		return out[a].PlantID < out[b].PlantID
	})
	return out, nil
}

// Plant returns one plant with register metadata and its latest reading.
func (s *Service) Plant(ctx context.Context, id int64) (PlantDetail, error) {
	plants, err := s.plants.ListPlants(ctx)
	if err != nil {
		return PlantDetail{}, fmt.Errorf("list plants: %w", err)
	}
	var found *domain.Plant
	for i := range plants {
		if plants[i].ID == id {
			found = &plants[i]
			break
		}
	}
	if found == nil {
		return PlantDetail{}, fmt.Errorf("plant %d: %w", id, ErrPlantNotFound)
	}

	enriched := domain.EnrichWithMetadata(ctx, []domain.Plant{*found}, s.lookup, s.logger)
	detail := PlantDetail{Plant: enriched[0]}

	latest, err := s.readings.LatestReadings(ctx)
	if err != nil {
		return PlantDetail{}, fmt.Errorf("latest readings: %w", err)
	}
	if r, ok := latest[id]; ok {
		detail.Latest = &r
	}
	return detail, nil
}

func (s *Service) enrichedPlants(ctx context.Context) ([]domain.Plant, error) {
	plants, err := s.plants.ListPlants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	plants = domain.EnrichWithMetadata(ctx, plants, s.lookup, s.logger)
	for i := range plants {
		plants[i].Name = strings.TrimSpace(plants[i].Name)
	}
	return plants, nil
}
