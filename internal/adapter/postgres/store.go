// Package postgres implements the plant directory and readings store on
// PostgreSQL using a pgx connection pool. Soft-deleted rows (deleted_at set)
// are invisible to every query.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Store is backed by a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, maxConns int, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns) //nolint:gosec // bounded by config validation
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const plantColumns = `id, name, hydrostatic_id, upper_basin_max, upper_basin_min, lower_basin_min, api_id, external_source`

// ListPlants returns all live plants ordered by id.
func (s *Store) ListPlants(ctx context.Context) ([]domain.Plant, error) {
	return s.queryPlants(ctx, `SELECT `+plantColumns+` FROM hydro_power_plants
		WHERE deleted_at IS NULL
		ORDER BY id`)
}

// ListEligiblePlants returns live plants with an external source configured.
func (s *Store) ListEligiblePlants(ctx context.Context) ([]domain.Plant, error) {
	plants, err := s.queryPlants(ctx, `SELECT `+plantColumns+` FROM hydro_power_plants
		WHERE deleted_at IS NULL
		  AND (external_source IS NOT NULL OR api_id IS NOT NULL)
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return domain.FilterEligible(plants), nil
}

func (s *Store) queryPlants(ctx context.Context, sql string) ([]domain.Plant, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query plants: %w", err)
	}
	defer rows.Close()

	var plants []domain.Plant
	for rows.Next() {
		var (
			p        domain.Plant
			apiID    *int64
			external *string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.HydrostaticID, &p.UpperBasinMax, &p.UpperBasinMin, &p.LowerBasinMin, &apiID, &external); err != nil {
			return nil, fmt.Errorf("scan plant: %w", err)
		}
		ref, err := sourceRef(apiID, external)
		if err != nil {
			s.logger.Warn("ignoring invalid plant source reference", "plant_id", p.ID, "error", err)
		}
		p.Source = ref
		plants = append(plants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plants: %w", err)
	}
	return plants, nil
}

func sourceRef(apiID *int64, external *string) (*domain.SourceRef, error) {
	if external != nil && *external != "" {
		return domain.ParseSourceRef(*external)
	}
	if apiID != nil {
		return &domain.SourceRef{Kind: domain.SourceHidroLT, Key: strconv.FormatInt(*apiID, 10)}, nil
	}
	return nil, nil
}

// UpsertPlants inserts or updates plants by id, e.g. from the catalog file.
func (s *Store) UpsertPlants(ctx context.Context, plants []domain.Plant) error {
	if len(plants) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range plants {
		var external *string
		if p.Source != nil {
			v := p.Source.String()
			external = &v
		}
		batch.Queue(`INSERT INTO hydro_power_plants
			(id, name, hydrostatic_id, upper_basin_max, upper_basin_min, lower_basin_min, external_source)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				hydrostatic_id = EXCLUDED.hydrostatic_id,
				upper_basin_max = EXCLUDED.upper_basin_max,
				upper_basin_min = EXCLUDED.upper_basin_min,
				lower_basin_min = EXCLUDED.lower_basin_min,
				external_source = EXCLUDED.external_source,
				updated_at = now(),
				deleted_at = NULL`,
			p.ID, p.Name, p.HydrostaticID, p.UpperBasinMax, p.UpperBasinMin, p.LowerBasinMin, external)
	}
	// Keep the id sequence ahead of explicitly inserted ids.
	batch.Queue(`SELECT setval(pg_get_serial_sequence('hydro_power_plants', 'id'),
		GREATEST((SELECT COALESCE(MAX(id), 0) FROM hydro_power_plants), 1))`)

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert plants: %w", err)
	}
	return nil
}

// Find returns the live reading for plantID at observedAt, or nil.
func (s *Store) Find(ctx context.Context, plantID int64, observedAt time.Time) (*domain.Reading, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, hydro_power_plant_id, time, upper_basin, lower_basin, created_at
		FROM events
		WHERE hydro_power_plant_id = $1 AND time = $2 AND deleted_at IS NULL
		LIMIT 1`, plantID, domain.CanonicalTime(observedAt))

	r, err := scanReading(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find reading: %w", err)
	}
	return &r, nil
}

// Insert stores r. A live reading with the same key yields
// domain.ErrReadingExists.
func (s *Store) Insert(ctx context.Context, r domain.Reading) (domain.Reading, error) {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = domain.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO events
		(hydro_power_plant_id, time, upper_basin, lower_basin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (hydro_power_plant_id, time) WHERE deleted_at IS NULL DO NOTHING
		RETURNING id, hydro_power_plant_id, time, upper_basin, lower_basin, created_at`,
		r.PlantID, domain.CanonicalTime(r.ObservedAt), r.UpperBasinLevel, r.LowerBasinLevel, createdAt)

	inserted, err := scanReading(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reading{}, domain.ErrReadingExists
	}
	if err != nil {
		return domain.Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	return inserted, nil
}

// ListReadings returns live readings observed in [from, to), oldest first.
func (s *Store) ListReadings(ctx context.Context, from, to time.Time) ([]domain.Reading, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, hydro_power_plant_id, time, upper_basin, lower_basin, created_at
		FROM events
		WHERE time >= $1 AND time < $2 AND deleted_at IS NULL
		ORDER BY time, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

// LatestReadings returns the most recently observed live reading per plant.
func (s *Store) LatestReadings(ctx context.Context) (map[int64]domain.Reading, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT ON (hydro_power_plant_id)
			id, hydro_power_plant_id, time, upper_basin, lower_basin, created_at
		FROM events
		WHERE deleted_at IS NULL
		ORDER BY hydro_power_plant_id, time DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest readings: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]domain.Reading)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out[r.PlantID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

func scanReading(row pgx.Row) (domain.Reading, error) {
	var r domain.Reading
	if err := row.Scan(&r.ID, &r.PlantID, &r.ObservedAt, &r.UpperBasinLevel, &r.LowerBasinLevel, &r.CreatedAt); err != nil {
		return domain.Reading{}, err
	}
	r.ObservedAt = r.ObservedAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}
