package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/source"
	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML layout of SOURCES_FILE.
//
//	timezone: Europe/Vilnius
//	providers:
//	  - kind: hidrolt
//	    url: https://hidro.lt/api/elektrines/{key}?format=json
//	    max_attempts: 5
//	    retry_delay: 0s
//	plants:
//	  - id: 7
//	    hydrostatic_id: H7
//	    source: hidrolt:7
//	    upper_basin_max: 13.2
type catalogFile struct {
	Timezone  string         `yaml:"timezone"`
	Providers []providerFile `yaml:"providers"`
	Plants    []plantFile    `yaml:"plants"`
}

type providerFile struct {
	Kind          string            `yaml:"kind"`
	URL           string            `yaml:"url"`
	Query         map[string]string `yaml:"query"`
	MaxAttempts   int               `yaml:"max_attempts"`
	RetryDelay    string            `yaml:"retry_delay"`
	MaxRetryDelay string            `yaml:"max_retry_delay"`
}

type plantFile struct {
	ID            int64    `yaml:"id"`
	Name          string   `yaml:"name"`
	HydrostaticID string   `yaml:"hydrostatic_id"`
	Source        string   `yaml:"source"`
	UpperBasinMax *float64 `yaml:"upper_basin_max"`
	UpperBasinMin *float64 `yaml:"upper_basin_min"`
	LowerBasinMin *float64 `yaml:"lower_basin_min"`
}

// Catalog is the resolved provider catalog plus the plants used to seed the
// in-memory directory when no database is configured.
type Catalog struct {
	// ProviderLocation is the zone for provider timestamps without an offset.
	ProviderLocation *time.Location
	Providers        []source.Provider
	Plants           []domain.Plant
}

// DefaultCatalog returns the built-in providers and no plants.
func DefaultCatalog() *Catalog {
	loc, err := time.LoadLocation("Europe/Vilnius")
	if err != nil {
		loc = time.UTC
	}
	return &Catalog{ProviderLocation: loc, Providers: source.DefaultProviders()}
}

// LoadCatalog reads the YAML catalog at path. Providers in the file override
// the built-in provider of the same kind. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read SOURCES_FILE: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse SOURCES_FILE: %w", err)
	}

	if file.Timezone != "" {
		loc, err := time.LoadLocation(file.Timezone)
		if err != nil {
			return nil, fmt.Errorf("SOURCES_FILE timezone: %w", err)
		}
		cat.ProviderLocation = loc
	}

	for i, pf := range file.Providers {
		p, err := pf.provider()
		if err != nil {
			return nil, fmt.Errorf("SOURCES_FILE providers[%d]: %w", i, err)
		}
		cat.Providers = append(cat.Providers, p)
	}

	seen := make(map[int64]struct{}, len(file.Plants))
	for i, pf := range file.Plants {
		p, err := pf.plant()
		if err != nil {
			return nil, fmt.Errorf("SOURCES_FILE plants[%d]: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("SOURCES_FILE plants[%d]: duplicate id %d", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		cat.Plants = append(cat.Plants, p)
	}

	return cat, nil
}

func (pf providerFile) provider() (source.Provider, error) {
	kind := strings.ToLower(strings.TrimSpace(pf.Kind))
	if kind == "" {
		return source.Provider{}, fmt.Errorf("kind is required")
	}
	if !strings.Contains(pf.URL, "{key}") {
		return source.Provider{}, fmt.Errorf("%s: url must contain {key}", kind)
	}
	if pf.MaxAttempts < 0 {
		return source.Provider{}, fmt.Errorf("%s: max_attempts must not be negative", kind)
	}
	delay, err := parseOptionalDuration(pf.RetryDelay)
	if err != nil {
		return source.Provider{}, fmt.Errorf("%s: retry_delay: %w", kind, err)
	}
	maxDelay, err := parseOptionalDuration(pf.MaxRetryDelay)
	if err != nil {
		return source.Provider{}, fmt.Errorf("%s: max_retry_delay: %w", kind, err)
	}
	attempts := pf.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return source.Provider{
		Kind:          domain.SourceKind(kind),
		URLTemplate:   pf.URL,
		Query:         pf.Query,
		MaxAttempts:   attempts,
		RetryDelay:    delay,
		MaxRetryDelay: maxDelay,
	}, nil
}

func (pf plantFile) plant() (domain.Plant, error) {
	if pf.ID <= 0 {
		return domain.Plant{}, fmt.Errorf("id must be positive")
	}
	ref, err := domain.ParseSourceRef(pf.Source)
	if err != nil {
		return domain.Plant{}, fmt.Errorf("plant %d: %w", pf.ID, err)
	}
	return domain.Plant{
		ID:            pf.ID,
		Name:          pf.Name,
		HydrostaticID: pf.HydrostaticID,
		Source:        ref,
		UpperBasinMax: pf.UpperBasinMax,
		UpperBasinMin: pf.UpperBasinMin,
		LowerBasinMin: pf.LowerBasinMin,
	}, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}
