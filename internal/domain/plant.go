package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SourceKind identifies an external telemetry provider integration.
type SourceKind string

const (
	// SourceHidroLT is the hidro.lt power plant API.
	SourceHidroLT SourceKind = "hidrolt"
	// SourceMeteoLT is the meteo.lt hydrological station API.
	SourceMeteoLT SourceKind = "meteolt"
)

// SourceRef tells the ingestion engine which provider to poll for a plant and
// the provider-specific key (station id) to ask for.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	Key  string     `json:"key"`
}

func (r SourceRef) String() string {
	return string(r.Kind) + ":" + r.Key
}

// ParseSourceRef parses the textual external source reference of a plant.
// An empty string yields a nil reference and no error.
func ParseSourceRef(s string) (*SourceRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	// Legacy form: the numeric hidro.lt station id.
	if _, err := strconv.ParseUint(s, 10, 64); err == nil {
		return &SourceRef{Kind: SourceHidroLT, Key: s}, nil
	}

	kind, key, ok := strings.Cut(s, ":")
	kind = strings.ToLower(strings.TrimSpace(kind))
	key = strings.TrimSpace(key)
	if !ok || kind == "" || key == "" {
		return nil, fmt.Errorf("invalid source reference %q: want <kind>:<key>", s)
	}
	return &SourceRef{Kind: SourceKind(kind), Key: key}, nil
}

// Plant is a hydroelectric power plant tracked by the system.
type Plant struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Power         string     `json:"power,omitempty"`
	HydrostaticID string     `json:"hydrostatic_id"`
	Source        *SourceRef `json:"source,omitempty"`
	UpperBasinMax *float64   `json:"upper_basin_max"`
	UpperBasinMin *float64   `json:"upper_basin_min"`
	LowerBasinMin *float64   `json:"lower_basin_min"`
}

// Eligible reports whether the plant has an external source configured and
// therefore takes part in ingestion cycles.
func (p Plant) Eligible() bool {
	return p.Source != nil
}

// FilterEligible returns the plants that have an external source configured.
func FilterEligible(plants []Plant) []Plant {
	out := make([]Plant, 0, len(plants))
	for _, p := range plants {
		if p.Eligible() {
			out = append(out, p)
		}
	}
	return out
}
