package domain

import (
	"context"
	"log/slog"
)

// PlantMetadata is the public register entry of a plant, keyed by its
// hydrostatic id.
type PlantMetadata struct {
	HydrostaticID string
	Name          string
	Power         string
}

// MetadataLookup resolves register entries for a set of hydrostatic ids.
// Ids unknown to the register are absent from the result.
type MetadataLookup interface {
	LookupPlants(ctx context.Context, hydrostaticIDs []string) (map[string]PlantMetadata, error)
}

// EnrichWithMetadata fills plant names and power from the register. If lookup
// is nil or fails, plants are returned unchanged (graceful degradation).
func EnrichWithMetadata(ctx context.Context, plants []Plant, lookup MetadataLookup, logger *slog.Logger) []Plant {
	if lookup == nil || len(plants) == 0 {
		return plants
	}

	ids := make([]string, 0, len(plants))
	seen := make(map[string]struct{}, len(plants))
	for _, p := range plants {
		if p.HydrostaticID == "" {
			continue
		}
		if _, ok := seen[p.HydrostaticID]; ok {
			continue
		}
		seen[p.HydrostaticID] = struct{}{}
		ids = append(ids, p.HydrostaticID)
	}
	if len(ids) == 0 {
		return plants
	}

	meta, err := lookup.LookupPlants(ctx, ids)
	if err != nil {
		logger.Warn("plant metadata lookup failed", "plants", len(ids), "error", err)
		return plants
	}

	out := make([]Plant, len(plants))
	for i, p := range plants {
		if m, ok := meta[p.HydrostaticID]; ok {
			if m.Name != "" {
				p.Name = m.Name
			}
			if m.Power != "" {
				p.Power = m.Power
			}
		}
		out[i] = p
	}
	return out
}
