package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock lookup ---

type mockLookup struct {
	result map[string]PlantMetadata
	err    error
	calls  int
	ids    []string
}

func (m *mockLookup) LookupPlants(_ context.Context, ids []string) (map[string]PlantMetadata, error) {
	m.calls++
	m.ids = ids
	return m.result, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestEnrichWithMetadata_NilLookup(t *testing.T) {
	plants := []Plant{{ID: 1, Name: "stored", HydrostaticID: "H1"}}

	result := EnrichWithMetadata(context.Background(), plants, nil, discardLogger())

	assert.Equal(t, plants, result)
}

func TestEnrichWithMetadata_FillsNameAndPower(t *testing.T) {
	lookup := &mockLookup{result: map[string]PlantMetadata{
		"H1": {HydrostaticID: "H1", Name: "Kauno HE", Power: "100.8"},
	}}
	plants := []Plant{
		{ID: 1, Name: "stored", HydrostaticID: "H1"},
		{ID: 2, Name: "unknown", HydrostaticID: "H2"},
		{ID: 3, Name: "duplicate", HydrostaticID: "H1"},
		{ID: 4, Name: "no id"},
	}

	result := EnrichWithMetadata(context.Background(), plants, lookup, discardLogger())

	require.Len(t, result, 4)
	assert.Equal(t, "Kauno HE", result[0].Name)
	assert.Equal(t, "100.8", result[0].Power)
	assert.Equal(t, "unknown", result[1].Name)
	assert.Equal(t, "Kauno HE", result[2].Name)
	assert.Equal(t, "no id", result[3].Name)

	assert.Equal(t, 1, lookup.calls)
	assert.Equal(t, []string{"H1", "H2"}, lookup.ids, "ids are de-duplicated and empty ids skipped")
	assert.Equal(t, "stored", plants[0].Name, "input slice is not mutated")
}

func TestEnrichWithMetadata_LookupError(t *testing.T) {
	lookup := &mockLookup{err: errors.New("gis down")}
	plants := []Plant{{ID: 1, Name: "stored", HydrostaticID: "H1"}}

	result := EnrichWithMetadata(context.Background(), plants, lookup, discardLogger())

	assert.Equal(t, plants, result)
	assert.Equal(t, 1, lookup.calls)
}
