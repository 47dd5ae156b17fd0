package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/hydro-ingest-service/internal/adapter/http"
	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockReporter struct {
	rows     []report.Row
	entries  []report.MapEntry
	detail   report.PlantDetail
	err      error
	from, to time.Time
}

func (m *mockReporter) Table(context.Context) ([]report.Row, error) { return m.rows, m.err }

func (m *mockReporter) Map(_ context.Context, from, to time.Time) ([]report.MapEntry, error) {
	m.from, m.to = from, to
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, fmt.Errorf("%w: empty", report.ErrInvalidRange)
	}
	return m.entries, m.err
}

func (m *mockReporter) Plant(_ context.Context, id int64) (report.PlantDetail, error) {
	if m.err != nil {
		return report.PlantDetail{}, m.err
	}
	if id != m.detail.ID {
		return report.PlantDetail{}, fmt.Errorf("plant %d: %w", id, report.ErrPlantNotFound)
	}
	return m.detail, nil
}

type mockCycles struct {
	summary *domain.CycleSummary
	skipped int64
}

func (m *mockCycles) LastSummary() (domain.CycleSummary, bool) {
	if m.summary == nil {
		return domain.CycleSummary{}, false
	}
	return *m.summary, true
}

func (m *mockCycles) SkippedCycles() int64 { return m.skipped }

func newTestServer(readyErr error, reports *mockReporter, cycles *mockCycles) *httpadapter.Server {
	if reports == nil {
		reports = &mockReporter{}
	}
	if cycles == nil {
		cycles = &mockCycles{}
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, reports, cycles, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil, nil, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(errors.New("no cycle yet"), nil, nil), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no cycle yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil, nil, nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestTable(t *testing.T) {
	reports := &mockReporter{rows: []report.Row{{PlantID: 7, Name: "Kauno HE", BreachesToday: 2}}}
	rec := get(t, newTestServer(nil, reports, nil), "/api/hydro-power-plants/table")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 1, body["total"], 0)
	rows := body["rows"].([]any)
	row := rows[0].(map[string]any)
	assert.Equal(t, "Kauno HE", row["name"])
	assert.InDelta(t, 2, row["breaches_today"], 0)
}

func TestTable_Error(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockReporter{err: errors.New("db down")}, nil), "/api/hydro-power-plants/table")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestMap_Range(t *testing.T) {
	reports := &mockReporter{entries: []report.MapEntry{{PlantID: 1, Breaches: 3}}}
	srv := newTestServer(nil, reports, nil)

	rec := get(t, srv, "/api/hydro-power-plants/map?from=2024-03-01T00:00:00Z&to=2024-03-02T00:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), reports.from.UTC())
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), reports.to.UTC())
	assert.InDelta(t, 1, decode(t, rec)["total"], 0)
}

func TestMap_MissingBoundsLeftToReporter(t *testing.T) {
	reports := &mockReporter{}
	rec := get(t, newTestServer(nil, reports, nil), "/api/hydro-power-plants/map?from=2024-03-01T00:00:00Z")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), reports.from.UTC())
	assert.True(t, reports.to.IsZero())

	rec = get(t, newTestServer(nil, reports, nil), "/api/hydro-power-plants/map")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reports.from.IsZero())
	assert.True(t, reports.to.IsZero())
}

func TestMap_ReporterError(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockReporter{err: errors.New("db down")}, nil), "/api/hydro-power-plants/map")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMap_BadRange(t *testing.T) {
	srv := newTestServer(nil, &mockReporter{}, nil)

	for _, path := range []string{
		"/api/hydro-power-plants/map?from=yesterday",
		"/api/hydro-power-plants/map?to=2024-13-01",
		"/api/hydro-power-plants/map?from=2024-03-02T00:00:00Z&to=2024-03-01T00:00:00Z",
	} {
		rec := get(t, srv, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestPlant(t *testing.T) {
	reports := &mockReporter{detail: report.PlantDetail{Plant: domain.Plant{ID: 7, Name: "Kauno HE", Power: "100.8"}}}
	srv := newTestServer(nil, reports, nil)

	rec := get(t, srv, "/api/hydro-power-plants/uetk/7")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Kauno HE", body["name"])
	assert.Equal(t, "100.8", body["power"])

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/hydro-power-plants/uetk/8").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/hydro-power-plants/uetk/abc").Code)
}

func TestLastCycle(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	summary := domain.NewCycleSummary("cycle-1", started)
	summary.Record(domain.Outcome{PlantID: 7, Status: domain.StatusInserted})
	summary.Finish(started.Add(1500 * time.Millisecond))

	rec := get(t, newTestServer(nil, nil, &mockCycles{summary: &summary, skipped: 2}), "/api/ingest/last")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 1500, body["duration_ms"], 0)
	assert.InDelta(t, 2, body["skipped_cycles"], 0)
	assert.Equal(t, "cycle-1", body["summary"].(map[string]any)["cycle_id"])
}

func TestLastCycle_NoneYet(t *testing.T) {
	rec := get(t, newTestServer(nil, nil, &mockCycles{}), "/api/ingest/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
