package ingest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/adapter/memory"
	"github.com/couchcryptid/hydro-ingest-service/internal/adapter/provider"
	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/ingest"
	"github.com/couchcryptid/hydro-ingest-service/internal/observability"
	"github.com/couchcryptid/hydro-ingest-service/internal/source"
)

const example7 = `{"vandens_lygiai":[{"laikas":"2024-01-01T10:00:00Z","aukstutinis_vandens_lygis":12.5,"zemutinis_vandens_lygis":3.1}]}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider serves hidro.lt style payloads per station key and counts
// requests per key.
type fakeProvider struct {
	mu       sync.Mutex
	payloads map[string]string
	statuses map[string]int
	calls    map[string]int
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	t.Helper()
	fp := &fakeProvider{
		payloads: make(map[string]string),
		statuses: make(map[string]int),
		calls:    make(map[string]int),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		fp.mu.Lock()
		fp.calls[key]++
		status, hasStatus := fp.statuses[key]
		payload := fp.payloads[key]
		fp.mu.Unlock()

		if hasStatus {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return fp, srv
}

func (fp *fakeProvider) serve(key, payload string) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.payloads[key] = payload
	delete(fp.statuses, key)
}

func (fp *fakeProvider) fail(key string, status int) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.statuses[key] = status
}

func (fp *fakeProvider) callsFor(key string) int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.calls[key]
}

func testProviders(baseURL string, hidroAttempts int) []source.Provider {
	return []source.Provider{
		{Kind: domain.SourceHidroLT, URLTemplate: baseURL + "/api/elektrines/{key}", MaxAttempts: hidroAttempts},
		{Kind: domain.SourceMeteoLT, URLTemplate: baseURL + "/hydro-stations/{key}", MaxAttempts: 1},
	}
}

func newTestWorker(baseURL string, hidroAttempts int, store ingest.ReadingStore) *ingest.Worker {
	metrics := observability.NewMetricsForTesting()
	return ingest.NewWorker(
		source.NewResolver(testProviders(baseURL, hidroAttempts)),
		provider.NewClient(2*time.Second, metrics, discardLogger()),
		source.DefaultRegistry(time.UTC),
		store,
		discardLogger(),
		metrics,
	)
}

func hidroPlant(id int64, key string) domain.Plant {
	return domain.Plant{
		ID:            id,
		HydrostaticID: "H" + key,
		Source:        &domain.SourceRef{Kind: domain.SourceHidroLT, Key: key},
	}
}

var errStoreDown = errors.New("connection refused")

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) Find(context.Context, int64, time.Time) (*domain.Reading, error) {
	return nil, errStoreDown
}

func (brokenStore) Insert(context.Context, domain.Reading) (domain.Reading, error) {
	return domain.Reading{}, errStoreDown
}

// racingStore reports no existing reading but loses the insert race.
type racingStore struct{}

func (racingStore) Find(context.Context, int64, time.Time) (*domain.Reading, error) {
	return nil, nil
}

func (racingStore) Insert(context.Context, domain.Reading) (domain.Reading, error) {
	return domain.Reading{}, domain.ErrReadingExists
}

type panickingFetcher struct{}

func (panickingFetcher) Fetch(context.Context, source.Config) ([]byte, int, error) {
	panic("boom")
}

// blockingIngester parks each call until release is closed and tracks the
// peak number of concurrent calls.
type blockingIngester struct {
	started chan int64
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func newBlockingIngester() *blockingIngester {
	return &blockingIngester{started: make(chan int64, 64), release: make(chan struct{})}
}

func (b *blockingIngester) Ingest(ctx context.Context, plant domain.Plant) domain.Outcome {
	n := b.active.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	b.started <- plant.ID
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	b.active.Add(-1)
	return domain.Outcome{PlantID: plant.ID, Status: domain.StatusNoData}
}

type failingDirectory struct{}

func (failingDirectory) ListEligiblePlants(context.Context) ([]domain.Plant, error) {
	return nil, errors.New("directory offline")
}

type recordingSink struct {
	mu       sync.Mutex
	err      error
	readings []domain.Reading
}

func (s *recordingSink) PublishBatch(_ context.Context, readings []domain.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.readings = append(s.readings, readings...)
	return nil
}

func (s *recordingSink) published() []domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Reading(nil), s.readings...)
}

func newDirectory(plants ...domain.Plant) *memory.Directory {
	return memory.NewDirectory(plants)
}
