package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/observability"
	"github.com/couchcryptid/hydro-ingest-service/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return NewClient(2*time.Second, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig(url string, attempts int) source.Config {
	return source.Config{Kind: domain.SourceHidroLT, Key: "7", URL: url, MaxAttempts: attempts}
}

// countingServer answers with the given statuses in order, repeating the last.
func countingServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"vandens_lygiai":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, attempts, err := testClient().Fetch(context.Background(), testConfig(srv.URL, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestFetch_RetriesExactlyMaxAttempts(t *testing.T) {
	for _, bound := range []int{1, 3, 5} {
		srv, calls := countingServer(t, http.StatusBadGateway)

		_, attempts, err := testClient().Fetch(context.Background(), testConfig(srv.URL, bound))
		require.Error(t, err)

		assert.Equal(t, bound, attempts)
		assert.Equal(t, int32(bound), calls.Load())
		assert.ErrorIs(t, err, domain.ErrTransientFetch)
		assert.True(t, domain.IsRetryable(err))

		var fe *domain.FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
		assert.Equal(t, bound, fe.Attempts)
	}
}

func TestFetch_SucceedsAfterTransientFailures(t *testing.T) {
	srv, calls := countingServer(t, http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusOK)

	body, attempts, err := testClient().Fetch(context.Background(), testConfig(srv.URL, 5))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.JSONEq(t, `{"vandens_lygiai":[]}`, string(body))
}

func TestFetch_ZeroAttemptsMeansOne(t *testing.T) {
	srv, calls := countingServer(t, http.StatusNotFound)

	_, attempts, err := testClient().Fetch(context.Background(), testConfig(srv.URL, 0))
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_ExponentialDelay(t *testing.T) {
	srv, calls := countingServer(t, http.StatusInternalServerError, http.StatusOK)

	cfg := testConfig(srv.URL, 3)
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.MaxRetryDelay = 20 * time.Millisecond

	_, attempts, err := testClient().Fetch(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, attempts, err := testClient().Fetch(context.Background(), testConfig(url, 2))
	require.Error(t, err)
	assert.Equal(t, 2, attempts)

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
	assert.ErrorIs(t, err, domain.ErrTransientFetch)
}

func TestFetch_ContextCancelledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, attempts, err := testClient().Fetch(ctx, testConfig(srv.URL, 5))
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrTransientFetch))
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(50*time.Millisecond, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, attempts, err := c.Fetch(context.Background(), testConfig(srv.URL, 1))
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, domain.ErrTransientFetch)
}
