package source

import (
	"net/url"
	"testing"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plantWith(ref string) domain.Plant {
	src, err := domain.ParseSourceRef(ref)
	if err != nil {
		panic(err)
	}
	return domain.Plant{ID: 7, HydrostaticID: "H7", Source: src}
}

func TestResolver_DefaultProviders(t *testing.T) {
	r := NewResolver(DefaultProviders())

	t.Run("hidrolt", func(t *testing.T) {
		cfg, err := r.Resolve(plantWith("12"))
		require.NoError(t, err)
		assert.Equal(t, domain.SourceHidroLT, cfg.Kind)
		assert.Equal(t, "12", cfg.Key)
		assert.Equal(t, "https://hidro.lt/api/elektrines/12?format=json", cfg.URL)
		assert.Equal(t, 5, cfg.MaxAttempts)
		assert.Zero(t, cfg.RetryDelay)
	})

	t.Run("meteolt", func(t *testing.T) {
		cfg, err := r.Resolve(plantWith("meteolt:kauno vms"))
		require.NoError(t, err)
		assert.Equal(t, "https://api.meteo.lt/v1/hydro-stations/kauno%20vms/observations/measured/latest", cfg.URL)
		assert.Equal(t, 1, cfg.MaxAttempts)
	})
}

func TestResolver_QueryAndEnv(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "s3cr3t")
	r := NewResolver([]Provider{{
		Kind:          "custom",
		URLTemplate:   "http://provider.test/stations/{key}?format=json",
		Query:         map[string]string{"apikey": "${TEST_PROVIDER_KEY}", "date": "latest"},
		MaxAttempts:   0,
		RetryDelay:    time.Second,
		MaxRetryDelay: 4 * time.Second,
	}})

	cfg, err := r.Resolve(plantWith("custom:st-1"))
	require.NoError(t, err)

	u, err := url.Parse(cfg.URL)
	require.NoError(t, err)
	assert.Equal(t, "/stations/st-1", u.Path)
	assert.Equal(t, "s3cr3t", u.Query().Get("apikey"))
	assert.Equal(t, "latest", u.Query().Get("date"))
	assert.Equal(t, "json", u.Query().Get("format"))
	assert.Equal(t, 1, cfg.MaxAttempts, "attempt bound is at least one")
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 4*time.Second, cfg.MaxRetryDelay)
}

func TestResolver_Errors(t *testing.T) {
	r := NewResolver(append(DefaultProviders(), Provider{Kind: "broken", URLTemplate: "/relative/{key}"}))

	tests := []struct {
		name  string
		plant domain.Plant
	}{
		{"no source", domain.Plant{ID: 1}},
		{"unknown kind", plantWith("nowhere:1")},
		{"relative template", plantWith("broken:1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.plant)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnknownSource)
			assert.False(t, domain.IsRetryable(err))
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry(time.UTC)

	assert.Equal(t, []domain.SourceKind{domain.SourceHidroLT, domain.SourceMeteoLT}, reg.Kinds())

	reading, ok, err := reg.Normalize(domain.SourceHidroLT, []byte(`{"vandens_lygiai":[{"laikas":"2024-01-01T10:00:00Z"}]}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2024, reading.ObservedAt.Year())

	_, err = reg.Lookup("nowhere")
	assert.ErrorIs(t, err, domain.ErrUnknownSource)
}
