package source

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
)

// Provider describes how to reach the endpoint of one source kind.
type Provider struct {
	Kind domain.SourceKind
	// URLTemplate is the GET endpoint; "{key}" is replaced by the
	// path-escaped provider key of the plant.
	URLTemplate string
	// Query holds extra query parameters. Values may reference environment
	// variables as ${NAME}, which keeps API keys out of the catalog file.
	Query         map[string]string
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Config is everything the fetcher needs to poll one plant.
type Config struct {
	Kind          domain.SourceKind
	Key           string
	URL           string
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultProviders returns the built-in provider catalog. hidro.lt has a
// history of flaky responses and gets five attempts; meteo.lt gets one.
func DefaultProviders() []Provider {
	return []Provider{
		{
			Kind:        domain.SourceHidroLT,
			URLTemplate: "https://hidro.lt/api/elektrines/{key}?format=json",
			MaxAttempts: 5,
		},
		{
			Kind:        domain.SourceMeteoLT,
			URLTemplate: "https://api.meteo.lt/v1/hydro-stations/{key}/observations/measured/latest",
			MaxAttempts: 1,
		},
	}
}

// Resolver maps plants to the source configuration to poll.
type Resolver struct {
	providers map[domain.SourceKind]Provider
}

// NewResolver builds a resolver over the given providers. A later provider
// for the same kind replaces an earlier one.
func NewResolver(providers []Provider) *Resolver {
	r := &Resolver{providers: make(map[domain.SourceKind]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Kind] = p
	}
	return r
}

// Resolve returns the source configuration for plant. Plants without a
// source reference, or with a kind that has no provider, cannot be resolved.
func (r *Resolver) Resolve(plant domain.Plant) (Config, error) {
	if plant.Source == nil {
		return Config{}, fmt.Errorf("%w: plant %d has no source reference", domain.ErrUnknownSource, plant.ID)
	}
	p, ok := r.providers[plant.Source.Kind]
	if !ok {
		return Config{}, fmt.Errorf("%w: no provider for kind %q", domain.ErrUnknownSource, plant.Source.Kind)
	}

	u, err := buildURL(p, plant.Source.Key)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", domain.ErrUnknownSource, p.Kind, err)
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return Config{
		Kind:          p.Kind,
		Key:           plant.Source.Key,
		URL:           u,
		MaxAttempts:   attempts,
		RetryDelay:    p.RetryDelay,
		MaxRetryDelay: p.MaxRetryDelay,
	}, nil
}

func buildURL(p Provider, key string) (string, error) {
	raw := strings.ReplaceAll(p.URLTemplate, "{key}", url.PathEscape(key))
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url template: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url template %q is not absolute", p.URLTemplate)
	}
	if len(p.Query) > 0 {
		q := u.Query()
		for k, v := range p.Query {
			q.Set(k, os.ExpandEnv(v))
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
