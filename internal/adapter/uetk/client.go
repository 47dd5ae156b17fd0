// Package uetk looks up hydro power plant register entries in the Lithuanian
// surface water cadastre (UETK) through its public QGIS WFS endpoint.
package uetk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/observability"
)

// Client implements domain.MetadataLookup against the UETK WFS service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a UETK register client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    metrics,
		logger:     logger,
	}
}

// LookupPlants fetches the register entries for the given cadastre ids in one
// GetFeature request.
func (c *Client) LookupPlants(ctx context.Context, ids []string) (map[string]domain.PlantMetadata, error) {
	if len(ids) == 0 {
		return map[string]domain.PlantMetadata{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.featureURL(ids), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.GISRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("uetk request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.GISRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("uetk API error: status %d: %s", resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		c.metrics.GISRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.metrics.GISRequests.WithLabelValues("success").Inc()

	out := make(map[string]domain.PlantMetadata, len(fc.Features))
	for _, f := range fc.Features {
		id := f.Properties.CadastreID
		if id == "" {
			continue
		}
		out[id] = domain.PlantMetadata{
			HydrostaticID: id,
			Name:          f.Properties.Name,
			Power:         f.Properties.Power.String(),
		}
	}
	c.logger.Debug("uetk lookup", "requested", len(ids), "found", len(out), "duration", time.Since(start))
	return out, nil
}

func (c *Client) featureURL(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + strings.ReplaceAll(id, "'", "''") + "'"
	}
	params := url.Values{
		"SERVICE":       {"WFS"},
		"REQUEST":       {"GetFeature"},
		"TYPENAME":      {"hidroelektrines"},
		"OUTPUTFORMAT":  {"application/json"},
		"WITH_GEOMETRY": {"no"},
		"EXP_FILTER":    {fmt.Sprintf(`"kadastro_id" IN (%s)`, strings.Join(quoted, ","))},
	}
	return c.baseURL + "?" + params.Encode()
}

// UETK WFS response types.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties properties `json:"properties"`
}

type properties struct {
	CadastreID string `json:"kadastro_id"`
	Name       string `json:"pavadinimas"`
	Power      power  `json:"he_galia"`
}

// power is the installed capacity, published either as a number or a string.
type power string

func (p *power) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*p = ""
	case string:
		*p = power(t)
	case float64:
		*p = power(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("unexpected he_galia %s", b)
	}
	return nil
}

func (p power) String() string { return string(p) }
