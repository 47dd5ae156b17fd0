package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/observability"
	"github.com/couchcryptid/hydro-ingest-service/internal/source"
)

// maxBodyBytes bounds how much of a provider response is read.
const maxBodyBytes = 4 << 20

// Client fetches raw provider payloads over HTTP, retrying transient failures
// up to the attempt bound of the source.
type Client struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a provider client with a per-request timeout.
func NewClient(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// Fetch GETs cfg.URL and returns the body of the first 2xx response together
// with the number of attempts made. At most cfg.MaxAttempts requests are sent.
// Transport errors and non-2xx statuses are retried; the final failure is a
// *domain.FetchError.
func (c *Client) Fetch(ctx context.Context, cfg source.Config) ([]byte, int, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(retryPolicy(cfg), uint64(maxAttempts-1)),
		ctx,
	)

	var (
		body     []byte
		attempts int
	)
	op := func() error {
		attempts++
		b, err := c.get(ctx, cfg)
		if err != nil {
			c.logger.Debug("provider attempt failed",
				"source_kind", cfg.Kind,
				"source_key", cfg.Key,
				"attempt", attempts,
				"max_attempts", maxAttempts,
				"error", err,
			)
			return err
		}
		body = b
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		var fe *domain.FetchError
		if !errors.As(err, &fe) {
			fe = &domain.FetchError{URL: cfg.URL, Err: err}
		}
		fe.Attempts = attempts
		return nil, attempts, fe
	}
	return body, attempts, nil
}

// retryPolicy waits nothing between attempts unless the source configures a
// delay, in which case the delay grows exponentially up to MaxRetryDelay.
func retryPolicy(cfg source.Config) backoff.BackOff {
	if cfg.RetryDelay <= 0 {
		return &backoff.ZeroBackOff{}
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.RetryDelay
	if cfg.MaxRetryDelay > 0 {
		eb.MaxInterval = cfg.MaxRetryDelay
	}
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

func (c *Client) get(ctx context.Context, cfg source.Config) ([]byte, error) {
	kind := string(cfg.Kind)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, backoff.Permanent(&domain.FetchError{URL: cfg.URL, Err: fmt.Errorf("create request: %w", err)})
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FetchAttempts.WithLabelValues(kind, "error").Inc()
		return nil, &domain.FetchError{URL: cfg.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.FetchAttempts.WithLabelValues(kind, "error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.FetchError{
			URL:        cfg.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("provider status %d: %s", resp.StatusCode, snippet),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.FetchAttempts.WithLabelValues(kind, "error").Inc()
		return nil, &domain.FetchError{URL: cfg.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	c.metrics.FetchAttempts.WithLabelValues(kind, "ok").Inc()
	return body, nil
}
