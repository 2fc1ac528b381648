// Package prometheus implements domain.ReconnaissanceService against a
// Prometheus-compatible HTTP API's /api/v1/query endpoint, for scalar
// (instant-vector-reduced) PromQL queries only.
package prometheus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/godon-project/breeder-worker/internal/domain"
)

var tracer = otel.Tracer("breeder-worker/reconnaissance/prometheus")

// Client queries a Prometheus HTTP API base URL for scalar metric values.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// InitialDelay/MaxRetries configure the retry schedule: InitialDelay,
	// doubling on each attempt, for up to MaxRetries total attempts.
	InitialDelay time.Duration
	MaxRetries   uint64
}

// New constructs a Client against baseURL (e.g. "http://prometheus:9090").
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		logger:       logger,
		InitialDelay: 5 * time.Second,
		MaxRetries:   3,
	}
}

// queryResponse is the subset of Prometheus's /api/v1/query response shape
// this client understands: scalar results only.
type queryResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string        `json:"resultType"`
		Result     []interface{} `json:"result"`
	} `json:"data"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
}

// Measure implements domain.ReconnaissanceService. It ignores target: the
// Prometheus backend queries a shared monitoring endpoint, not the target
// host directly.
func (c *Client) Measure(ctx context.Context, _ domain.Target, spec domain.ReconnaissanceSpec) (float64, error) {
	ctx, span := tracer.Start(ctx, "prometheus.Measure")
	defer span.End()

	var value float64
	op := func() error {
		v, err := c.customQuery(ctx, spec.Query)
		if err != nil {
			return err
		}
		value = v
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(c.exponential(), c.MaxRetries-1),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		return 0, fmt.Errorf("prometheus query failed after %d attempts: %w", c.MaxRetries, err)
	}
	return value, nil
}

func (c *Client) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.Multiplier = 2.0
	b.MaxInterval = c.InitialDelay * time.Duration(1<<c.MaxRetries)
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries, not elapsed time
	return b
}

func (c *Client) customQuery(ctx context.Context, query string) (float64, error) {
	u := c.baseURL + "/api/v1/query?" + url.Values{"query": {query}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, fmt.Errorf("%w: status %d", domain.ErrUpstreamRateLimit, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("prometheus server error: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, backoff.Permanent(fmt.Errorf("prometheus query rejected: status %d: %s", resp.StatusCode, string(body)))
	}

	var parsed queryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("decode prometheus response: %w", err))
	}
	if parsed.Status != "success" {
		return 0, backoff.Permanent(fmt.Errorf("prometheus query error: %s: %s", parsed.ErrorType, parsed.Error))
	}
	if parsed.Data.ResultType != "scalar" {
		return 0, backoff.Permanent(fmt.Errorf("query must return scalar result, got: %s", parsed.Data.ResultType))
	}

	return extractScalarValue(parsed.Data.Result)
}

// extractScalarValue parses the [timestamp, "value"] pair Prometheus
// returns for a scalar result. A "NaN" string yields NaN, which the
// aggregator drops as an invalid sample; a missing or non-string value is
// a permanent error, so that sample is dropped as well.
func extractScalarValue(result []interface{}) (float64, error) {
	if len(result) < 2 {
		return 0, backoff.Permanent(fmt.Errorf("invalid scalar result format: %v", result))
	}
	raw, ok := result[1].(string)
	if !ok {
		return 0, backoff.Permanent(fmt.Errorf("invalid scalar result format: %v", result))
	}
	if raw == "NaN" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("invalid scalar value %q: %w", raw, err))
	}
	return v, nil
}
