// Package httpapply implements domain.EffectuationAdapter by calling a
// remote-apply HTTP workflow, generalizing the SSH/Ansible-playbook
// delivery mechanism into a single transport-agnostic HTTP call: the
// receiving side is responsible for however it actually pushes the
// parameters onto the target (SSH, agent, etc.), which keeps actual
// remote-shell transport out of this worker's scope.
package httpapply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/godon-project/breeder-worker/internal/domain"
	"github.com/godon-project/breeder-worker/internal/observability"
)

var tracer = otel.Tracer("breeder-worker/effectuation/httpapply")

// Client applies parameter assignments to a target by POSTing them to a
// remote apply workflow endpoint. A circuit breaker sits above the
// per-call backoff retry: backoff absorbs a transient blip on one call,
// the breaker stops hammering a target that has been down across many
// trials in a row.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *observability.ObservableClient

	InitialDelay time.Duration
	MaxRetries   uint64
}

// New constructs a Client against baseURL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		logger: logger,
		breaker: observability.NewObservableClient(
			observability.ConnectionTypeHTTP, observability.OperationTypeRequest, baseURL,
			timeout, timeout/4, timeout*2,
		),
		InitialDelay: 2 * time.Second,
		MaxRetries:   3,
	}
}

type applyRequest struct {
	TargetID int               `json:"target_id"`
	Address  string            `json:"address"`
	Username string            `json:"username,omitempty"`
	Params   map[string]string `json:"params"`
}

type applyResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Apply implements domain.EffectuationAdapter.
func (c *Client) Apply(ctx domain.Context, target domain.Target, params domain.ParamAssignment) error {
	ctx, span := tracer.Start(ctx, "httpapply.Apply")
	defer span.End()

	flat := make(map[string]string, len(params))
	for k, v := range params {
		flat[k] = v.String()
	}

	body, err := json.Marshal(applyRequest{
		TargetID: target.ID,
		Address:  target.Address,
		Username: target.Username,
		Params:   flat,
	})
	if err != nil {
		return fmt.Errorf("httpapply: encode request: %w", err)
	}

	err = c.breaker.ExecuteWithMetrics(ctx, "apply", func(ctx context.Context) error {
		op := func() error { return c.post(ctx, body) }
		bo := backoff.WithContext(backoff.WithMaxRetries(c.exponential(), c.MaxRetries-1), ctx)
		return backoff.Retry(op, bo)
	})
	if err != nil {
		c.logger.Error("effectuation apply failed", slog.Int("target", target.ID), slog.Any("error", err))
		return fmt.Errorf("httpapply: apply to target %d failed: %w", target.ID, err)
	}
	return nil
}

func (c *Client) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.Multiplier = 2.0
	b.MaxInterval = c.InitialDelay * time.Duration(1<<c.MaxRetries)
	b.MaxElapsedTime = 0
	return b
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/apply", bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", domain.ErrUpstreamRateLimit, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("remote apply server error: status %d", resp.StatusCode)
	}

	var parsed applyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return backoff.Permanent(fmt.Errorf("decode apply response: %w", err))
	}
	if resp.StatusCode != http.StatusOK || !parsed.Success {
		return backoff.Permanent(fmt.Errorf("remote apply rejected: status %d: %s", resp.StatusCode, parsed.Error))
	}
	return nil
}
