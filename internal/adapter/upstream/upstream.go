// Package upstream is the shared HTTP plumbing for third-party API adapters:
// JSON requests with per-provider timing, outcome metrics and error bodies.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/observability"
)

// maxErrorBody caps how much of a failed response is copied into the error.
const maxErrorBody = 512

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.Status, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == code
}

// Client performs JSON requests against one provider.
type Client struct {
	provider   string
	httpClient *http.Client
	headers    http.Header
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates a client for provider with the given request timeout.
// metrics may be nil.
func New(provider string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		headers:    http.Header{},
		metrics:    metrics,
		logger:     logger,
	}
}

// Provider returns the provider label.
func (c *Client) Provider() string { return c.provider }

// SetHeader adds a header sent with every request.
func (c *Client) SetHeader(key, value string) { c.headers.Set(key, value) }

// GetJSON issues a GET to base?params and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, base string, params url.Values, out any) error {
	u := base
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		u = base + sep + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

// PostJSON sends body as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, u string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// PostForm sends form-encoded values and decodes the response into out.
func (c *Client) PostForm(ctx context.Context, u string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

// Observe records the outcome of a call made outside GetJSON/PostJSON,
// for example an empty but successful response.
func (c *Client) Observe(outcome string) {
	if c.metrics != nil {
		c.metrics.ProviderCalls.WithLabelValues(c.provider, outcome).Inc()
	}
}

func (c *Client) do(req *http.Request, out any) error {
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	err := c.roundTrip(req, out)
	if c.metrics != nil {
		c.metrics.ProviderDuration.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.Observe("error")
		c.logger.Debug("provider request failed", "provider", c.provider, "error", err)
		return err
	}
	c.Observe("success")
	return nil
}

func (c *Client) roundTrip(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Provider: c.provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode response: %w", c.provider, err)
	}
	return nil
}
