// Package probe collects raw metric values from an external model
// endpoint. Calls are bounded by a timeout and a small retry budget;
// an exhausted budget surfaces as *EndpointError so the run can be
// recorded with an ERROR verdict instead of disappearing.
package probe

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds one probe attempt.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries bounds retries after the first attempt.
	DefaultMaxRetries = 2

	defaultRetryBase = 100 * time.Millisecond
	maxJitterMS      = 50
)

// EndpointError reports a probe call that failed for good, after the
// retry budget.
type EndpointError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("probe: endpoint %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Request asks the endpoint for the raw values of one engine's metrics.
type Request struct {
	ModelID    string   `json:"model_id"`
	EngineType string   `json:"engine_type"`
	Metrics    []string `json:"metrics"`
}

// Response carries the raw metric values plus probe metadata.
type Response struct {
	ModelVersion string             `json:"model_version,omitempty"`
	Metrics      map[string]float64 `json:"metrics"`
	SampleSize   int                `json:"sample_size"`
	Logs         []string           `json:"logs,omitempty"`
}

// Client wraps http.Client with the resilience the probe path needs:
// per-attempt timeout, exponential backoff with jitter, and a circuit
// breaker shared across runs against the same endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	maxRetries int
	retryBase  time.Duration
	breaker    *Breaker
	logger     *slog.Logger
}

// NewClient creates a probe client for one endpoint URL.
func NewClient(endpoint string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		endpoint:   endpoint,
		maxRetries: DefaultMaxRetries,
		retryBase:  defaultRetryBase,
		breaker:    NewBreaker(endpoint, 5, 10*time.Second),
		logger:     slog.Default(),
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithMaxRetries overrides the retry budget (retries after the first
// attempt, so n=2 means up to three calls).
func (c *Client) WithMaxRetries(n int) *Client {
	if n >= 0 {
		c.maxRetries = n
	}
	return c
}

// WithRetryBase overrides the backoff base.
func (c *Client) WithRetryBase(d time.Duration) *Client {
	if d > 0 {
		c.retryBase = d
	}
	return c
}

// WithBreaker overrides the circuit breaker.
func (c *Client) WithBreaker(b *Breaker) *Client {
	c.breaker = b
	return c
}

// WithLogger overrides the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Collect calls the endpoint for the requested metrics. Transport
// errors and 5xx responses are retried with backoff; 4xx responses are
// not, since repeating a rejected request cannot help. All failures
// come back as *EndpointError.
func (c *Client) Collect(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("probe: marshal request: %w", err)
	}

	if !c.breaker.Allow() {
		return nil, &EndpointError{Endpoint: c.endpoint, Attempts: 0, Err: ErrBreakerOpen}
	}

	var lastErr error
	attempts := 0
	for i := 0; i <= c.maxRetries; i++ {
		attempts++
		resp, retryable, err := c.attempt(ctx, body)
		if err == nil {
			c.breaker.Success()
			return resp, nil
		}
		lastErr = err
		if !retryable || i == c.maxRetries {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		backoff := time.Duration(math.Pow(2, float64(i))) * c.retryBase
		if n, jerr := rand.Int(rand.Reader, big.NewInt(maxJitterMS)); jerr == nil {
			backoff += time.Duration(n.Int64()) * time.Millisecond
		}
		c.logger.Debug("probe attempt failed, backing off",
			"endpoint", c.endpoint, "attempt", attempts, "backoff", backoff, "error", err)
		if err := sleepContext(ctx, backoff); err != nil {
			lastErr = err
			break
		}
	}

	c.breaker.Failure()
	return nil, &EndpointError{Endpoint: c.endpoint, Attempts: attempts, Err: lastErr}
}

// attempt runs one HTTP round trip. The second result reports whether
// the failure is worth retrying.
func (c *Client) attempt(ctx context.Context, body []byte) (*Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	injectTraceParent(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	if out.Metrics == nil {
		return nil, false, fmt.Errorf("response carries no metrics")
	}
	return &out, false, nil
}

// injectTraceParent sets a W3C trace context header so probe calls can
// be correlated with the evaluation run that issued them.
func injectTraceParent(req *http.Request) {
	if req.Header.Get("traceparent") != "" {
		return
	}
	var traceBytes [16]byte
	traceID := ""
	if _, err := rand.Read(traceBytes[:]); err == nil {
		traceID = hex.EncodeToString(traceBytes[:])
	} else {
		traceID = fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	req.Header.Set("traceparent", fmt.Sprintf("00-%s-0000000000000001-01", traceID))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
