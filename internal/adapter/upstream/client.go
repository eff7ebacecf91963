// Package upstream fetches the raw results feed over HTTP. Transient
// failures are retried with backoff and a circuit breaker stops hammering an
// endpoint that keeps failing.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/platform/retry"
	"github.com/pscheid92/electionwatch/internal/platform/version"
)

const maxBodyBytes = 32 << 20

var defaultPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   500 * time.Millisecond,
	MaxBackoff:       5 * time.Second,
	RateLimitBackoff: 10 * time.Second,
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code  int
	Retry time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.Code, http.StatusText(e.Code))
}

// RetryAfter exposes the Retry-After header to the retry policy.
func (e *StatusError) RetryAfter() time.Duration { return e.Retry }

// Client is a domain.Fetcher for an HTTP results feed.
type Client struct {
	url     string
	http    *http.Client
	cb      circuitbreaker.CircuitBreaker[any]
	policy  retry.Policy
	metrics *metrics.PollMetrics
}

var _ domain.Fetcher = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default client. Its Timeout bounds each attempt.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a fetcher for url. Each attempt is bounded by timeout.
// The breaker opens at a 60% failure rate over at least 5 attempts in a
// minute and probes again after 30s.
func NewClient(url string, timeout time.Duration, m *metrics.PollMetrics, opts ...Option) *Client {
	c := &Client{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		policy:  defaultPolicy,
		metrics: m,
	}
	c.policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Upstream fetch failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}
	for _, opt := range opts {
		opt(c)
	}

	c.cb = circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, time.Minute).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "upstream",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.CircuitBreakerState.Set(metrics.CircuitStateValue(e.NewState))
		}).
		Build()

	return c
}

// FetchRaw downloads the payload, retrying transient failures.
func (c *Client) FetchRaw(ctx context.Context) ([]byte, error) {
	body, err := retry.Do(ctx, c.policy, classify, c.attempt)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.url, err)
	}
	return body, nil
}

// State reports the breaker state, for health checks.
func (c *Client) State() circuitbreaker.State {
	return c.cb.State()
}

func (c *Client) attempt(ctx context.Context) ([]byte, error) {
	if !c.cb.TryAcquirePermit() {
		return nil, circuitbreaker.ErrOpen
	}

	body, err := c.get(ctx)
	if err != nil && ctx.Err() == nil {
		c.cb.RecordError(err)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	c.cb.RecordSuccess()
	return body, nil
}

func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Retry: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrMalformedPayload, maxBodyBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrMalformedPayload)
	}
	return body, nil
}

func classify(err error) retry.Action {
	if errors.Is(err, circuitbreaker.ErrOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, domain.ErrMalformedPayload) {
		return retry.Stop
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return retry.After
		case se.Code >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}

	return retry.Retry
}

// parseRetryAfter understands the delay-seconds form only.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
