package clients

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/metrics"
)

// RetryPolicy configures per-client backoff behavior. Sources differ here:
// most honor a reactive Retry-After on 429, one imposes a fixed delay before
// every request instead. The policy is explicit per client rather than a
// single universal constant.
type RetryPolicy struct {
	// RateLimitDefault is the sleep on 429 when Retry-After is absent
	RateLimitDefault time.Duration
	// MaxRateLimitRetries caps consecutive 429 retries for one request
	MaxRateLimitRetries int
	// PreRequestDelay is a fixed sleep before every request (0 = none)
	PreRequestDelay time.Duration
}

// DefaultRetryPolicy returns the reactive Retry-After policy most sources use.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RateLimitDefault:    30 * time.Second,
		MaxRateLimitRetries: 5,
	}
}

// ClientConfig configures a connector Client.
type ClientConfig struct {
	// Name labels the client in logs and metrics (usually the source name)
	Name string
	// BaseURL prefixes relative request paths
	BaseURL string
	// Auth injects credentials into each request
	Auth AuthProvider
	// Retry is the rate-limit backoff policy
	Retry RetryPolicy
	// RateLimitPerSec throttles outbound requests (0 = unlimited)
	RateLimitPerSec int
	// RequestTimeout bounds individual requests
	RequestTimeout time.Duration
	// ConnectTimeout bounds connection establishment
	ConnectTimeout time.Duration
	// IdleTimeout closes inactive connections
	IdleTimeout time.Duration
	// Headers are sent on every request (e.g. API version pinning)
	Headers map[string]string
}

// Client is the generic connector HTTP client shared by all source adapters.
// It injects auth headers, prefixes relative paths with the configured base
// URL, serializes JSON bodies, and retries on rate limiting. Any other
// non-2xx status raises a typed error carrying status and message.
type Client struct {
	name       string
	baseURL    string
	auth       AuthProvider
	retry      RetryPolicy
	headers    map[string]string
	httpClient *http.Client
	limiter    RateLimiter
	logger     *zap.Logger
}

// NewClient creates a connector client for one source.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 90 * time.Second
	}
	if cfg.Retry.RateLimitDefault <= 0 {
		cfg.Retry.RateLimitDefault = 30 * time.Second
	}
	if cfg.Retry.MaxRateLimitRetries <= 0 {
		cfg.Retry.MaxRateLimitRetries = 5
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     cfg.IdleTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	clientLogger := logger.With(zap.String("component", "connector_client"), zap.String("source", cfg.Name))

	if err := http2.ConfigureTransport(transport); err != nil {
		clientLogger.Warn("failed to configure HTTP/2", zap.Error(err))
	}

	c := &Client{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		auth:    cfg.Auth,
		retry:   cfg.Retry,
		headers: cfg.Headers,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		logger: clientLogger,
	}

	if cfg.RateLimitPerSec > 0 {
		c.limiter = NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitPerSec*2)
	}

	return c
}

// RequestOptions carries per-request overrides.
type RequestOptions struct {
	// Headers are merged over the client-level headers for this request only
	Headers map[string]string
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, path, nil, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPost, path, body, nil)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodPut, path, body, nil)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts *RequestOptions) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, opts)
}

// Request performs an HTTP request against the source API. Relative paths
// are prefixed with the base URL. The response body is returned as raw JSON;
// a 204 resolves with a nil body. On 429 the client sleeps for Retry-After
// (or the policy default) and retries; on 401 with a refreshable auth
// provider it resets the session once and retries.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}, opts *RequestOptions) (json.RawMessage, error) {
	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		url = c.baseURL + path
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode request body")
		}
	}

	rateLimitRetries := 0
	authRefreshed := false

	for {
		if c.retry.PreRequestDelay > 0 {
			if err := sleepCtx(ctx, c.retry.PreRequestDelay); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled during pre-request delay")
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeRateLimit, "rate limiter wait cancelled")
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create request")
		}

		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("User-Agent", "ticketbridge/1.0")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		if opts != nil {
			for k, v := range opts.Headers {
				req.Header.Set(k, v)
			}
		}

		if c.auth != nil {
			if err := c.auth.Apply(ctx, req); err != nil {
				return nil, err
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.APIRequests.WithLabelValues(c.name, method, "error").Inc()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		metrics.APIRequests.WithLabelValues(c.name, method, strconv.Itoa(resp.StatusCode)).Inc()
		if readErr != nil {
			return nil, errors.Wrap(readErr, errors.ErrorTypeConnection, "failed to read response body")
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if rateLimitRetries >= c.retry.MaxRateLimitRetries {
				return nil, errors.FromHTTPStatus(resp.StatusCode, "rate limit retries exhausted").
					WithDetail("retries", rateLimitRetries)
			}
			rateLimitRetries++
			backoff := c.retryAfter(resp)
			c.logger.Warn("rate limited, backing off",
				zap.String("method", method),
				zap.String("path", path),
				zap.Duration("backoff", backoff),
				zap.Int("attempt", rateLimitRetries))
			metrics.RateLimitWaits.WithLabelValues(c.name).Inc()
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled during backoff")
			}
			continue

		case resp.StatusCode == http.StatusUnauthorized:
			if resetter, ok := c.auth.(sessionResetter); ok && !authRefreshed {
				authRefreshed = true
				resetter.ResetSession()
				c.logger.Debug("session reset after 401, retrying", zap.String("path", path))
				continue
			}
			return nil, errors.FromHTTPStatus(resp.StatusCode, errorMessage(respBody))

		case resp.StatusCode == http.StatusNoContent:
			return nil, nil

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return json.RawMessage(respBody), nil

		default:
			return nil, errors.FromHTTPStatus(resp.StatusCode, errorMessage(respBody))
		}
	}
}

// retryAfter reads the Retry-After header in seconds, falling back to the
// policy default.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return c.retry.RateLimitDefault
}

// errorMessage extracts a short human-readable message from an API error body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error       string `json:"error"`
		Message     string `json:"message"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Error != "":
			return envelope.Error
		case envelope.Message != "":
			return envelope.Message
		case envelope.Description != "":
			return envelope.Description
		}
	}

	const maxSnippet = 200
	snippet := string(body)
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	return strings.TrimSpace(snippet)
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns rate limiter statistics for observability surfaces.
func (c *Client) Stats() RateLimiterStats {
	if c.limiter == nil {
		return RateLimiterStats{}
	}
	return c.limiter.GetStats()
}
