// Package client provides the NR API client with rate limiting, payload
// caching, retry with backoff and error classification.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mrioqueiroz/nrdata-dl/pkg/audit"
	"github.com/mrioqueiroz/nrdata-dl/pkg/cache"
	"github.com/mrioqueiroz/nrdata-dl/pkg/logging"
	"github.com/mrioqueiroz/nrdata-dl/pkg/nr"
	"github.com/mrioqueiroz/nrdata-dl/pkg/ratelimit"
)

const (
	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "nrdata-dl/1.0"

	// DefaultAPIKeyHeader carries the API key unless a query parameter is configured.
	DefaultAPIKeyHeader = "X-API-Key"

	// MaxPayloadSize is the default limit on a response body. Larger bodies
	// fail the identifier.
	MaxPayloadSize = 10 << 20
)

// Limiter hands out request permits. *ratelimit.Gate implements it.
type Limiter interface {
	Wait(ctx context.Context) error
	Pause(d time.Duration)
}

// PayloadCache stores downloaded payloads between runs. *cache.Manager implements it.
type PayloadCache interface {
	Get(ctx context.Context, id nr.Identifier) (*cache.Entry, error)
	Set(ctx context.Context, entry *cache.Entry) error
	IsFresh(entry *cache.Entry, now time.Time) bool
	Touch(ctx context.Context, entry *cache.Entry, now time.Time) error
	Delete(ctx context.Context, id nr.Identifier) error
}

// Credentials authenticate requests. They are supplied per call and never stored.
type Credentials struct {
	APIKey string

	// Header carries the key (default X-API-Key). Ignored when QueryParam is set.
	Header string

	// QueryParam, when set, sends the key as a query parameter instead.
	QueryParam string
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root; the identifier is appended as the last path segment.
	BaseURL string

	// UserAgent header (default DefaultUserAgent).
	UserAgent string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxPayloadSize bounds a response body in bytes (default MaxPayloadSize).
	MaxPayloadSize int64

	Retry RetryConfig

	// Limiter is shared by every worker of a run. Nil disables limiting.
	Limiter Limiter

	// Cache is optional. Nil disables payload caching.
	Cache PayloadCache

	// Clock drives backoff sleeps and retrieval timestamps (default real clock).
	Clock clockwork.Clock

	// HTTPClient overrides the transport (default http.Client without timeout;
	// Timeout is applied per attempt through the request context).
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration for baseURL with default timeouts and retries.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		UserAgent:      DefaultUserAgent,
		Timeout:        30 * time.Second,
		MaxPayloadSize: MaxPayloadSize,
		Retry:          DefaultRetryConfig(),
	}
}

// Client is the NR API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    Limiter
	cache      PayloadCache
	clock      clockwork.Clock
	retrier    *retrier
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = MaxPayloadSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := logging.NewLogger("nr-client")

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		limiter:    cfg.Limiter,
		cache:      cfg.Cache,
		clock:      cfg.Clock,
		retrier: &retrier{
			config: cfg.Retry,
			clock:  cfg.Clock,
			logger: logger,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Fetch retrieves the record for id.
//
// Per-identifier failures are returned as a Failed outcome with a nil error.
// The error is non-nil only for run-scoped conditions: *AuthError, or
// ErrContextCancelled when ctx ends first.
func (c *Client) Fetch(ctx context.Context, id nr.Identifier, creds Credentials) (audit.Outcome, error) {
	if id.IsZero() {
		return audit.Outcome{}, fmt.Errorf("fetch: zero identifier")
	}

	logger := c.logger.With().Str("identifier", id.String()).Logger()

	cached := c.lookup(ctx, id, logger)
	if cached != nil && c.cache.IsFresh(cached, c.clock.Now()) {
		logger.Debug().Time("retrieved_at", cached.RetrievedAt).Msg("Serving payload from cache")
		return audit.Valid(cached.Payload, cached.RetrievedAt), nil
	}
	if cached != nil && !cached.CanRevalidate() {
		cached = nil
	}

	var outcome audit.Outcome
	attempts, err := c.retrier.do(ctx, func() error {
		o, err := c.attempt(ctx, id, creds, cached, logger)
		if err == nil {
			outcome = o
		}
		return err
	})
	if err == nil {
		return outcome, nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		logger.Error().Int("status_code", authErr.StatusCode).Msg("Authentication rejected")
		return audit.Outcome{}, authErr
	}
	if errors.Is(err, ErrContextCancelled) {
		return audit.Outcome{}, err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		reason := apiErr.Reason(attempts)
		logger.Warn().
			Str("error_class", string(apiErr.ErrorClass)).
			Int("attempts", attempts).
			Str("reason", reason).
			Msg("Fetch failed")
		return audit.Failed(reason, attempts), nil
	}

	// Anything else is a local failure building the request.
	logger.Warn().Err(err).Msg("Fetch failed")
	return audit.Failed(err.Error(), attempts), nil
}

// lookup returns the cached entry for id, or nil. Cache errors are logged and ignored.
func (c *Client) lookup(ctx context.Context, id nr.Identifier, logger zerolog.Logger) *cache.Entry {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}
		return nil
	}
	return entry
}

// attempt performs one request: permit, round trip and classification.
func (c *Client) attempt(ctx context.Context, id nr.Identifier, creds Credentials, cached *cache.Entry, logger zerolog.Logger) (audit.Outcome, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return audit.Outcome{}, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := c.newRequest(attemptCtx, id, creds)
	if err != nil {
		return audit.Outcome{}, err
	}
	if cached != nil {
		cache.AddConditionalHeaders(req, cached)
		cache.ConditionalRequestsSent.Inc()
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return audit.Outcome{}, c.transportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	logger.Debug().
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Response received")

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxPayloadSize+1))
		if err != nil {
			return audit.Outcome{}, c.transportError(ctx, attemptCtx, err)
		}
		if int64(len(body)) > c.config.MaxPayloadSize {
			errorsTotal.WithLabelValues(string(ErrorClassClient)).Inc()
			logger.Warn().Int64("limit", c.config.MaxPayloadSize).Msg("Payload exceeds size limit")
			return audit.Outcome{}, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassClient,
				Message:    fmt.Sprintf("body larger than %d bytes", c.config.MaxPayloadSize),
				Err:        ErrPayloadTooLarge,
			}
		}
		now := c.clock.Now()
		c.store(ctx, id, resp, body, now, logger)
		return audit.Valid(body, now), nil

	case resp.StatusCode == http.StatusNotModified && cached != nil:
		cache.NotModifiedResponses.Inc()
		now := c.clock.Now()
		if err := c.cache.Touch(ctx, cached, now); err != nil {
			logger.Warn().Err(err).Msg("Cache touch error")
		}
		logger.Info().Msg("Payload not modified")
		return audit.Valid(cached.Payload, now), nil

	case resp.StatusCode == http.StatusNotFound && cached != nil:
		// The record is gone; the stale payload must not be served again.
		if err := c.cache.Delete(ctx, id); err != nil {
			logger.Warn().Err(err).Msg("Cache delete error")
		} else {
			logger.Info().Msg("Evicted cached payload of removed record")
		}
		return audit.Outcome{}, c.statusError(resp)

	default:
		return audit.Outcome{}, c.statusError(resp)
	}
}

func (c *Client) newRequest(ctx context.Context, id nr.Identifier, creds Credentials) (*http.Request, error) {
	u := c.baseURL.JoinPath(id.String())
	if creds.QueryParam != "" && creds.APIKey != "" {
		q := u.Query()
		q.Set(creds.QueryParam, creds.APIKey)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if creds.QueryParam == "" && creds.APIKey != "" {
		header := creds.Header
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		req.Header.Set(header, creds.APIKey)
	}
	return req, nil
}

func (c *Client) store(ctx context.Context, id nr.Identifier, resp *http.Response, body []byte, now time.Time, logger zerolog.Logger) {
	if c.cache == nil {
		return
	}
	entry, err := cache.ResponseToEntry(id.String(), resp, body, now)
	if err == nil {
		err = c.cache.Set(ctx, entry)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Cache set error")
	}
}

// transportError classifies an error raised before a status code was read.
func (c *Client) transportError(ctx, attemptCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	}

	class := ErrorClassNetwork
	var netErr net.Error
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		class = ErrorClassTimeout
	}
	errorsTotal.WithLabelValues(string(class)).Inc()
	requestsTotal.WithLabelValues(string(class)).Inc()

	return &APIError{
		ErrorClass: class,
		Message:    "request failed",
		Err:        err,
	}
}

// statusError maps a non-success response to an error.
func (c *Client) statusError(resp *http.Response) error {
	status := resp.StatusCode
	message := http.StatusText(status)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		errorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
		return &AuthError{StatusCode: status, Message: message}

	case status == http.StatusTooManyRequests:
		errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		retryAfter, ok := ratelimit.RetryAfter(resp.Header, c.clock.Now())
		if ok && c.limiter != nil {
			c.limiter.Pause(retryAfter)
		}
		return &APIError{
			StatusCode: status,
			ErrorClass: ErrorClassRateLimit,
			Message:    message,
			RetryAfter: retryAfter,
		}

	case status >= 500:
		errorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
		return &APIError{StatusCode: status, ErrorClass: ErrorClassServer, Message: message}

	default:
		// 404, other 4xx, and unexpected 1xx/2xx/3xx are terminal.
		errorsTotal.WithLabelValues(string(ErrorClassClient)).Inc()
		return &APIError{StatusCode: status, ErrorClass: ErrorClassClient, Message: message}
	}
}
