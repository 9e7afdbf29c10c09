// Package client provides the HTTP client for the paginated source API, with
// failure classification, an optional request rate limit and an optional
// Redis page cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/data-flux/pkg/cache"
	"github.com/Sternrassler/data-flux/pkg/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for source requests.
var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataflux_source_requests_total",
		Help: "Total source requests by endpoint and status",
	}, []string{"endpoint", "status"})

	sourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataflux_source_request_duration_seconds",
		Help:    "Source request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15},
	}, []string{"endpoint"})

	sourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataflux_source_errors_total",
		Help: "Total source errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds how much of a failed response body is kept in the error message.
const maxErrorBody = 512

// Page is the source's pagination envelope. Count fields are pointers so a
// response that omits them can be told apart from one that reports zero.
type Page struct {
	Total *int               `json:"total"`
	Page  *int               `json:"page"`
	Size  *int               `json:"size"`
	Pages *int               `json:"pages"`
	Items []schema.RawRecord `json:"items"`

	// Cached is set when the page came from the page cache instead of the source.
	Cached bool `json:"-"`
}

// PageRequest addresses one page of one endpoint.
type PageRequest struct {
	// Endpoint is the collection path, e.g. "/users".
	Endpoint string

	// Page is the source's 1-based page number.
	Page int

	// Size is the requested page size.
	Size int

	// Total is the record count discovery reported; it versions the page
	// cache key so a grown or shrunk collection is refetched.
	Total int

	// SkipCache bypasses the page cache (used for discovery).
	SkipCache bool

	// Admitted means the caller already took a rate-limit token with Wait.
	Admitted bool
}

// Query returns the pagination query parameters.
func (r PageRequest) Query() url.Values {
	return url.Values{
		"page": []string{strconv.Itoa(r.Page)},
		"size": []string{strconv.Itoa(r.Size)},
	}
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the source API base, e.g. "http://localhost:8000".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout is the http.Client ceiling. Per-request timeouts are set by the
	// caller's context and should be shorter.
	Timeout time.Duration

	// MaxIdleConnsPerHost sizes the keep-alive pool; set it near the batch
	// concurrency so connections are reused across pages.
	MaxIdleConnsPerHost int

	// RateLimit caps requests per second (0 disables the limiter).
	RateLimit float64
	RateBurst int

	// Cache stores successful page bodies (nil disables caching).
	Cache *cache.Manager
}

// DefaultConfig returns a default configuration for the given source.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:             baseURL,
		UserAgent:           "data-flux/1.0",
		Timeout:             60 * time.Second,
		MaxIdleConnsPerHost: 100,
	}
}

// Client fetches pages from the source API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	rateLimiter *rate.Limiter
	cache       *cache.Manager
	logger      zerolog.Logger
}

// New creates a new source client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "data-flux/1.0"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = cfg.MaxIdleConnsPerHost
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		rateLimiter: limiter,
		cache:       cfg.Cache,
		logger:      log.With().Str("component", "source-client").Logger(),
	}, nil
}

// FetchPage performs one GET for a page and decodes the envelope. Every
// failure is returned as a *SourceError.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	cacheKey := cache.CacheKey{Endpoint: req.Endpoint, QueryParams: req.Query(), Total: req.Total}
	useCache := c.cache != nil && !req.SkipCache

	if useCache {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			page, decodeErr := decodePage(entry.Data)
			if decodeErr == nil {
				c.logger.Debug().Str("key", cacheKey.String()).Msg("Page cache hit")
				sourceRequestsTotal.WithLabelValues(req.Endpoint, "cached").Inc()
				page.Cached = true
				return page, nil
			}
			c.logger.Warn().Err(decodeErr).Str("key", cacheKey.String()).Msg("Discarding undecodable cache entry")
			_ = c.cache.Delete(ctx, cacheKey)
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", cacheKey.String()).Msg("Cache get error")
		}
	}

	if !req.Admitted {
		if err := c.Wait(ctx); err != nil {
			return nil, c.fail(req.Endpoint, "rate_limited", &SourceError{
				ErrorClass: ErrorClassNetwork,
				Message:    "rate limiter wait",
				Err:        err,
			})
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+req.Endpoint+"?"+req.Query().Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	sourceRequestDuration.WithLabelValues(req.Endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, c.fail(req.Endpoint, "network_error", &SourceError{
			ErrorClass: c.classifyError(nil, err),
			Message:    "request failed",
			Err:        err,
		})
	}
	defer resp.Body.Close()

	if errClass := c.classifyError(resp, nil); errClass != "" {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := resp.Status
		if len(bytes.TrimSpace(snippet)) > 0 {
			message += ": " + string(bytes.TrimSpace(snippet))
		}
		return nil, c.fail(req.Endpoint, strconv.Itoa(resp.StatusCode), &SourceError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    message,
		})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(req.Endpoint, "network_error", &SourceError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		})
	}

	page, err := decodePage(body)
	if err != nil {
		return nil, c.fail(req.Endpoint, "decode_error", &SourceError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode page",
			Err:        err,
		})
	}

	sourceRequestsTotal.WithLabelValues(req.Endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if useCache {
		entry := cache.NewEntry(resp.StatusCode, resp.Header, body, c.cache.DefaultTTL())
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Str("key", cacheKey.String()).Msg("Failed to cache page")
		}
	}

	return page, nil
}

// Wait blocks until the rate limiter admits one request. It returns
// immediately when no limit is configured. Callers that bound each request
// with a timeout should Wait on the outer context and then set
// PageRequest.Admitted, so queueing for a token does not eat the timeout.
func (c *Client) Wait(ctx context.Context) error {
	if c.rateLimiter == nil {
		return nil
	}
	return c.rateLimiter.Wait(ctx)
}

// fail records metrics for a failed request and returns err unchanged.
func (c *Client) fail(endpoint, status string, err *SourceError) error {
	sourceErrorsTotal.WithLabelValues(string(err.ErrorClass)).Inc()
	sourceRequestsTotal.WithLabelValues(endpoint, status).Inc()
	return err
}

// classifyError categorizes a failed request. A nil resp with nil err, or a
// 2xx response, is not an error and yields "".
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	if resp == nil {
		return ""
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ""
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	default:
		return ErrorClassServer
	}
}

// decodePage parses a page envelope, keeping numbers as json.Number so record
// identifiers are never rounded through float64.
func decodePage(data []byte) (*Page, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var page Page
	if err := dec.Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
