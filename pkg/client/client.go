// Package client provides the HTTP client for the paginated records API
// with failure classification, bounded retries, and rate-limit gating.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/JingYou-data/serverless-data-microservice/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total API requests by status",
	}, []string{"status"})

	apiRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents non-retryable 4xx client errors
	// (401/403/404 - misconfiguration or exhausted authorization).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents retryable 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection failures, timeouts, and
	// malformed response bodies. Retried like server errors.
	ErrorClassNetwork ErrorClass = "network"
)

// PageRequest identifies one page of the remote record set.
type PageRequest struct {
	Page  int // 1-based page index
	Limit int // records per page
}

// PageData is the parsed payload of one successfully fetched page.
type PageData struct {
	Page         int
	Records      []map[string]any
	TotalPages   int
	TotalRecords int
}

// pageEnvelope mirrors the API response body. Every page response
// carries pagination metadata alongside the records.
type pageEnvelope struct {
	Data     []map[string]any `json:"data"`
	Metadata pageMetadata     `json:"metadata"`
}

type pageMetadata struct {
	TotalPages   int `json:"total_pages"`
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalRecords int `json:"total_records"`
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API base URL (scheme + host).
	BaseURL string

	// Endpoint is the records endpoint path.
	Endpoint string

	// Token is the bearer credential supplied externally.
	Token string

	// MaxAttempts bounds the retry loop per page (including the initial request).
	MaxAttempts int

	// Backoff computes retry wait durations.
	Backoff BackoffPolicy

	// RequestTimeout bounds each individual network call. A timeout does
	// not retry by itself; it surfaces as a network error to the retry loop.
	RequestTimeout time.Duration

	// RateLimiter gates requests on the shared error budget. Optional;
	// a nil tracker disables gating.
	RateLimiter *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:        baseURL,
		Endpoint:       "/api/v1/customers",
		Token:          token,
		MaxAttempts:    5,
		Backoff:        DefaultBackoffPolicy(),
		RequestTimeout: 30 * time.Second,
	}
}

// Client fetches pages from the remote records API.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("API token is required")
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.MaxAttempts)
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = "/api/v1/customers"
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	if cfg.Backoff.InitialWait <= 0 {
		cfg.Backoff = DefaultBackoffPolicy()
	}
	if cfg.Backoff.MaxWait <= 0 {
		cfg.Backoff.MaxWait = DefaultBackoffPolicy().MaxWait
	}

	logger := log.With().Str("component", "api-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		rateLimiter: cfg.RateLimiter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// FetchPage performs a single network call for one page and classifies
// the outcome. It never retries; callers that want retries use
// FetchPageWithRetry.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*PageData, error) {
	startTime := time.Now()
	defer func() {
		apiRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	// Gate on the shared error budget before spending a request.
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Rate limit check failed, proceeding without gate")
		} else if !allowed {
			apiRequestsTotal.WithLabelValues("blocked").Inc()
			return nil, &APIError{
				Class:   ErrorClassRateLimit,
				Message: "blocked by rate-limit gate",
				Err:     ErrRequestBlocked,
			}
		}
	}

	httpReq, err := c.newPageRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		apiRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Warn().Err(err).Int("page", req.Page).Msg("HTTP request failed")
		return nil, &APIError{
			Class:   ErrorClassNetwork,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	// Update the shared error budget from response headers.
	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	apiRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		apiErrorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Warn().
			Int("page", req.Page).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("API request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	var envelope pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		// A malformed body is as retryable as a dropped connection.
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		c.logger.Warn().Err(err).Int("page", req.Page).Msg("Malformed response body")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "malformed response body",
			Err:        err,
		}
	}

	c.logger.Debug().
		Int("page", req.Page).
		Int("records", len(envelope.Data)).
		Int("total_pages", envelope.Metadata.TotalPages).
		Msg("Page fetched")

	return &PageData{
		Page:         req.Page,
		Records:      envelope.Data,
		TotalPages:   envelope.Metadata.TotalPages,
		TotalRecords: envelope.Metadata.TotalRecords,
	}, nil
}

// newPageRequest builds the HTTP request for one page.
func (c *Client) newPageRequest(ctx context.Context, req PageRequest) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+c.config.Endpoint, nil)
	if err != nil {
		return nil, err
	}

	q := httpReq.URL.Query()
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("limit", strconv.Itoa(req.Limit))
	httpReq.URL.RawQuery = q.Encode()

	httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	httpReq.Header.Set("Accept", "application/json")

	return httpReq, nil
}

// classifyStatus categorizes an HTTP status code for retry handling.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// MaxAttempts returns the configured retry bound.
func (c *Client) MaxAttempts() int {
	return c.config.MaxAttempts
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
