package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	apiRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// FetchPageWithRetry wraps FetchPage in a bounded retry loop driven by
// the backoff policy. It returns the page data, the number of retries
// spent (sleeps taken, not counting the initial attempt), and a
// terminal *PageError on failure.
//
// Retryable failures (rate limit, server, network) sleep and try again
// while attempts remain. Client errors abort immediately: credential
// and authorization problems do not self-heal.
func (c *Client) FetchPageWithRetry(ctx context.Context, req PageRequest) (*PageData, int, error) {
	var lastErr error
	retries := 0

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		data, err := c.FetchPage(ctx, req)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Int("page", req.Page).
					Int("attempt", attempt).
					Msg("Page fetch succeeded after retry")
			}
			return data, retries, nil
		}

		lastErr = err
		class := ClassOf(err)

		if !shouldRetry(class) {
			// Non-retryable: abort this page after a single attempt.
			return nil, retries, &PageError{
				Page:     req.Page,
				Class:    class,
				Attempts: attempt,
				Err:      err,
			}
		}

		// Last attempt failed retryably: exhausted.
		if attempt >= c.config.MaxAttempts {
			break
		}

		retries++
		apiRetriesTotal.WithLabelValues(string(class)).Inc()

		wait := c.config.Backoff.Wait(attempt, class)
		apiRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		c.logger.Debug().
			Int("page", req.Page).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying page fetch after backoff")

		select {
		case <-ctx.Done():
			c.logger.Warn().
				Int("page", req.Page).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return nil, retries, &PageError{
				Page:     req.Page,
				Class:    class,
				Attempts: attempt,
				Err:      fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err()),
			}
		case <-time.After(wait):
		}
	}

	class := ClassOf(lastErr)
	apiRetryExhaustedTotal.WithLabelValues(string(class)).Inc()

	c.logger.Warn().
		Int("page", req.Page).
		Str("error_class", string(class)).
		Int("max_attempts", c.config.MaxAttempts).
		Msg("Retry attempts exhausted for page")

	return nil, retries, &PageError{
		Page:     req.Page,
		Class:    class,
		Attempts: c.config.MaxAttempts,
		Err:      fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, c.config.MaxAttempts, lastErr),
	}
}
