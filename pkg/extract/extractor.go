// Package extract drives the page-by-page extraction run: it plans the
// page range from pagination metadata, fetches each page through the
// retrying client, normalizes records, streams them to the sink, and
// accumulates the run report. Pages are processed strictly in
// increasing order so the output file is a well-defined, resumable
// prefix after a crash.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/JingYou-data/serverless-data-microservice/pkg/client"
	"github.com/JingYou-data/serverless-data-microservice/pkg/normalize"
	"github.com/JingYou-data/serverless-data-microservice/pkg/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for ingestion progress.
var (
	ingestPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_pages_total",
		Help: "Pages processed by outcome",
	}, []string{"status"})

	ingestRecordsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_records_written_total",
		Help: "Records durably appended to the output file",
	})
)

// ErrMetadataFetch is returned when the pagination metadata cannot be
// fetched. It is the only failure that aborts an entire run: without
// metadata no page plan can be formed.
var ErrMetadataFetch = errors.New("metadata fetch failed")

// Config holds orchestrator settings.
type Config struct {
	// PageSize is the number of records requested per page.
	PageSize int

	// InterPageDelay is an optional pause between pages to stay under
	// the upstream rate limit. A jitter of up to half the delay is added.
	InterPageDelay time.Duration
}

// Extractor owns one extraction run: the report accumulator and the
// sink handle are touched by no one else, so no locking is needed.
type Extractor struct {
	client     *client.Client
	normalizer *normalize.Normalizer
	writer     *sink.Writer
	config     Config
	logger     zerolog.Logger
}

// New creates an Extractor writing through the given sink.
func New(c *client.Client, n *normalize.Normalizer, w *sink.Writer, cfg Config) (*Extractor, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if n == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if w == nil {
		return nil, fmt.Errorf("sink writer is required")
	}
	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("page_size must be >= 1 (got %d)", cfg.PageSize)
	}

	return &Extractor{
		client:     c,
		normalizer: n,
		writer:     w,
		config:     cfg,
		logger:     log.With().Str("component", "extractor").Logger(),
	}, nil
}

// Run executes the full extraction. The first page doubles as the
// metadata fetch: the API embeds total_pages in every page response. A
// failure there wraps ErrMetadataFetch and aborts the run. After that,
// individual page failures are recorded in the report and the run
// continues; one bad page never aborts the run.
//
// The report is returned in every case, including early aborts, so
// callers can always see how far the run got.
func (e *Extractor) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{StartedAt: time.Now()}

	e.logger.Info().
		Int("page_size", e.config.PageSize).
		Msg("Starting extraction run")

	// First page: pagination metadata plus the first batch of records.
	report.PagesRequested++
	first, retries, err := e.client.FetchPageWithRetry(ctx, client.PageRequest{Page: 1, Limit: e.config.PageSize})
	report.TotalRetries += retries
	if err != nil {
		report.addFailure(pageFailureFrom(1, err))
		ingestPagesTotal.WithLabelValues("failed").Inc()
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("%w: %v", ErrMetadataFetch, err)
	}

	totalPages := first.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}

	e.logger.Info().
		Int("total_pages", totalPages).
		Int("total_records", first.TotalRecords).
		Msg("Pagination metadata fetched")

	if err := e.writePage(first, report); err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}

	for page := 2; page <= totalPages; page++ {
		// Cooperative cancellation between pages; an in-flight attempt
		// always runs to completion first.
		if err := ctx.Err(); err != nil {
			e.logger.Warn().Int("next_page", page).Msg("Run cancelled between pages")
			report.FinishedAt = time.Now()
			return report, fmt.Errorf("%w: %v", client.ErrContextCancelled, err)
		}

		if err := e.pause(ctx); err != nil {
			report.FinishedAt = time.Now()
			return report, fmt.Errorf("%w: %v", client.ErrContextCancelled, err)
		}

		report.PagesRequested++
		data, retries, err := e.client.FetchPageWithRetry(ctx, client.PageRequest{Page: page, Limit: e.config.PageSize})
		report.TotalRetries += retries
		if err != nil {
			report.addFailure(pageFailureFrom(page, err))
			ingestPagesTotal.WithLabelValues("failed").Inc()
			e.logger.Warn().
				Err(err).
				Int("page", page).
				Int("total_pages", totalPages).
				Msg("Page failed, continuing run")
			continue
		}

		if err := e.writePage(data, report); err != nil {
			report.FinishedAt = time.Now()
			return report, err
		}

		e.logger.Info().
			Int("page", page).
			Int("total_pages", totalPages).
			Int("records", len(data.Records)).
			Msg("Page written")
	}

	report.FinishedAt = time.Now()
	report.LogSummary(e.logger)

	return report, nil
}

// writePage normalizes one page of records and durably appends them.
// The report only advances after the sink confirms the write. A sink
// failure is a local-disk fault and aborts the run.
func (e *Extractor) writePage(data *client.PageData, report *RunReport) error {
	rows := make([][]string, 0, len(data.Records))
	for _, record := range data.Records {
		rows = append(rows, e.normalizer.Normalize(record))
	}

	if err := e.writer.WriteRows(rows); err != nil {
		return fmt.Errorf("write page %d: %w", data.Page, err)
	}

	report.addSuccess(len(rows))
	ingestPagesTotal.WithLabelValues("ok").Inc()
	ingestRecordsWrittenTotal.Add(float64(len(rows)))

	return nil
}

// pause sleeps the configured inter-page delay plus jitter, honoring
// cancellation.
func (e *Extractor) pause(ctx context.Context) error {
	if e.config.InterPageDelay <= 0 {
		return nil
	}

	delay := e.config.InterPageDelay
	delay += time.Duration(rand.Float64() * float64(delay) / 2)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// pageFailureFrom converts a terminal page error into its report entry.
func pageFailureFrom(page int, err error) PageFailure {
	var pageErr *client.PageError
	if errors.As(err, &pageErr) {
		return PageFailure{
			Page:     pageErr.Page,
			Class:    pageErr.Class,
			Attempts: pageErr.Attempts,
			Message:  err.Error(),
		}
	}

	return PageFailure{
		Page:    page,
		Class:   client.ClassOf(err),
		Message: err.Error(),
	}
}
