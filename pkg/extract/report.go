package extract

import (
	"time"

	"github.com/JingYou-data/serverless-data-microservice/pkg/client"
	"github.com/rs/zerolog"
)

// PageFailure records one page that exhausted its retries or hit a
// non-retryable error. Callers can use the list to selectively re-run
// only the failed pages.
type PageFailure struct {
	Page     int               `json:"page"`
	Class    client.ErrorClass `json:"class"`
	Attempts int               `json:"attempts"`
	Message  string            `json:"message"`
}

// RunReport is the structured summary of one extraction run. It is
// mutated incrementally by the orchestrator as pages resolve and
// finalized once at run end.
//
// Invariants: PagesSucceeded + PagesFailed equals pages processed so
// far, and RecordsWritten only increases, and only after rows have been
// durably appended to the sink.
type RunReport struct {
	PagesRequested int           `json:"pages_requested"`
	PagesSucceeded int           `json:"pages_succeeded"`
	PagesFailed    int           `json:"pages_failed"`
	TotalRetries   int           `json:"total_retries"`
	RecordsWritten int           `json:"records_written"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Failures       []PageFailure `json:"failures,omitempty"`
}

// addSuccess records a page whose rows were durably written.
func (r *RunReport) addSuccess(records int) {
	r.PagesSucceeded++
	r.RecordsWritten += records
}

// addFailure records a page that terminally failed.
func (r *RunReport) addFailure(f PageFailure) {
	r.PagesFailed++
	r.Failures = append(r.Failures, f)
}

// Elapsed returns the run duration. Falls back to time since start
// while the run is still in progress.
func (r *RunReport) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// LogSummary emits the report as a structured log event.
func (r *RunReport) LogSummary(logger zerolog.Logger) {
	event := logger.Info()
	if r.PagesFailed > 0 {
		event = logger.Warn()
	}

	event.
		Int("pages_requested", r.PagesRequested).
		Int("pages_succeeded", r.PagesSucceeded).
		Int("pages_failed", r.PagesFailed).
		Int("total_retries", r.TotalRetries).
		Int("records_written", r.RecordsWritten).
		Dur("elapsed", r.Elapsed()).
		Msg("Extraction run complete")

	for _, f := range r.Failures {
		logger.Warn().
			Int("page", f.Page).
			Str("error_class", string(f.Class)).
			Int("attempts", f.Attempts).
			Str("error", f.Message).
			Msg("Failed page")
	}
}
