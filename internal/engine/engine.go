// Package engine drives a provider adapter through repeated requests
// until pagination is exhausted, the per-query cap is reached, or an
// error terminates the run.
//
// The engine is a small state machine, START -> FETCHING -> {DONE,
// CAPPED, ERROR}, and it never raises past its boundary: exhausted
// retries and provider rejections are recorded as error-tagged pages so
// batch callers can keep processing other queries.
package engine

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bibfetch/bibfetch/internal/domain"
	"github.com/bibfetch/bibfetch/internal/observability"
	"github.com/bibfetch/bibfetch/internal/providers"
)

// maxBodyBytes caps response body reads to protect against unbounded payloads.
const maxBodyBytes = 10 << 20

// Result is the outcome of one fetch run: the accumulated pages plus the
// terminal status.
type Result struct {
	// Pages are the fetched pages in order, including an error-tagged
	// page for ERROR runs and an annotated marker page for CAPPED runs.
	Pages []domain.Page

	// Status is the terminal state of the run.
	Status domain.RunStatus
}

// Engine runs paginated fetches for one provider adapter.
type Engine struct {
	adapter providers.Adapter
	client  *providers.HTTPClient
	headers http.Header
	cap     int
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates an engine for the given adapter. Authentication is set up
// once here, so a missing mandatory credential fails construction rather
// than the first fetch. maxResults is the per-query record cap.
func New(adapter providers.Adapter, client *providers.HTTPClient, maxResults int, logger zerolog.Logger, metrics *observability.Metrics) (*Engine, error) {
	headers, err := adapter.Headers()
	if err != nil {
		return nil, err
	}

	return &Engine{
		adapter: adapter,
		client:  client,
		headers: headers,
		cap:     maxResults,
		logger:  observability.WithProviderContext(logger, adapter.Name()),
		metrics: metrics,
	}, nil
}

// Run fetches all pages for the query until a terminal state is reached.
// Cancellation via ctx terminates the run at the next page boundary.
func (e *Engine) Run(ctx context.Context, query string, params map[string]string) *Result {
	runID := uuid.NewString()
	start := time.Now()

	currentURL, err := e.adapter.BuildSearchURL(query, params)
	if err != nil {
		e.logger.Error().Err(err).Str("run_id", runID).Msg("building search URL")
		return e.finish(runID, start, []domain.Page{{Index: 0, Error: "invalid_request"}}, domain.RunError)
	}

	var pages []domain.Page
	accumulated := 0

	for pageIndex := 0; ; pageIndex++ {
		logger := observability.WithRunContext(e.logger, runID, pageIndex)

		body, respHeader, err := e.get(ctx, currentURL)
		if err != nil {
			logger.Error().Err(err).Msg("request failed after retries")
			e.metrics.RequestsFailed.WithLabelValues(e.adapter.Name()).Inc()
			pages = append(pages, domain.Page{Index: pageIndex, Error: "network_error"})
			return e.finish(runID, start, pages, domain.RunError)
		}

		// Advisory quota headers refine the limiter; failures inside are
		// logged by the adapter and never abort the run.
		e.adapter.ObserveQuota(respHeader, e.client.RateLimiter())

		page := e.adapter.ParsePage(body, pageIndex)
		if page.Error != "" {
			logger.Warn().Str("error_tag", page.Error).Msg("provider rejected the query")
			pages = append(pages, *page)
			return e.finish(runID, start, pages, domain.RunError)
		}

		pages = append(pages, *page)
		accumulated += len(page.Records)
		e.metrics.PagesFetched.WithLabelValues(e.adapter.Name()).Inc()
		e.metrics.RecordsFetched.WithLabelValues(e.adapter.Name()).Add(float64(len(page.Records)))

		e.logProgress(logger, page, accumulated)

		// The cap compares the provider's declared total; the accumulated
		// guard additionally stops a mis-reporting provider from driving
		// unbounded pagination. The marker page (nil records, declared
		// total) is what cache maintenance later matches.
		if page.TotalResults > e.cap || accumulated > e.cap {
			logger.Info().
				Int("total_results", page.TotalResults).
				Int("accumulated", accumulated).
				Int("cap", e.cap).
				Msg("declared total exceeds per-query cap, truncating run")
			pages = append(pages, domain.Page{
				Index:        pageIndex + 1,
				TotalResults: page.TotalResults,
			})
			return e.finish(runID, start, pages, domain.RunCapped)
		}

		next, ok := e.adapter.NextPageURL(body, currentURL)
		if !ok {
			return e.finish(runID, start, pages, domain.RunDone)
		}
		currentURL = next
	}
}

// get issues one rate-limited GET and returns the response body and headers.
func (e *Engine) get(ctx context.Context, rawURL string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	for k, vs := range e.headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	e.metrics.RequestsTotal.WithLabelValues(e.adapter.Name()).Inc()

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.Header, err
	}
	return body, resp.Header, nil
}

// finish records run metrics and assembles the result.
func (e *Engine) finish(runID string, start time.Time, pages []domain.Page, status domain.RunStatus) *Result {
	duration := time.Since(start)
	e.metrics.FetchDuration.WithLabelValues(e.adapter.Name(), string(status)).Observe(duration.Seconds())
	e.logger.Info().
		Str("run_id", runID).
		Str("status", string(status)).
		Int("pages", len(pages)).
		Dur("duration", duration).
		Msg("fetch run finished")

	return &Result{Pages: pages, Status: status}
}

// logProgress logs per-page progress at debug level.
func (e *Engine) logProgress(logger zerolog.Logger, page *domain.Page, accumulated int) {
	logger.Debug().
		Int("records", len(page.Records)).
		Int("total_results", page.TotalResults).
		Int("accumulated", accumulated).
		Msg("fetched page")
}
