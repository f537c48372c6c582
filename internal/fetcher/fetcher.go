// Package fetcher is the caller-facing facade: cache-first paginated
// searches, single-record point lookups, and cache maintenance, one
// Fetcher per provider.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bibfetch/bibfetch/internal/cache"
	"github.com/bibfetch/bibfetch/internal/domain"
	"github.com/bibfetch/bibfetch/internal/engine"
	"github.com/bibfetch/bibfetch/internal/observability"
	"github.com/bibfetch/bibfetch/internal/providers"
)

// maxRecordBodyBytes caps point-lookup response reads.
const maxRecordBodyBytes = 10 << 20

// Fetcher coordinates one provider's engine with its cache store. It is
// safe for concurrent use: the store serializes same-key operations and
// the engine shares a rate limiter across concurrent runs.
type Fetcher struct {
	adapter    providers.Adapter
	engine     *engine.Engine
	client     *providers.HTTPClient
	headers    http.Header
	store      cache.Store
	maxResults int
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// New creates a Fetcher for the given adapter. Construction fails when a
// mandatory credential is absent, so misconfiguration surfaces before the
// first query rather than mid-batch.
func New(adapter providers.Adapter, client *providers.HTTPClient, store cache.Store, maxResults int, logger zerolog.Logger, metrics *observability.Metrics) (*Fetcher, error) {
	headers, err := adapter.Headers()
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(adapter, client, maxResults, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		adapter:    adapter,
		engine:     eng,
		client:     client,
		headers:    headers,
		store:      store,
		maxResults: maxResults,
		logger:     observability.WithProviderContext(logger, adapter.Name()),
		metrics:    metrics,
	}, nil
}

// Name returns the provider identifier this fetcher serves.
func (f *Fetcher) Name() string {
	return f.adapter.Name()
}

// Store returns the cache store backing this fetcher.
func (f *Fetcher) Store() cache.Store {
	return f.store
}

// MaxResults returns the per-query record cap.
func (f *Fetcher) MaxResults() int {
	return f.maxResults
}

// Fetch runs a cache-first paginated search. A cache hit short-circuits
// the network entirely; otherwise the full run executes and its rows are
// persisted before returning, so repeating the same query is idempotent.
// Terminal outcomes (done, capped, error) all come back as rows: Fetch
// only returns an error for cancellation.
func (f *Fetcher) Fetch(ctx context.Context, query string, params map[string]string, forceRefresh bool) ([]domain.Row, error) {
	q := domain.NewQuery(query, params)
	key := q.Key()
	logger := observability.WithQueryContext(f.logger, q.Canonical(), key)

	if !forceRefresh {
		if rows, ok := f.store.Get(key); ok {
			f.metrics.CacheHits.Inc()
			logger.Debug().Int("rows", len(rows)).Msg("cache hit")
			return rows, nil
		}
	}
	f.metrics.CacheMisses.Inc()

	result := f.engine.Run(ctx, query, params)

	rows := make([]domain.Row, 0, len(result.Pages))
	for _, p := range result.Pages {
		rows = append(rows, domain.PageRow(q.Canonical(), p))
	}

	// An abandoned run must not poison the cache: only completed runs
	// (including capped and error terminals) are persisted.
	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Msg("fetch abandoned, skipping cache write")
		return rows, err
	}

	if err := f.store.Put(key, q.Canonical(), rows); err != nil {
		logger.Warn().Err(err).Msg("cache write failed")
	}

	logger.Info().
		Str("status", string(result.Status)).
		Int("rows", len(rows)).
		Int("records", domain.RecordCount(rows)).
		Msg("fetch complete")

	return rows, nil
}

// FetchRecord looks up a single record by identifier (DOI, EID, ...),
// bypassing pagination. Lookups are cached under a keyspace disjoint from
// searches. Unlike Fetch, a lookup failure is an error: the caller asked
// for one specific record.
func (f *Fetcher) FetchRecord(ctx context.Context, id string, forceRefresh bool) (json.RawMessage, error) {
	q := domain.NewQuery("record:"+id, nil)
	key := q.Key()
	logger := observability.WithQueryContext(f.logger, q.Canonical(), key)

	if !forceRefresh {
		if rows, ok := f.store.Get(key); ok && len(rows) == 1 && rows[0].Data != nil {
			f.metrics.CacheHits.Inc()
			logger.Debug().Msg("cache hit")
			return rows[0].Data, nil
		}
	}
	f.metrics.CacheMisses.Inc()

	rawURL, err := f.adapter.RecordURL(id)
	if err != nil {
		return nil, fmt.Errorf("building record URL: %w", err)
	}

	body, err := f.get(ctx, rawURL, id)
	if err != nil {
		return nil, err
	}

	record, err := f.adapter.ParseRecord(body)
	if err != nil {
		return nil, err
	}

	row := domain.Row{ID: id, Page: 0, NumHits: 1, Data: record}
	if err := f.store.Put(key, q.Canonical(), []domain.Row{row}); err != nil {
		logger.Warn().Err(err).Msg("cache write failed")
	}

	return record, nil
}

// PurgeExceededCap removes cached entries recording a capped run: entries
// whose declared total exceeds the current cap. Run after raising the cap
// so the affected queries re-fetch completely. Returns the number of
// entries removed.
func (f *Fetcher) PurgeExceededCap() (int, error) {
	infos, err := f.store.Keys()
	if err != nil {
		return 0, fmt.Errorf("enumerating cache: %w", err)
	}

	purged := 0
	for _, info := range infos {
		rows, ok := f.store.Get(info.Key)
		if !ok {
			continue
		}
		if !domain.RowsExceedCap(rows, f.maxResults) {
			continue
		}
		if err := f.store.Delete(info.Key); err != nil {
			f.logger.Warn().Err(err).Str("cache_key", info.Key).Msg("failed to purge cache entry")
			continue
		}
		f.metrics.CachePurged.Inc()
		purged++
	}

	f.logger.Info().Int("purged", purged).Int("cap", f.maxResults).Msg("cache purge complete")
	return purged, nil
}

// get issues one rate-limited GET for a point lookup and maps HTTP-level
// failures into the error taxonomy.
func (f *Fetcher) get(ctx context.Context, rawURL, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range f.headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	f.metrics.RequestsTotal.WithLabelValues(f.adapter.Name()).Inc()

	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.RequestsFailed.WithLabelValues(f.adapter.Name()).Inc()
		return nil, domain.NewExternalAPIError(f.adapter.Name(), 0, "request failed", err)
	}
	defer resp.Body.Close()

	f.adapter.ObserveQuota(resp.Header, f.client.RateLimiter())

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("record", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewExternalAPIError(f.adapter.Name(), resp.StatusCode, "unexpected status", nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}
