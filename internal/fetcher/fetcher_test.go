package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibfetch/bibfetch/internal/cache"
	"github.com/bibfetch/bibfetch/internal/domain"
	"github.com/bibfetch/bibfetch/internal/observability"
	"github.com/bibfetch/bibfetch/internal/providers"
	"github.com/bibfetch/bibfetch/internal/providers/crossref"
)

// newTestFetcher builds a fetcher over the Crossref adapter pointed at the
// given server, with a fresh temp-dir cache.
func newTestFetcher(t *testing.T, serverURL string, maxResults int) *Fetcher {
	t.Helper()

	adapter := crossref.New(crossref.Config{
		BaseURL:   serverURL,
		RateLimit: 1000,
		BurstSize: 1000,
		PageSize:  100,
	}, zerolog.Nop())

	client := providers.NewHTTPClient(providers.HTTPClientConfig{
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		RetryDelay: 5 * time.Millisecond,
	}, providers.NewRateLimiter(1000, 1000))

	store, err := cache.NewFileStore(cache.FileStoreConfig{
		Dir:         t.TempDir(),
		Compression: true,
	}, zerolog.Nop())
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	f, err := New(adapter, client, store, maxResults, zerolog.Nop(), metrics)
	require.NoError(t, err)
	return f
}

func pageBody(total, n int, cursor string) string {
	items := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"DOI":"10.1000/rec%d"}`, i)
	}
	return fmt.Sprintf(
		`{"status":"ok","message-type":"work-list","message":{"total-results":%d,"items":[%s],"next-cursor":%q}}`,
		total, items, cursor)
}

func TestFetchIsIdempotent(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Query().Get("cursor") == "*" {
			fmt.Fprint(w, pageBody(120, 100, "AAA"))
			return
		}
		fmt.Fprint(w, pageBody(120, 0, ""))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, 10000)
	ctx := context.Background()

	first, err := f.Fetch(ctx, "crispr", nil, false)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))

	// The repeat is served from the cache: zero additional requests,
	// identical rows.
	second, err := f.Fetch(ctx, "crispr", nil, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))

	// forceRefresh bypasses the cache and re-fetches.
	_, err = f.Fetch(ctx, "crispr", nil, true)
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&requests))
}

func TestFetchRowContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageBody(2, 2, ""))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, 10000)
	rows, err := f.Fetch(context.Background(), "neural networks", map[string]string{"rows": "2"}, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, domain.NewQuery("neural networks", map[string]string{"rows": "2"}).Canonical(), row.ID)
	assert.Equal(t, 0, row.Page)
	assert.Equal(t, 2, row.NumHits)
	assert.NotNil(t, row.Data)
	assert.Empty(t, row.Error)
}

func TestFetchErrorRunsAreCachedAsRows(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		fmt.Fprint(w, `{"status":"error","message-type":"bad-query"}`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, 10000)
	ctx := context.Background()

	rows, err := f.Fetch(ctx, "broken", nil, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bad-query", rows[0].Error)
	assert.Nil(t, rows[0].Data)

	// The error terminal is data: the repeat is a cache hit.
	_, err = f.Fetch(ctx, "broken", nil, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestPurgeExceededCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("query") {
		case "oversized":
			fmt.Fprint(w, pageBody(20000, 100, "AAA"))
		default:
			fmt.Fprint(w, pageBody(10, 10, ""))
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, 10000)
	ctx := context.Background()

	capped, err := f.Fetch(ctx, "oversized", nil, false)
	require.NoError(t, err)
	assert.True(t, domain.RowsExceedCap(capped, f.MaxResults()))

	_, err = f.Fetch(ctx, "normal", nil, false)
	require.NoError(t, err)

	purged, err := f.PurgeExceededCap()
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	// Only the capped entry was removed.
	infos, err := f.Store().Keys()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "normal", infos[0].Query)
}

func TestFetchRecord(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		switch r.URL.Path {
		case "/10.1038/nature14539":
			fmt.Fprint(w, `{"status":"ok","message":{"DOI":"10.1038/nature14539","title":["Deep learning"]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, 10000)
	ctx := context.Background()

	t.Run("lookup and cache", func(t *testing.T) {
		record, err := f.FetchRecord(ctx, "10.1038/nature14539", false)
		require.NoError(t, err)
		assert.Contains(t, string(record), "Deep learning")

		before := atomic.LoadInt32(&requests)
		again, err := f.FetchRecord(ctx, "10.1038/nature14539", false)
		require.NoError(t, err)
		assert.Equal(t, string(record), string(again))
		assert.Equal(t, before, atomic.LoadInt32(&requests))
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := f.FetchRecord(ctx, "10.9999/missing", false)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestFetchAbandonedRunIsNotCached(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		fmt.Fprint(w, pageBody(10, 10, ""))
	}))
	defer srv.Close()
	defer close(block)

	f := newTestFetcher(t, srv.URL, 10000)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, "slow", nil, false)
	require.Error(t, err)

	infos, err := f.Store().Keys()
	require.NoError(t, err)
	assert.Empty(t, infos)
}
