package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibfetch/bibfetch/internal/cache"
	"github.com/bibfetch/bibfetch/internal/domain"
	"github.com/bibfetch/bibfetch/internal/fetcher"
	"github.com/bibfetch/bibfetch/internal/observability"
	"github.com/bibfetch/bibfetch/internal/providers"
	"github.com/bibfetch/bibfetch/internal/providers/crossref"
)

// newTestServer wires a server whose crossref fetcher talks to the given
// upstream stub.
func newTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()

	adapter := crossref.New(crossref.Config{
		BaseURL:   upstreamURL,
		RateLimit: 1000,
		BurstSize: 1000,
	}, zerolog.Nop())

	client := providers.NewHTTPClient(providers.HTTPClientConfig{
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		RetryDelay: 5 * time.Millisecond,
	}, providers.NewRateLimiter(1000, 1000))

	store, err := cache.NewFileStore(cache.FileStoreConfig{Dir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	f, err := fetcher.New(adapter, client, store, 10000, zerolog.Nop(), observability.NewMetrics(promReg))
	require.NoError(t, err)

	registry := fetcher.NewRegistry()
	registry.Register(f)

	return NewServer(Config{Address: "127.0.0.1:0"}, registry, promReg, zerolog.Nop())
}

// upstreamStub serves a fixed single-page search result and one known DOI.
func upstreamStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/10.1038/nature14539" {
			fmt.Fprint(w, `{"status":"ok","message":{"DOI":"10.1038/nature14539"}}`)
			return
		}
		if r.URL.Query().Get("q") != "" || r.URL.Query().Get("query") != "" {
			fmt.Fprint(w, `{"status":"ok","message":{"total-results":1,"items":[{"DOI":"10.1/x"}],"next-cursor":""}}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	upstream := upstreamStub(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	rec := doRequest(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListProviders(t *testing.T) {
	upstream := upstreamStub(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/providers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crossref")
}

func TestSearchHandler(t *testing.T) {
	upstream := upstreamStub(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	t.Run("unknown provider", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/pubmed/search?q=x")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing query", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/crossref/search")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("successful search", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/crossref/search?q=crispr")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp searchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "crossref", resp.Provider)
		assert.Equal(t, "crispr", resp.Query)
		assert.Equal(t, 1, resp.RecordCount)
		require.Len(t, resp.Rows, 1)
		assert.Equal(t, 1, resp.Rows[0].NumHits)
	})

	t.Run("extra params are forwarded into the cache key", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/crossref/search?q=crispr&filter=type:journal-article")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp searchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Rows, 1)
		assert.Contains(t, resp.Rows[0].ID, "filter=type:journal-article")
	})
}

func TestRecordHandler(t *testing.T) {
	upstream := upstreamStub(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	t.Run("DOI with slash resolves via wildcard", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/crossref/records/10.1038/nature14539")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "10.1038/nature14539")
	})

	t.Run("missing record returns 404", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/crossref/records/10.9999/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCacheEndpoints(t *testing.T) {
	upstream := upstreamStub(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	// Seed the cache through a search.
	rec := doRequest(t, s, http.MethodGet, "/api/v1/crossref/search?q=crispr")
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("list", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/crossref/cache")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Count   int             `json:"count"`
			Entries []cache.KeyInfo `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
		assert.Equal(t, "crispr", body.Entries[0].Query)
	})

	t.Run("delete", func(t *testing.T) {
		key := domain.NewQuery("crispr", map[string]string{}).Key()
		rec := doRequest(t, s, http.MethodDelete, "/api/v1/crossref/cache/"+key)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(t, s, http.MethodGet, "/api/v1/crossref/cache")
		assert.Contains(t, rec.Body.String(), `"count":0`)
	})

	t.Run("purge-capped with nothing capped", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/api/v1/crossref/cache/purge-capped")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"purged":0`)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	upstream := upstreamStub(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	// Generate some traffic first.
	doRequest(t, s, http.MethodGet, "/api/v1/crossref/search?q=crispr")

	rec := doRequest(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bibfetch_provider_requests_total")
}
