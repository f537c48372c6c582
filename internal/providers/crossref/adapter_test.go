package crossref

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibfetch/bibfetch/internal/providers"
)

func newTestClient(mailto string) *Client {
	return New(Config{
		Mailto:   mailto,
		PageSize: 100,
	}, zerolog.Nop())
}

// samplePageBody returns a search response with n records and the given cursor.
func samplePageBody(total, n int, cursor string) []byte {
	items := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"DOI":"10.1000/rec%d"}`, i)
	}
	return []byte(fmt.Sprintf(
		`{"status":"ok","message-type":"work-list","message":{"total-results":%d,"items":[%s],"next-cursor":%q}}`,
		total, items, cursor))
}

func TestBuildSearchURL(t *testing.T) {
	t.Run("defaults and sentinel cursor", func(t *testing.T) {
		c := newTestClient("dev@example.com")

		rawURL, err := c.BuildSearchURL("neural networks", nil)
		require.NoError(t, err)

		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "neural networks", q.Get("query"))
		assert.Equal(t, "100", q.Get("rows"))
		assert.Equal(t, "*", q.Get("cursor"))
		assert.Equal(t, "dev@example.com", q.Get("mailto"))
	})

	t.Run("params override defaults", func(t *testing.T) {
		c := newTestClient("")

		rawURL, err := c.BuildSearchURL("crispr", map[string]string{
			"rows":   "10",
			"filter": "from-pub-date:2020-01-01",
		})
		require.NoError(t, err)

		q, err := url.ParseQuery(mustParse(t, rawURL).RawQuery)
		require.NoError(t, err)
		assert.Equal(t, "10", q.Get("rows"))
		assert.Equal(t, "from-pub-date:2020-01-01", q.Get("filter"))
		assert.Empty(t, q.Get("mailto"))
	})

	t.Run("field query without free text omits query param", func(t *testing.T) {
		c := newTestClient("")

		rawURL, err := c.BuildSearchURL("", map[string]string{"query.title": "attention"})
		require.NoError(t, err)

		q := mustParse(t, rawURL).Query()
		assert.Equal(t, "attention", q.Get("query.title"))
		assert.False(t, q.Has("query"))
	})
}

func TestParsePage(t *testing.T) {
	c := newTestClient("")

	t.Run("healthy page", func(t *testing.T) {
		page := c.ParsePage(samplePageBody(150, 2, "AAA"), 0)
		assert.Empty(t, page.Error)
		assert.Equal(t, 150, page.TotalResults)
		assert.Len(t, page.Records, 2)
		assert.Equal(t, "AAA", page.Cursor)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		page := c.ParsePage([]byte("not json"), 3)
		assert.Equal(t, "invalid_response", page.Error)
		assert.Equal(t, 3, page.Index)
		assert.Nil(t, page.Records)
	})

	t.Run("non-ok status uses message type tag", func(t *testing.T) {
		page := c.ParsePage([]byte(`{"status":"error","message-type":"bad-query"}`), 0)
		assert.Equal(t, "bad-query", page.Error)
	})

	t.Run("non-ok status without message type", func(t *testing.T) {
		page := c.ParsePage([]byte(`{"status":"failed"}`), 0)
		assert.Equal(t, "unknown_error", page.Error)
	})

	t.Run("ok status without message", func(t *testing.T) {
		page := c.ParsePage([]byte(`{"status":"ok","message-type":"work-list"}`), 0)
		assert.Equal(t, "no_message", page.Error)
	})
}

func TestNextPageURL(t *testing.T) {
	c := newTestClient("")

	t.Run("rewrites cursor leaving exactly one", func(t *testing.T) {
		current := "https://api.crossref.org/works?cursor=%2A&query=crispr&rows=100"

		next, ok := c.NextPageURL(samplePageBody(150, 2, "BBB"), current)
		require.True(t, ok)

		u := mustParse(t, next)
		cursors := u.Query()["cursor"]
		require.Len(t, cursors, 1)
		assert.Equal(t, "BBB", cursors[0])
		assert.Equal(t, "crispr", u.Query().Get("query"))
	})

	t.Run("replaces duplicate cursors", func(t *testing.T) {
		current := "https://api.crossref.org/works?cursor=AAA&cursor=XXX&query=crispr"

		next, ok := c.NextPageURL(samplePageBody(150, 2, "CCC"), current)
		require.True(t, ok)
		assert.Equal(t, []string{"CCC"}, mustParse(t, next).Query()["cursor"])
	})

	t.Run("empty page terminates even with a cursor", func(t *testing.T) {
		_, ok := c.NextPageURL(samplePageBody(150, 0, "DDD"), "https://api.crossref.org/works?cursor=x")
		assert.False(t, ok)
	})

	t.Run("missing cursor terminates", func(t *testing.T) {
		_, ok := c.NextPageURL(samplePageBody(150, 2, ""), "https://api.crossref.org/works?cursor=x")
		assert.False(t, ok)
	})
}

func TestRecordURL(t *testing.T) {
	t.Run("appends DOI and mailto", func(t *testing.T) {
		c := newTestClient("dev@example.com")

		rawURL, err := c.RecordURL("10.1038/nature14539")
		require.NoError(t, err)

		u := mustParse(t, rawURL)
		assert.Equal(t, "/works/10.1038/nature14539", u.Path)
		assert.Equal(t, "dev@example.com", u.Query().Get("mailto"))
	})

	t.Run("strips doi prefix", func(t *testing.T) {
		c := newTestClient("")
		rawURL, err := c.RecordURL("doi:10.1/x")
		require.NoError(t, err)
		assert.Contains(t, rawURL, "/works/10.1/x")
	})

	t.Run("empty DOI fails", func(t *testing.T) {
		c := newTestClient("")
		_, err := c.RecordURL("  ")
		assert.Error(t, err)
	})
}

func TestParseRecord(t *testing.T) {
	c := newTestClient("")

	t.Run("unwraps message", func(t *testing.T) {
		record, err := c.ParseRecord([]byte(`{"status":"ok","message":{"DOI":"10.1/x"}}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"DOI":"10.1/x"}`, string(record))
	})

	t.Run("non-ok status fails", func(t *testing.T) {
		_, err := c.ParseRecord([]byte(`{"status":"error"}`))
		assert.Error(t, err)
	})
}

func TestHeaders(t *testing.T) {
	t.Run("polite pool user agent", func(t *testing.T) {
		c := newTestClient("dev@example.com")
		h, err := c.Headers()
		require.NoError(t, err)
		assert.Contains(t, h.Get("User-Agent"), "mailto:dev@example.com")
	})

	t.Run("anonymous user agent", func(t *testing.T) {
		c := newTestClient("")
		h, err := c.Headers()
		require.NoError(t, err)
		assert.NotContains(t, h.Get("User-Agent"), "mailto")
	})
}

func TestObserveQuota(t *testing.T) {
	c := newTestClient("")

	t.Run("derives rate from limit and interval", func(t *testing.T) {
		rl := providers.NewRateLimiter(10, 10)
		h := http.Header{}
		h.Set("X-Rate-Limit-Limit", "50")
		h.Set("X-Rate-Limit-Interval", "1s")

		c.ObserveQuota(h, rl)

		q := rl.Quota()
		assert.Equal(t, 50, q.Limit)
		assert.InDelta(t, 50.0, q.Rate, 0.001)
	})

	t.Run("malformed headers are ignored", func(t *testing.T) {
		rl := providers.NewRateLimiter(10, 10)
		h := http.Header{}
		h.Set("X-Rate-Limit-Limit", "fifty")

		c.ObserveQuota(h, rl)
		assert.Zero(t, rl.Quota().Limit)
	})

	t.Run("absent headers are a no-op", func(t *testing.T) {
		rl := providers.NewRateLimiter(10, 10)
		rl.Observe(providers.Quota{Limit: 7})

		c.ObserveQuota(http.Header{}, rl)
		assert.Equal(t, 7, rl.Quota().Limit)
	})
}

func mustParse(t *testing.T, rawURL string) *url.URL {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u
}
