// Package crossref implements the providers.Adapter contract for the
// Crossref REST API.
//
// Crossref needs no credentials: an optional contact email grants access
// to the polite pool with higher rate limits, while anonymous requests
// fall back to the public pool. Deep pagination is cursor-based and must
// be primed with the sentinel cursor "*" on the first request.
package crossref

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bibfetch/bibfetch/internal/domain"
	"github.com/bibfetch/bibfetch/internal/providers"
)

const (
	// DefaultBaseURL is the default Crossref works API URL.
	DefaultBaseURL = "https://api.crossref.org/works"

	// DefaultRateLimit is the default rate limit for polite-pool access.
	// The polite pool allows roughly 50 req/sec; stay conservative.
	DefaultRateLimit = 10.0

	// PublicPoolRateLimit is the conservative rate used without a mailto.
	PublicPoolRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 20

	// DefaultPageSize is the default rows-per-page (Crossref uses "rows").
	DefaultPageSize = 100

	// DefaultMaxResults is the default per-query record cap.
	DefaultMaxResults = 10000

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// cursorStart is the sentinel priming cursor-based pagination.
	cursorStart = "*"

	// sourceName is the human-readable name for this provider.
	sourceName = "crossref"
)

// Config holds configuration for the Crossref adapter.
type Config struct {
	// BaseURL is the Crossref works API URL.
	BaseURL string

	// Mailto is the contact email for polite-pool access. Optional:
	// without it requests use the public pool at lower rates.
	Mailto string

	// PageSize is the number of records requested per page.
	PageSize int

	// MaxResults is the per-query record cap.
	MaxResults int

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// Timeout is the request timeout.
	Timeout time.Duration
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.RateLimit == 0 {
		if c.Mailto != "" {
			c.RateLimit = DefaultRateLimit
		} else {
			c.RateLimit = PublicPoolRateLimit
		}
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client implements the providers.Adapter interface for Crossref.
type Client struct {
	config Config
	logger zerolog.Logger
}

// Ensure Client implements the Adapter interface.
var _ providers.Adapter = (*Client)(nil)

// New creates a new Crossref adapter. A missing mailto is not an error,
// but it is logged: anonymous access uses the slower public pool.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	logger = logger.With().Str("provider", sourceName).Logger()
	if cfg.Mailto == "" {
		logger.Warn().Msg("no mailto configured, using public pool with conservative rate limits")
	} else {
		logger.Info().Str("mailto", cfg.Mailto).Msg("using polite pool")
	}

	return &Client{
		config: cfg,
		logger: logger,
	}
}

// Config returns the effective configuration after defaults.
func (c *Client) Config() Config {
	return c.config
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return sourceName
}

// Headers returns the request headers. Crossref identifies polite-pool
// members through the User-Agent mailto clause; there is no mandatory
// credential, so Headers never fails.
func (c *Client) Headers() (http.Header, error) {
	userAgent := "bibfetch/1.0"
	if c.config.Mailto != "" {
		userAgent += fmt.Sprintf(" (mailto:%s)", c.config.Mailto)
	}

	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "application/json")
	return h, nil
}

// BuildSearchURL constructs the first-page search URL. Defaults, the query
// text, and caller overrides are merged in that order, and the sentinel
// cursor is injected when absent so the response carries a continuation
// token.
func (c *Client) BuildSearchURL(query string, params map[string]string) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	values := url.Values{}
	values.Set("rows", strconv.Itoa(c.config.PageSize))
	for k, v := range params {
		values.Set(k, v)
	}
	// Field searches (query.title=...) arrive through params with no free
	// text; an empty query parameter would be rejected.
	if query != "" {
		values.Set("query", query)
	}

	if c.config.Mailto != "" && values.Get("mailto") == "" {
		values.Set("mailto", c.config.Mailto)
	}

	// cursor=* on the initial request enables cursor-based pagination.
	if values.Get("cursor") == "" {
		values.Set("cursor", cursorStart)
	}

	base.RawQuery = values.Encode()
	return base.String(), nil
}

// ParsePage parses a Crossref search response into a Page.
func (c *Client) ParsePage(body []byte, pageIndex int) *domain.Page {
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &domain.Page{
			Index: pageIndex,
			Error: "invalid_response",
		}
	}

	if resp.Status != "" && resp.Status != "ok" {
		tag := resp.MessageType
		if tag == "" {
			tag = "unknown_error"
		}
		return &domain.Page{
			Index: pageIndex,
			Error: tag,
		}
	}

	if resp.Message == nil {
		return &domain.Page{
			Index: pageIndex,
			Error: "no_message",
		}
	}

	records := resp.Message.Items
	if records == nil {
		records = []json.RawMessage{}
	}

	return &domain.Page{
		Index:        pageIndex,
		TotalResults: resp.Message.TotalResults,
		Records:      records,
		Cursor:       resp.Message.NextCursor,
	}
}

// NextPageURL resolves the next-page URL by rewriting the cursor
// parameter of the current URL. The query string is parsed structurally,
// so exactly one cursor parameter survives regardless of what the current
// URL contains.
func (c *Client) NextPageURL(body []byte, currentURL string) (string, bool) {
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	if resp.Message == nil {
		return "", false
	}

	// An empty page is the pagination terminal condition even when the
	// provider still hands out a cursor.
	if len(resp.Message.Items) == 0 {
		return "", false
	}
	if resp.Message.NextCursor == "" {
		return "", false
	}

	u, err := url.Parse(currentURL)
	if err != nil {
		return "", false
	}

	values := u.Query()
	values.Del("cursor")
	values.Set("cursor", resp.Message.NextCursor)
	u.RawQuery = values.Encode()

	return u.String(), true
}

// RecordURL constructs the point-lookup URL for a DOI.
func (c *Client) RecordURL(id string) (string, error) {
	doi := strings.TrimPrefix(strings.TrimSpace(id), "doi:")
	if doi == "" {
		return "", fmt.Errorf("empty DOI")
	}

	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/" + doi

	if c.config.Mailto != "" {
		values := url.Values{}
		values.Set("mailto", c.config.Mailto)
		base.RawQuery = values.Encode()
	}

	return base.String(), nil
}

// ParseRecord unwraps a single-work lookup response, returning the work
// metadata under the "message" key.
func (c *Client) ParseRecord(body []byte) (json.RawMessage, error) {
	var resp RecordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewExternalAPIError(sourceName, 0, "invalid response body", err)
	}
	if resp.Status != "ok" {
		return nil, domain.NewExternalAPIError(sourceName, 0, fmt.Sprintf("status %q", resp.Status), nil)
	}
	if len(resp.Message) == 0 {
		return nil, domain.NewExternalAPIError(sourceName, 0, "response carries no message", nil)
	}
	return resp.Message, nil
}

// ObserveQuota parses Crossref's X-Rate-Limit-Limit and
// X-Rate-Limit-Interval headers ("50" and "1s" style) into the shared
// quota shape. Malformed headers are logged and ignored.
func (c *Client) ObserveQuota(h http.Header, rl *providers.RateLimiter) {
	limitHeader := h.Get("X-Rate-Limit-Limit")
	intervalHeader := h.Get("X-Rate-Limit-Interval")
	if limitHeader == "" && intervalHeader == "" {
		return
	}

	quota := rl.Quota()

	if limitHeader != "" {
		limit, err := strconv.Atoi(limitHeader)
		if err != nil {
			c.logger.Warn().Str("header", limitHeader).Msg("unparseable rate limit header")
			return
		}
		quota.Limit = limit
	}

	if intervalHeader != "" {
		seconds, err := strconv.Atoi(strings.TrimSuffix(intervalHeader, "s"))
		if err != nil || seconds <= 0 {
			c.logger.Warn().Str("header", intervalHeader).Msg("unparseable rate limit interval header")
			return
		}
		quota.Rate = float64(quota.Limit) / float64(seconds)
		c.logger.Debug().
			Int("limit", quota.Limit).
			Int("interval_seconds", seconds).
			Float64("rate", quota.Rate).
			Msg("observed rate limit headers")
	}

	rl.Observe(quota)
}
