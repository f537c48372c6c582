// Package scopus implements the providers.Adapter contract for the
// Elsevier Scopus search API.
//
// Scopus has no anonymous tier: every request carries the mandatory
// X-ELS-APIKey header, and adapter construction fails fast without one.
// Pagination is link-based: each response embeds an absolute URL for the
// next page under the "next" link ref.
package scopus

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
	// DefaultBaseURL is the default Elsevier content API base URL.
	DefaultBaseURL = "https://api.elsevier.com/content"

	// DefaultRateLimit is the default rate limit. Institutional access
	// typically allows 2-3 requests per second.
	DefaultRateLimit = 2.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultPageSize is the default records-per-page (Scopus uses "count").
	DefaultPageSize = 25

	// DefaultMaxResults is the default per-query record cap.
	DefaultMaxResults = 5000

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultView selects the response detail level.
	DefaultView = "COMPLETE"

	// apiKeyHeader is the HTTP header carrying the Scopus API key.
	apiKeyHeader = "X-ELS-APIKey"

	// sourceName is the human-readable name for this provider.
	sourceName = "scopus"
)

// Config holds configuration for the Scopus adapter.
type Config struct {
	// BaseURL is the Elsevier content API base URL.
	BaseURL string

	// APIKey is the Elsevier API key. Mandatory: construction fails
	// without it. Get one from https://dev.elsevier.com/.
	APIKey string

	// View selects the response detail level (STANDARD, COMPLETE).
	View string

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
	if c.View == "" {
		c.View = DefaultView
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client implements the providers.Adapter interface for Scopus.
type Client struct {
	config Config
	logger zerolog.Logger
}

// Ensure Client implements the Adapter interface.
var _ providers.Adapter = (*Client)(nil)

// New creates a new Scopus adapter. The API key is mandatory; without it
// New returns a domain.CredentialError so misconfiguration surfaces at
// construction rather than on the first request.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	cfg.applyDefaults()

	if cfg.APIKey == "" {
		return nil, domain.NewCredentialError(sourceName,
			"set BIBFETCH_PROVIDERS_SCOPUS_API_KEY or create scopus.yaml with an X-ELS-APIKey field; "+
				"get a key from https://dev.elsevier.com/")
	}

	return &Client{
		config: cfg,
		logger: logger.With().Str("provider", sourceName).Logger(),
	}, nil
}

// Config returns the effective configuration after defaults.
func (c *Client) Config() Config {
	return c.config
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return sourceName
}

// Headers returns the request headers including the mandatory API key.
func (c *Client) Headers() (http.Header, error) {
	if c.config.APIKey == "" {
		return nil, domain.NewCredentialError(sourceName, "API key is empty")
	}

	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set(apiKeyHeader, c.config.APIKey)
	return h, nil
}

// BuildSearchURL constructs the first-page search URL from provider
// defaults, the query text, and caller overrides.
func (c *Client) BuildSearchURL(query string, params map[string]string) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/search/scopus"

	values := url.Values{}
	values.Set("count", strconv.Itoa(c.config.PageSize))
	values.Set("view", c.config.View)
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("query", query)

	base.RawQuery = values.Encode()
	return base.String(), nil
}

// ParsePage parses a Scopus search response into a Page.
func (c *Client) ParsePage(body []byte, pageIndex int) *domain.Page {
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &domain.Page{
			Index: pageIndex,
			Error: "invalid_response",
		}
	}

	if tag, ok := errorTag(&resp); ok {
		return &domain.Page{
			Index: pageIndex,
			Error: tag,
		}
	}

	if resp.SearchResults == nil {
		return &domain.Page{
			Index: pageIndex,
			Error: "no_search_results",
		}
	}

	totalResults, _ := strconv.Atoi(resp.SearchResults.TotalResults)

	records := resp.SearchResults.Entries
	if records == nil {
		records = []json.RawMessage{}
	}

	return &domain.Page{
		Index:        pageIndex,
		TotalResults: totalResults,
		Records:      records,
		Cursor:       nextLink(resp.SearchResults),
	}
}

// NextPageURL returns the provider-supplied absolute next-page link
// verbatim, or ok=false when the page is empty or no next link exists.
func (c *Client) NextPageURL(body []byte, currentURL string) (string, bool) {
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	if resp.SearchResults == nil {
		return "", false
	}
	if len(resp.SearchResults.Entries) == 0 {
		return "", false
	}

	next := nextLink(resp.SearchResults)
	if next == "" {
		return "", false
	}
	return next, true
}

// RecordURL constructs the abstract point-lookup URL for an EID.
func (c *Client) RecordURL(id string) (string, error) {
	eid := strings.TrimSpace(id)
	if eid == "" {
		return "", fmt.Errorf("empty EID")
	}

	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/abstract/eid/" + eid

	values := url.Values{}
	values.Set("view", "META_ABS")
	base.RawQuery = values.Encode()

	return base.String(), nil
}

// ParseRecord validates an abstract lookup response and returns it
// verbatim. Scopus reports lookup failures through the same service-error
// envelope as searches.
func (c *Client) ParseRecord(body []byte) (json.RawMessage, error) {
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewExternalAPIError(sourceName, 0, "invalid response body", err)
	}
	if tag, ok := errorTag(&resp); ok {
		return nil, domain.NewExternalAPIError(sourceName, 0, tag, nil)
	}
	return json.RawMessage(body), nil
}

// ObserveQuota parses Scopus's X-RateLimit-Limit, X-RateLimit-Remaining,
// and X-RateLimit-Reset (epoch seconds) headers. Malformed headers are
// logged and ignored.
func (c *Client) ObserveQuota(h http.Header, rl *providers.RateLimiter) {
	if h.Get("X-RateLimit-Limit") == "" &&
		h.Get("X-RateLimit-Remaining") == "" &&
		h.Get("X-RateLimit-Reset") == "" {
		return
	}

	quota := rl.Quota()

	if v := h.Get("X-RateLimit-Limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			c.logger.Warn().Str("header", v).Msg("unparseable rate limit header")
			return
		}
		quota.Limit = limit
	}

	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		remaining, err := strconv.Atoi(v)
		if err != nil {
			c.logger.Warn().Str("header", v).Msg("unparseable rate limit remaining header")
			return
		}
		quota.Remaining = remaining
		if remaining%100 == 0 {
			c.logger.Info().
				Int("remaining", quota.Remaining).
				Int("limit", quota.Limit).
				Msg("scopus quota")
		}
	}

	if v := h.Get("X-RateLimit-Reset"); v != "" {
		epoch, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.logger.Warn().Str("header", v).Msg("unparseable rate limit reset header")
			return
		}
		quota.Reset = time.Unix(epoch, 0)
	}

	rl.Observe(quota)
}

// errorTag extracts the provider-level error tag from a response, if any.
func errorTag(resp *SearchResponse) (string, bool) {
	if resp.ServiceError != nil {
		tag := resp.ServiceError.Status.StatusText
		if tag == "" {
			tag = resp.ServiceError.Status.StatusCode
		}
		if tag == "" {
			tag = "service_error"
		}
		return tag, true
	}

	if len(resp.Error) > 0 {
		var s string
		if err := json.Unmarshal(resp.Error, &s); err == nil {
			return s, true
		}
		return string(resp.Error), true
	}

	return "", false
}

// nextLink returns the @href of the link with @ref "next", if present.
func nextLink(sr *SearchResults) string {
	for _, link := range sr.Links {
		if link.Ref == "next" {
			return link.Href
		}
	}
	return ""
}
