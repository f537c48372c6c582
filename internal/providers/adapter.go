// Package providers defines the adapter contract that every bibliographic
// metadata provider implements, together with the shared rate limiting and
// HTTP plumbing the adapters are driven through.
//
// Each provider (Crossref, Scopus, ...) differs in query syntax,
// authentication, pagination mechanism, and rate-limit signaling; the
// Adapter interface normalizes all of that behind one deterministic
// contract so the fetch engine never needs provider knowledge.
//
// Example usage:
//
//	adapter, err := crossref.New(cfg)
//	headers, err := adapter.Headers()
//	url, err := adapter.BuildSearchURL("query.title=neural networks", nil)
package providers

import (
	"encoding/json"
	"net/http"

	"github.com/bibfetch/bibfetch/internal/domain"
)

// Adapter is the per-provider strategy: session/auth setup, URL
// construction, response parsing, and next-page resolution.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Name returns the provider identifier used for routing, logging,
	// metrics labels, and cache subdirectories.
	Name() string

	// Headers returns the headers required on every request. It fails
	// fast with a domain.CredentialError when a mandatory credential is
	// absent; optional credentials merely degrade the access tier.
	Headers() (http.Header, error)

	// BuildSearchURL constructs the first-page search URL from the query
	// text, provider defaults, and caller parameter overrides. Providers
	// that paginate by cursor prime the first request with a sentinel
	// cursor so the response carries a continuation token.
	BuildSearchURL(query string, params map[string]string) (string, error)

	// ParsePage extracts one Page from a response body: declared total,
	// record list, and continuation token. Provider-level error envelopes
	// (distinct from HTTP errors) become an error-tagged Page with a nil
	// record list; ParsePage itself never fails.
	ParsePage(body []byte, pageIndex int) *domain.Page

	// NextPageURL resolves the URL for the page after the one in body, or
	// ok=false when pagination is exhausted: the page is empty or carries
	// no continuation token. Cursor providers rewrite the cursor parameter
	// of currentURL; link providers return the provider-supplied absolute
	// URL verbatim.
	NextPageURL(body []byte, currentURL string) (next string, ok bool)

	// RecordURL constructs the point-lookup URL for a single record
	// identifier (DOI, EID, ...), bypassing pagination.
	RecordURL(id string) (string, error)

	// ParseRecord extracts the record payload from a point-lookup response
	// body, unwrapping any provider envelope. Unlike search runs, lookup
	// failures are returned as errors: the caller asked for one specific
	// record and gets either it or a reason.
	ParseRecord(body []byte) (json.RawMessage, error)

	// ObserveQuota updates the rate limiter from provider quota headers on
	// the most recent response. Header parsing failures are logged and
	// ignored; quota headers are advisory and never abort a fetch.
	ObserveQuota(h http.Header, rl *RateLimiter)
}
