package scopus

import "encoding/json"

// SearchResponse is the top-level Scopus search API envelope. The API
// reports rejections through an "error" string or a "service-error"
// object rather than the search-results payload.
type SearchResponse struct {
	SearchResults *SearchResults  `json:"search-results"`
	Error         json.RawMessage `json:"error"`
	ServiceError  *ServiceError   `json:"service-error"`
}

// SearchResults is the payload of a search response.
type SearchResults struct {
	// TotalResults is the declared total hit count, serialized as a string.
	TotalResults string `json:"opensearch:totalResults"`

	// Entries is the raw record list for this page.
	Entries []json.RawMessage `json:"entry"`

	// Links carries pagination links; the one with @ref "next" points at
	// the following page.
	Links []Link `json:"link"`
}

// Link is one pagination link in a search response.
type Link struct {
	Ref  string `json:"@ref"`
	Href string `json:"@href"`
}

// ServiceError is Scopus's structured error envelope.
type ServiceError struct {
	Status ServiceErrorStatus `json:"status"`
}

// ServiceErrorStatus carries the error code and text.
type ServiceErrorStatus struct {
	StatusCode string `json:"statusCode"`
	StatusText string `json:"statusText"`
}
