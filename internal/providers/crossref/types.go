package crossref

import "encoding/json"

// SearchResponse is the top-level Crossref REST API envelope.
// A healthy response carries status "ok" and a message payload; provider
// rejections surface as a non-ok status with a message-type tag.
type SearchResponse struct {
	Status      string   `json:"status"`
	MessageType string   `json:"message-type"`
	Message     *Message `json:"message"`
}

// Message is the payload of a works search response.
type Message struct {
	// TotalResults is the declared total hit count for the query.
	TotalResults int `json:"total-results"`

	// Items is the record list for this page. Records are kept raw:
	// provider-specific metadata fields are not schema-validated.
	Items []json.RawMessage `json:"items"`

	// NextCursor is the continuation token for deep pagination.
	NextCursor string `json:"next-cursor"`
}

// RecordResponse is the envelope of a single-work lookup (/works/{doi}).
type RecordResponse struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
}
