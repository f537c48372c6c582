package domain

import "encoding/json"

// RunStatus is the terminal state of a paginated fetch run.
type RunStatus string

const (
	// RunDone means pagination ran to exhaustion.
	RunDone RunStatus = "done"

	// RunCapped means the declared result total exceeded the configured
	// per-query cap and the run was deliberately truncated.
	RunCapped RunStatus = "capped"

	// RunError means the run terminated on a provider-level or transport
	// error. The error is recorded on the final row, not raised.
	RunError RunStatus = "error"
)

// Page is one fetched response unit. Pages live only within a single
// fetch run; they are flattened to Rows before persistence.
type Page struct {
	// Index is the 0-based page index, monotonically increasing within a run.
	Index int

	// TotalResults is the total hit count declared by the provider.
	TotalResults int

	// Records is the raw result list for this page, nil on error.
	Records []json.RawMessage

	// Cursor is the continuation token (cursor value or next-page link),
	// empty when the provider supplied none.
	Cursor string

	// Error is the provider-level error tag, empty on success.
	Error string
}

// Row is one line of the fixed output contract: identifier, page index,
// declared total hit count, payload-or-null, error-tag-or-null.
type Row struct {
	// ID identifies the request: the query canonical form for searches,
	// the record identifier for point lookups.
	ID string `json:"ID"`

	// Page is the 0-based page index.
	Page int `json:"page"`

	// NumHits is the total hit count declared by the provider.
	NumHits int `json:"num_hits"`

	// Data is the raw record payload for this page, null on error and on
	// cap-marker rows.
	Data json.RawMessage `json:"data"`

	// Error is the error tag, empty on success.
	Error string `json:"error,omitempty"`
}

// PageRow converts a fetched page to a result row for the given request ID.
func PageRow(id string, p Page) Row {
	var data json.RawMessage
	if p.Records != nil {
		data, _ = json.Marshal(p.Records)
	}
	return Row{
		ID:      id,
		Page:    p.Index,
		NumHits: p.TotalResults,
		Data:    data,
		Error:   p.Error,
	}
}

// RowsExceedCap reports whether the rows record a capped run: a row with a
// null payload whose declared total is above the configured cap. This is
// the predicate cache maintenance uses to find truncated entries.
func RowsExceedCap(rows []Row, cap int) bool {
	for _, r := range rows {
		if r.Data == nil && r.Error == "" && r.NumHits > cap {
			return true
		}
	}
	return false
}

// RecordCount returns the number of records across all rows.
func RecordCount(rows []Row) int {
	total := 0
	for _, r := range rows {
		if r.Data == nil {
			continue
		}
		var records []json.RawMessage
		if err := json.Unmarshal(r.Data, &records); err == nil {
			total += len(records)
		}
	}
	return total
}
