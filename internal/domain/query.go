// Package domain defines the core types shared across the fetch service:
// queries, result pages, result rows, and the error taxonomy.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Query is a search request: opaque query text plus additional provider
// parameters. Queries are ephemeral, constructed per call.
type Query struct {
	// Text is the provider-specific query string
	// (e.g. "query.title=neural networks" or "TITLE-ABS-KEY(crispr)").
	Text string

	// Params are additional URL parameters overriding provider defaults.
	Params map[string]string
}

// NewQuery constructs a Query from text and optional parameters.
func NewQuery(text string, params map[string]string) Query {
	return Query{Text: text, Params: params}
}

// Canonical returns the order-insensitive canonical form of the query:
// the query text followed by sorted key=value pairs. Two semantically
// identical requests always canonicalize identically, which is what makes
// cache keys stable.
func (q Query) Canonical() string {
	if len(q.Params) == 0 {
		return q.Text
	}

	parts := make([]string, 0, len(q.Params))
	for k, v := range q.Params {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)

	var b strings.Builder
	b.WriteString(q.Text)
	for _, p := range parts {
		b.WriteString("|")
		b.WriteString(p)
	}
	return b.String()
}

// Key returns the cache key for this query: the hex-encoded SHA-256 of the
// canonical form. Safe for use as a filename.
func (q Query) Key() string {
	sum := sha256.Sum256([]byte(q.Canonical()))
	return hex.EncodeToString(sum[:])
}
