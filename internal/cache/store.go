// Package cache provides a persistent, query-keyed store for fetched
// result rows. Entries are written atomically and only for completed
// fetch runs, so a reader never observes a torn fetch.
package cache

import (
	"time"

	"github.com/bibfetch/bibfetch/internal/domain"
)

// KeyInfo describes a stored cache entry.
type KeyInfo struct {
	// Key is the entry's cache key (hash of the canonical query).
	Key string

	// Query is the human-readable canonical query the entry was stored under.
	Query string

	// StoredAt is when the entry was written.
	StoredAt time.Time
}

// Store is the cache contract. Implementations must treat read errors as
// misses (never fatal to the caller) and must make writes atomic from the
// reader's perspective.
type Store interface {
	// Get returns the rows stored under key, or ok=false when the entry is
	// absent, expired, or unreadable.
	Get(key string) (rows []domain.Row, ok bool)

	// Put stores rows under key, replacing any prior entry. The query
	// argument is the human-readable canonical form kept for enumeration.
	Put(key, query string, rows []domain.Row) error

	// Delete removes the entry stored under key. Deleting a missing entry
	// is not an error.
	Delete(key string) error

	// Keys enumerates all stored entries.
	Keys() ([]KeyInfo, error)
}
