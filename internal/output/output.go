// Package output renders fetch result rows and cache listings for the
// command line: human-readable tables or machine-readable JSON.
package output

import (
	"fmt"
	"strings"

	"github.com/bibfetch/bibfetch/internal/domain"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// Formatter renders fetch result rows.
type Formatter interface {
	FormatRows(rows []domain.Row) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatJSONL):
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatJSONL:
		return &JSONFormatter{Lines: true}
	default:
		return &TableFormatter{}
	}
}
