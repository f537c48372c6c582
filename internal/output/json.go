package output

import (
	"encoding/json"
	"strings"

	"github.com/bibfetch/bibfetch/internal/domain"
)

// JSONFormatter renders rows as JSON: one array, optionally indented, or
// newline-delimited objects when Lines is set.
type JSONFormatter struct {
	Indent bool
	Lines  bool
}

// FormatRows renders result rows as JSON.
func (f *JSONFormatter) FormatRows(rows []domain.Row) (string, error) {
	if f.Lines {
		var b strings.Builder
		enc := json.NewEncoder(&b)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return "", err
			}
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(rows, "", "  ")
	} else {
		data, err = json.Marshal(rows)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
