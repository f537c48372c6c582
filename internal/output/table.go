package output

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bibfetch/bibfetch/internal/cache"
	"github.com/bibfetch/bibfetch/internal/domain"
)

// maxQueryWidth truncates long query strings in table cells.
const maxQueryWidth = 60

// TableFormatter renders rows as an ASCII table. Payloads are summarized
// as record counts; use the JSON formats for the full data.
type TableFormatter struct{}

// FormatRows renders result rows as a table.
func (f *TableFormatter) FormatRows(rows []domain.Row) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Query", "Page", "Hits", "Records", "Error"})

	for _, r := range rows {
		t.AppendRow(table.Row{
			truncate(r.ID, maxQueryWidth),
			r.Page,
			r.NumHits,
			recordCell(r),
			r.Error,
		})
	}

	if len(rows) > 0 {
		t.AppendFooter(table.Row{
			"",
			fmt.Sprintf("%d pages", len(rows)),
			"",
			fmt.Sprintf("%d records", domain.RecordCount(rows)),
			"",
		})
	}

	return t.Render(), nil
}

// FormatKeys renders a cache listing as a table.
func FormatKeys(infos []cache.KeyInfo) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Query", "Stored At"})

	for _, info := range infos {
		t.AppendRow(table.Row{
			info.Key,
			truncate(info.Query, maxQueryWidth),
			info.StoredAt.Format("2006-01-02 15:04:05"),
		})
	}

	return t.Render()
}

// recordCell summarizes a row's payload for table display.
func recordCell(r domain.Row) string {
	if r.Data == nil {
		if r.Error != "" {
			return "-"
		}
		return "capped"
	}
	var records []json.RawMessage
	if err := json.Unmarshal(r.Data, &records); err != nil {
		return "?"
	}
	return fmt.Sprintf("%d", len(records))
}

// truncate shortens s to at most width runes.
func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}
