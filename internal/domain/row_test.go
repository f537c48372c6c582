package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRow(t *testing.T) {
	t.Run("page with records", func(t *testing.T) {
		p := Page{
			Index:        2,
			TotalResults: 150,
			Records:      []json.RawMessage{json.RawMessage(`{"doi":"10.1/a"}`)},
		}

		row := PageRow("crispr", p)
		assert.Equal(t, "crispr", row.ID)
		assert.Equal(t, 2, row.Page)
		assert.Equal(t, 150, row.NumHits)
		assert.Equal(t, `[{"doi":"10.1/a"}]`, string(row.Data))
		assert.Empty(t, row.Error)
	})

	t.Run("empty record list stays non-null", func(t *testing.T) {
		row := PageRow("q", Page{Index: 1, Records: []json.RawMessage{}})
		assert.Equal(t, `[]`, string(row.Data))
	})

	t.Run("nil records stay null", func(t *testing.T) {
		row := PageRow("q", Page{Index: 0, Error: "bad_query"})
		assert.Nil(t, row.Data)
		assert.Equal(t, "bad_query", row.Error)
	})
}

func TestRowsExceedCap(t *testing.T) {
	data := json.RawMessage(`[{"a":1}]`)

	t.Run("capped marker row matches", func(t *testing.T) {
		rows := []Row{
			{ID: "q", Page: 0, NumHits: 20000, Data: data},
			{ID: "q", Page: 1, NumHits: 20000, Data: nil},
		}
		assert.True(t, RowsExceedCap(rows, 10000))
	})

	t.Run("completed run does not match", func(t *testing.T) {
		rows := []Row{{ID: "q", Page: 0, NumHits: 50, Data: data}}
		assert.False(t, RowsExceedCap(rows, 10000))
	})

	t.Run("error rows do not match", func(t *testing.T) {
		rows := []Row{{ID: "q", Page: 0, NumHits: 20000, Error: "bad_query"}}
		assert.False(t, RowsExceedCap(rows, 10000))
	})

	t.Run("marker below a raised cap does not match", func(t *testing.T) {
		rows := []Row{{ID: "q", Page: 1, NumHits: 20000, Data: nil}}
		assert.False(t, RowsExceedCap(rows, 50000))
	})
}

func TestRecordCount(t *testing.T) {
	rows := []Row{
		{Data: json.RawMessage(`[{"a":1},{"b":2}]`)},
		{Data: json.RawMessage(`[{"c":3}]`)},
		{Data: nil},
	}
	require.Equal(t, 3, RecordCount(rows))
}
