package models

import "dbconnect.dev/frame"

// Sources a frame entry can come from
const (
	SourceCSV   = "csv"
	SourceQuery = "query"
)

// FrameEntry is the API representation of a frame, optionally truncated to a row limit.
type FrameEntry struct {
	Source        string        `json:"source"`
	Name          string        `json:"name,omitempty"`
	Columns       []frame.Field `json:"columns"`
	Rows          [][]any       `json:"rows"`
	RowCount      int           `json:"rowCount"`
	LimitExceeded bool          `json:"limitExceeded"`
}

// NewFrameEntry serializes df. A limit of zero or less returns every row.
func NewFrameEntry(source, name string, df *frame.Frame, limit int) FrameEntry {
	out := df
	exceeded := false
	if limit > 0 && df.Height() > limit {
		out = df.Head(limit)
		exceeded = true
	}

	table := out.Table()
	return FrameEntry{
		Source:        source,
		Name:          name,
		Columns:       table.Columns,
		Rows:          table.Rows,
		RowCount:      df.Height(),
		LimitExceeded: exceeded,
	}
}

// CacheClearedModel reports which caches were dropped
type CacheClearedModel struct {
	Cleared []string `json:"cleared"`
}
