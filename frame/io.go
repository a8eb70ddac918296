package frame

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"
)

// WriteCSV writes a header row followed by every row of the frame. Nulls become empty fields.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(f.Columns()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(f.columns))
	for i := 0; i < f.height; i++ {
		for c, col := range f.columns {
			record[c] = text(col.Values[i], col.Type)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Table is the serialized form of a frame used by JSON and YAML encoders
type Table struct {
	Columns []Field `json:"columns" yaml:"columns"`
	Rows    [][]any `json:"rows" yaml:"rows"`
}

// Table converts the frame into its serializable form. Temporal values are rendered as text so
// dates survive the round trip through JSON without a time component.
func (f *Frame) Table() Table {
	rows := make([][]any, f.height)
	for i := 0; i < f.height; i++ {
		row := make([]any, len(f.columns))
		for c, col := range f.columns {
			row[c] = serializable(col.Values[i], col.Type)
		}
		rows[i] = row
	}
	return Table{Columns: f.Schema(), Rows: rows}
}

func (f *Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Table())
}

func (f *Frame) MarshalYAML() (any, error) {
	return f.Table(), nil
}

func serializable(v any, dtype DataType) any {
	switch val := v.(type) {
	case time.Time:
		return text(val, dtype)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case []byte:
		return string(val)
	default:
		return v
	}
}
