package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrCast = errors.New("cast failed")

// CastError describes the first value that could not be converted
type CastError struct {
	Column string
	Row    int
	Value  any
	Target DataType
	Err    error
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cast column %q to %s: row %d value %q: %v", e.Column, e.Target, e.Row, fmt.Sprint(e.Value), e.Err)
}

func (e *CastError) Unwrap() []error {
	return []error{ErrCast, e.Err}
}

const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04:05"
)

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	DatetimeLayout,
	"2006-01-02 15:04",
	DateLayout,
}

// Cast converts the named column to dtype. Conversion is strict: the first value that cannot be
// represented fails the whole cast.
func (f *Frame) Cast(name string, dtype DataType) (*Frame, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}

	col, err := castColumn(f.columns[i], dtype)
	if err != nil {
		return nil, err
	}

	columns := make([]Column, len(f.columns))
	copy(columns, f.columns)
	columns[i] = col
	return build(columns), nil
}

// CastAll applies every mapping whose column exists in the frame. Unknown columns are ignored.
func (f *Frame) CastAll(mapping map[string]DataType) (*Frame, error) {
	if len(mapping) == 0 {
		return f, nil
	}

	columns := make([]Column, len(f.columns))
	copy(columns, f.columns)
	for i, col := range columns {
		dtype, ok := mapping[col.Name]
		if !ok {
			continue
		}
		cast, err := castColumn(col, dtype)
		if err != nil {
			return nil, err
		}
		columns[i] = cast
	}
	return build(columns), nil
}

func castColumn(col Column, dtype DataType) (Column, error) {
	if col.Type == dtype {
		return col, nil
	}

	values := make([]any, len(col.Values))
	for row, v := range col.Values {
		converted, err := convertValue(v, col.Type, dtype)
		if err != nil {
			return Column{}, &CastError{Column: col.Name, Row: row, Value: v, Target: dtype, Err: err}
		}
		values[row] = converted
	}
	return Column{Name: col.Name, Type: dtype, Values: values}, nil
}

func convertValue(v any, from, dtype DataType) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch dtype {
	case String:
		return toStringValue(v, from), nil
	case Int64:
		switch val := v.(type) {
		case int64:
			return val, nil
		case float64:
			if val != math.Trunc(val) {
				return nil, fmt.Errorf("%v has a fractional part", val)
			}
			return int64(val), nil
		case bool:
			if val {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return strconv.ParseInt(strings.TrimSpace(text(v, from)), 10, 64)
	case Float64:
		switch val := v.(type) {
		case float64:
			return val, nil
		case int64:
			return float64(val), nil
		case bool:
			if val {
				return 1.0, nil
			}
			return 0.0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(text(v, from)), 64)
	case Boolean:
		switch val := v.(type) {
		case bool:
			return val, nil
		case int64:
			return val != 0, nil
		}
		return strconv.ParseBool(strings.TrimSpace(text(v, from)))
	case Date:
		if t, ok := v.(time.Time); ok {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		return time.Parse(DateLayout, strings.TrimSpace(text(v, from)))
	case Datetime:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
		return parseDatetime(strings.TrimSpace(text(v, from)))
	}

	return nil, fmt.Errorf("unsupported target type %s", dtype)
}

func parseDatetime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range datetimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// toStringValue renders a cell the way WriteCSV does but keeps nulls as nil
func toStringValue(v any, from DataType) any {
	if v == nil {
		return nil
	}
	return text(v, from)
}

func text(v any, from DataType) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if from == Date {
			return val.Format(DateLayout)
		}
		return val.Format(time.RFC3339Nano)
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
