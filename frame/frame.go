// Package frame provides an immutable, column-oriented table used as the result type of the
// CSV and database engines.
//
// A Frame is never modified after it is built. Operations such as Cast, Select, Head and VStack
// return new frames, which makes it safe to hand a cached frame to many goroutines at once.
package frame

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateColumn = errors.New("duplicate column name")
	ErrLengthMismatch  = errors.New("column lengths differ")
	ErrColumnNotFound  = errors.New("column not found")
	ErrSchemaMismatch  = errors.New("frame schemas differ")
	ErrRowOutOfRange   = errors.New("row index out of range")
)

// Frame is an ordered set of equally sized columns
type Frame struct {
	columns []Column
	index   map[string]int
	height  int
}

var empty = &Frame{index: map[string]int{}}

// Empty returns a frame with no columns and no rows
func Empty() *Frame {
	return empty
}

// New builds a frame from columns. Column values are copied so later changes by the caller are
// not visible through the frame.
func New(columns ...Column) (*Frame, error) {
	f := &Frame{
		columns: make([]Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}

	for i, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("%w: column %d has an empty name", ErrDuplicateColumn, i)
		}
		if _, exists := f.index[col.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, col.Name)
		}
		if i == 0 {
			f.height = col.Len()
		} else if col.Len() != f.height {
			return nil, fmt.Errorf("%w: %q has %d values, expected %d", ErrLengthMismatch, col.Name, col.Len(), f.height)
		}

		values := make([]any, col.Len())
		copy(values, col.Values)
		f.index[col.Name] = i
		f.columns = append(f.columns, Column{Name: col.Name, Type: col.Type, Values: values})
	}

	return f, nil
}

// build wraps columns the package already owns without copying them
func build(columns []Column) *Frame {
	f := &Frame{
		columns: columns,
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		f.index[col.Name] = i
	}
	if len(columns) > 0 {
		f.height = columns[0].Len()
	}
	return f
}

func (f *Frame) Height() int {
	return f.height
}

func (f *Frame) Width() int {
	return len(f.columns)
}

// IsEmpty reports whether the frame has no rows
func (f *Frame) IsEmpty() bool {
	return f.height == 0
}

func (f *Frame) Columns() []string {
	names := make([]string, len(f.columns))
	for i, col := range f.columns {
		names[i] = col.Name
	}
	return names
}

func (f *Frame) Schema() []Field {
	fields := make([]Field, len(f.columns))
	for i, col := range f.columns {
		fields[i] = col.Field()
	}
	return fields
}

// Column returns a copy of the named column
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}
	col := f.columns[i]
	values := make([]any, len(col.Values))
	copy(values, col.Values)
	return Column{Name: col.Name, Type: col.Type, Values: values}, true
}

// Row returns the values of row i in column order
func (f *Frame) Row(i int) ([]any, error) {
	if i < 0 || i >= f.height {
		return nil, fmt.Errorf("%w: %d (height %d)", ErrRowOutOfRange, i, f.height)
	}
	row := make([]any, len(f.columns))
	for c, col := range f.columns {
		row[c] = col.Values[i]
	}
	return row, nil
}

// Records converts the frame into one map per row, keyed by column name.
func (f *Frame) Records() []map[string]any {
	records := make([]map[string]any, f.height)
	for i := 0; i < f.height; i++ {
		rec := make(map[string]any, len(f.columns))
		for _, col := range f.columns {
			rec[col.Name] = col.Values[i]
		}
		records[i] = rec
	}
	return records
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	columns := make([]Column, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		i, ok := f.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		seen[name] = true
		columns = append(columns, f.columns[i])
	}
	return build(columns), nil
}

// Head returns the first n rows. A negative n or one past the height returns the full frame.
func (f *Frame) Head(n int) *Frame {
	if n < 0 || n >= f.height {
		return f
	}
	columns := make([]Column, len(f.columns))
	for i, col := range f.columns {
		columns[i] = Column{Name: col.Name, Type: col.Type, Values: col.Values[:n:n]}
	}
	return build(columns)
}

// VStack appends the rows of others below f. All non-empty frames must share the same column
// names in the same order. Columns whose types differ are widened to String.
func (f *Frame) VStack(others ...*Frame) (*Frame, error) {
	frames := make([]*Frame, 0, len(others)+1)
	for _, fr := range append([]*Frame{f}, others...) {
		if fr == nil || fr.Width() == 0 {
			continue
		}
		frames = append(frames, fr)
	}
	if len(frames) == 0 {
		return Empty(), nil
	}
	if len(frames) == 1 {
		return frames[0], nil
	}

	base := frames[0]
	total := 0
	for _, fr := range frames {
		if !sameNames(base, fr) {
			return nil, fmt.Errorf("%w: [%s] vs [%s]", ErrSchemaMismatch,
				strings.Join(base.Columns(), ","), strings.Join(fr.Columns(), ","))
		}
		total += fr.height
	}

	columns := make([]Column, base.Width())
	for c, col := range base.columns {
		dtype := col.Type
		for _, fr := range frames[1:] {
			if fr.columns[c].Type != dtype {
				dtype = String
			}
		}

		values := make([]any, 0, total)
		for _, fr := range frames {
			src := fr.columns[c]
			if src.Type == dtype {
				values = append(values, src.Values...)
				continue
			}
			for _, v := range src.Values {
				values = append(values, toStringValue(v, src.Type))
			}
		}
		columns[c] = Column{Name: col.Name, Type: dtype, Values: values}
	}

	return build(columns), nil
}

func sameNames(a, b *Frame) bool {
	if a.Width() != b.Width() {
		return false
	}
	for i := range a.columns {
		if a.columns[i].Name != b.columns[i].Name {
			return false
		}
	}
	return true
}
