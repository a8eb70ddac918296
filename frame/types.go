package frame

import (
	"fmt"
	"strings"
)

// DataType identifies the Go representation of every non-null value in a column
type DataType int

const (
	String DataType = iota
	Int64
	Float64
	Boolean
	Date
	Datetime
)

var dataTypeNames = map[DataType]string{
	String:   "str",
	Int64:    "int64",
	Float64:  "float64",
	Boolean:  "bool",
	Date:     "date",
	Datetime: "datetime",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// MarshalText lets DataType appear as a name in JSON and YAML output
func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseDataType maps a user-supplied type name to a DataType.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "str", "string", "utf8", "text":
		return String, nil
	case "int", "int64", "integer":
		return Int64, nil
	case "float", "float64", "double":
		return Float64, nil
	case "bool", "boolean":
		return Boolean, nil
	case "date":
		return Date, nil
	case "datetime", "timestamp":
		return Datetime, nil
	default:
		return String, fmt.Errorf("unknown data type %q", name)
	}
}

// Field is one schema entry
type Field struct {
	Name string   `json:"name" yaml:"name"`
	Type DataType `json:"type" yaml:"type"`
}

// Column holds the values of one named column. A nil value is null.
type Column struct {
	Name   string
	Type   DataType
	Values []any
}

// Len returns the number of values in the column
func (c Column) Len() int {
	return len(c.Values)
}

// Field returns the schema entry for the column
func (c Column) Field() Field {
	return Field{Name: c.Name, Type: c.Type}
}
