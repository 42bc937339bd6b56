package weft

import (
	"fmt"
)

// ColumnType describes the element type of a Column
type ColumnType uint8

const (
	// BoolColumnType is a column type which stores boolean values
	BoolColumnType ColumnType = iota
	// Int64ColumnType is a column type which stores 64-bit signed integer values
	Int64ColumnType
	// Float64ColumnType is a column type which stores 64-bit floating point values
	Float64ColumnType
	// StringColumnType is a column type which stores variable-length string values
	StringColumnType
)

// String produces a string representation of this ColumnType
func (t ColumnType) String() string {
	switch t {
	case BoolColumnType:
		return "bool"
	case Int64ColumnType:
		return "int64"
	case Float64ColumnType:
		return "float64"
	case StringColumnType:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ValidateValue confirms that a value is representable by this ColumnType
func (t ColumnType) ValidateValue(v interface{}) error {
	switch t {
	case BoolColumnType:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("value %#v is not a bool", v)
		}
	case Int64ColumnType:
		if _, ok := v.(int64); !ok {
			return fmt.Errorf("value %#v is not an int64", v)
		}
	case Float64ColumnType:
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("value %#v is not a float64", v)
		}
	case StringColumnType:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("value %#v is not a string", v)
		}
	default:
		return fmt.Errorf("unknown ColumnType %d", uint8(t))
	}
	return nil
}

// ToString produces a display representation of a value of this ColumnType
func (t ColumnType) ToString(v interface{}) string {
	if v == nil {
		return "null"
	}
	if t == StringColumnType {
		return fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("%v", v)
}
