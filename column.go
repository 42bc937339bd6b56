package weft

import (
	"fmt"
)

// Column is an immutable, named, typed sequence of values with an explicit
// per-element validity mask. An element whose mask entry is false is absent
// (null); its value is undefined and never read.
type Column struct {
	name   string
	ctype  ColumnType
	values []interface{}
	valid  []bool
}

// CreateColumn builds a Column from values and a validity mask, copying both.
// A nil mask marks every value as present. Values at absent positions are ignored.
func CreateColumn(name string, ctype ColumnType, values []interface{}, valid []bool) (*Column, error) {
	if valid != nil && len(valid) != len(values) {
		return nil, fmt.Errorf("validity mask length %d does not match value count %d", len(valid), len(values))
	}
	col := &Column{
		name:   name,
		ctype:  ctype,
		values: make([]interface{}, len(values)),
		valid:  make([]bool, len(values)),
	}
	for i, v := range values {
		if valid != nil && !valid[i] {
			continue
		}
		if v == nil {
			// treat untyped nil as absent even without a mask
			continue
		}
		if err := ctype.ValidateValue(v); err != nil {
			return nil, fmt.Errorf("row %d of column %s: %w", i, name, err)
		}
		col.values[i] = v
		col.valid[i] = true
	}
	return col, nil
}

// Name returns the name of this Column
func (c *Column) Name() string {
	return c.name
}

// Type returns the ColumnType of this Column
func (c *Column) Type() ColumnType {
	return c.ctype
}

// Len returns the number of elements in this Column
func (c *Column) Len() int {
	return len(c.values)
}

// IsValid returns true iff the element at position i is present
func (c *Column) IsValid(i int) bool {
	return c.valid[i]
}

// Value returns the element at position i, with false if it is absent
func (c *Column) Value(i int) (interface{}, bool) {
	if !c.valid[i] {
		return nil, false
	}
	return c.values[i], true
}

// Slice returns a new Column containing elements [start, end)
func (c *Column) Slice(start int, end int) *Column {
	out := &Column{
		name:   c.name,
		ctype:  c.ctype,
		values: make([]interface{}, end-start),
		valid:  make([]bool, end-start),
	}
	copy(out.values, c.values[start:end])
	copy(out.valid, c.valid[start:end])
	return out
}

// Rename returns a copy of this Column under a new name, sharing element storage.
// Safe because Columns are immutable.
func (c *Column) Rename(name string) *Column {
	return &Column{name: name, ctype: c.ctype, values: c.values, valid: c.valid}
}

// ConcatColumns concatenates same-named, same-typed Columns in order
func ConcatColumns(cols ...*Column) (*Column, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("cannot concatenate zero Columns")
	}
	total := 0
	for _, c := range cols {
		if c.name != cols[0].name || c.ctype != cols[0].ctype {
			return nil, fmt.Errorf("cannot concatenate column %s (%s) with column %s (%s)", c.name, c.ctype, cols[0].name, cols[0].ctype)
		}
		total += c.Len()
	}
	out := &Column{
		name:   cols[0].name,
		ctype:  cols[0].ctype,
		values: make([]interface{}, 0, total),
		valid:  make([]bool, 0, total),
	}
	for _, c := range cols {
		out.values = append(out.values, c.values...)
		out.valid = append(out.valid, c.valid...)
	}
	return out, nil
}
