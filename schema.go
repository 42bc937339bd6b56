package weft

import (
	"fmt"
)

// ColumnMeta describes the name and type of a single Schema column
type ColumnMeta struct {
	Name string
	Type ColumnType
}

// Schema is an ordered description of the Columns of a Partition
type Schema struct {
	cols []ColumnMeta
}

// CreateSchema is a factory for Schemas
func CreateSchema() *Schema {
	return &Schema{cols: make([]ColumnMeta, 0)}
}

// CreateColumn adds a column definition to this Schema, erroring on duplicate names
func (s *Schema) CreateColumn(name string, ctype ColumnType) error {
	if s.HasColumn(name) {
		return fmt.Errorf("column %s already exists in Schema", name)
	}
	s.cols = append(s.cols, ColumnMeta{Name: name, Type: ctype})
	return nil
}

// NumColumns returns the number of columns in this Schema
func (s *Schema) NumColumns() int {
	return len(s.cols)
}

// Columns returns the ordered column definitions of this Schema
func (s *Schema) Columns() []ColumnMeta {
	out := make([]ColumnMeta, len(s.cols))
	copy(out, s.cols)
	return out
}

// HasColumn returns true iff this Schema defines a column with the given name
func (s *Schema) HasColumn(name string) bool {
	for _, c := range s.cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Column returns the definition of the named column
func (s *Schema) Column(name string) (ColumnMeta, error) {
	for _, c := range s.cols {
		if c.Name == name {
			return c, nil
		}
	}
	return ColumnMeta{}, fmt.Errorf("column %s does not exist in Schema", name)
}

// ColumnNames returns the ordered names of the columns of this Schema
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.Name
	}
	return names
}

// Clone returns a copy of this Schema
func (s *Schema) Clone() *Schema {
	out := CreateSchema()
	out.cols = append(out.cols, s.cols...)
	return out
}

// Select returns a new Schema containing only the named columns, in the given order
func (s *Schema) Select(names ...string) (*Schema, error) {
	out := CreateSchema()
	for _, name := range names {
		c, err := s.Column(name)
		if err != nil {
			return nil, err
		}
		if err := out.CreateColumn(c.Name, c.Type); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Equals returns nil iff two Schemas have identical column names and types, in order
func (s *Schema) Equals(other *Schema) error {
	if len(s.cols) != len(other.cols) {
		return fmt.Errorf("schemas have different column counts: %d vs %d", len(s.cols), len(other.cols))
	}
	for i := range s.cols {
		if s.cols[i] != other.cols[i] {
			return fmt.Errorf("schema column %d differs: %s %s vs %s %s", i, s.cols[i].Name, s.cols[i].Type, other.cols[i].Name, other.cols[i].Type)
		}
	}
	return nil
}
