package weft

import (
	"fmt"

	"github.com/go-weft/weft/errors"
)

// Partition is an immutable, ordered set of equal-length Columns, identified by
// its index within a PartitionSet. A Partition is produced by exactly one task
// and is never mutated after creation; operations always produce new Partitions.
type Partition struct {
	index   int
	numRows int
	cols    []*Column
}

// CreatePartition builds a Partition from equal-length Columns
func CreatePartition(index int, cols []*Column) (*Partition, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("Partition requires at least one Column")
	}
	numRows := cols[0].Len()
	for _, c := range cols {
		if c.Len() != numRows {
			return nil, errors.IncompatibleColumnError{}
		}
	}
	owned := make([]*Column, len(cols))
	copy(owned, cols)
	return &Partition{index: index, numRows: numRows, cols: owned}, nil
}

// CreateEmptyPartition builds a zero-row Partition matching a Schema
func CreateEmptyPartition(index int, schema *Schema) (*Partition, error) {
	cols := make([]*Column, 0, schema.NumColumns())
	for _, meta := range schema.Columns() {
		col, err := CreateColumn(meta.Name, meta.Type, nil, nil)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return &Partition{index: index, numRows: 0, cols: cols}, nil
}

// Index returns the index of this Partition within its PartitionSet
func (p *Partition) Index() int {
	return p.index
}

// NumRows returns the number of rows in this Partition
func (p *Partition) NumRows() int {
	return p.numRows
}

// NumColumns returns the number of Columns in this Partition
func (p *Partition) NumColumns() int {
	return len(p.cols)
}

// Columns returns the ordered Columns of this Partition
func (p *Partition) Columns() []*Column {
	out := make([]*Column, len(p.cols))
	copy(out, p.cols)
	return out
}

// Column returns the named Column of this Partition
func (p *Partition) Column(name string) (*Column, error) {
	for _, c := range p.cols {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("column %s does not exist in Partition %d", name, p.index)
}

// Schema derives the Schema of this Partition from its Columns
func (p *Partition) Schema() *Schema {
	s := CreateSchema()
	for _, c := range p.cols {
		s.CreateColumn(c.Name(), c.Type())
	}
	return s
}

// Slice returns a new Partition containing rows [start, end), under a new index
func (p *Partition) Slice(index int, start int, end int) (*Partition, error) {
	if start < 0 || end > p.numRows || start > end {
		return nil, fmt.Errorf("slice [%d, %d) out of range for Partition with %d rows", start, end, p.numRows)
	}
	cols := make([]*Column, len(p.cols))
	for i, c := range p.cols {
		cols[i] = c.Slice(start, end)
	}
	return CreatePartition(index, cols)
}

// WithIndex returns a copy of this Partition under a new index, sharing Columns.
// Safe because Columns are immutable.
func (p *Partition) WithIndex(index int) *Partition {
	return &Partition{index: index, numRows: p.numRows, cols: p.cols}
}

// PartitionSet is an ordered sequence of Partitions representing the full
// dataset at one pipeline stage. The sum of partition row counts equals the
// dataset's total row count, and partition order is semantically significant.
type PartitionSet struct {
	parts []*Partition
}

// CreatePartitionSet builds a PartitionSet, verifying that partition indices
// are contiguous from zero and match their positions
func CreatePartitionSet(parts []*Partition) (*PartitionSet, error) {
	owned := make([]*Partition, len(parts))
	for i, p := range parts {
		if p == nil {
			return nil, fmt.Errorf("PartitionSet is missing partition %d", i)
		}
		if p.Index() != i {
			return nil, fmt.Errorf("partition at position %d carries index %d", i, p.Index())
		}
		owned[i] = p
	}
	return &PartitionSet{parts: owned}, nil
}

// NumPartitions returns the number of Partitions in this PartitionSet
func (ps *PartitionSet) NumPartitions() int {
	return len(ps.parts)
}

// NumRows returns the total number of rows across this PartitionSet
func (ps *PartitionSet) NumRows() int {
	total := 0
	for _, p := range ps.parts {
		total += p.NumRows()
	}
	return total
}

// Partition returns the Partition at a given index
func (ps *PartitionSet) Partition(i int) *Partition {
	return ps.parts[i]
}

// Partitions returns the ordered Partitions of this PartitionSet
func (ps *PartitionSet) Partitions() []*Partition {
	out := make([]*Partition, len(ps.parts))
	copy(out, ps.parts)
	return out
}
