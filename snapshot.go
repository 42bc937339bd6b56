package weft

import (
	"fmt"
	"strings"
)

// Snapshot is a flattened, row-major view of a PartitionSet for external
// consumption (display or export). Absent elements are nil. A Snapshot is
// deterministic given identical partition contents and ordering.
type Snapshot struct {
	ColumnNames []string
	ColumnTypes []ColumnType
	Rows        [][]interface{}
}

// Snapshot flattens this PartitionSet into at most n rows, in partition-index
// order. A negative n takes every row.
func (ps *PartitionSet) Snapshot(n int) *Snapshot {
	var names []string
	var types []ColumnType
	if ps.NumPartitions() > 0 {
		for _, c := range ps.Partition(0).Columns() {
			names = append(names, c.Name())
			types = append(types, c.Type())
		}
	}
	snap := &Snapshot{ColumnNames: names, ColumnTypes: types}
	for _, part := range ps.parts {
		cols := part.Columns()
		for i := 0; i < part.NumRows(); i++ {
			if n >= 0 && len(snap.Rows) >= n {
				return snap
			}
			row := make([]interface{}, len(cols))
			for j, c := range cols {
				if v, ok := c.Value(i); ok {
					row[j] = v
				}
			}
			snap.Rows = append(snap.Rows, row)
		}
	}
	return snap
}

// NumRows returns the number of rows in this Snapshot
func (s *Snapshot) NumRows() int {
	return len(s.Rows)
}

// String renders this Snapshot as a table for display
func (s *Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", strings.Join(s.ColumnNames, " | "))
	for _, row := range s.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = s.ColumnTypes[j].ToString(v)
		}
		fmt.Fprintf(&b, "%s\n", strings.Join(cells, " | "))
	}
	return b.String()
}
