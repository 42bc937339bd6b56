// Package memory provides a DataSource over in-memory row data, chiefly
// useful for tests and small jobs.
package memory

import (
	"fmt"

	"github.com/go-weft/weft"
	werrors "github.com/go-weft/weft/errors"
)

// DataSource is a fixed, in-memory buffer of rows divided into
// equally-sized Partitions
type DataSource struct {
	name          string
	schema        *weft.Schema
	rows          [][]interface{}
	partitionSize int
}

// CreateDataSource builds a DataSource from rows of values ordered to match
// the Schema's columns. A nil value marks an absent (null) element. Rows are
// divided into Partitions of at most partitionSize rows, which defaults to 128.
func CreateDataSource(name string, schema *weft.Schema, rows [][]interface{}, partitionSize int) (*DataSource, error) {
	if schema == nil || schema.NumColumns() == 0 {
		return nil, fmt.Errorf("memory DataSource requires a Schema with at least one column")
	}
	if partitionSize < 0 {
		return nil, fmt.Errorf("partitionSize must not be negative, got %d", partitionSize)
	}
	if partitionSize == 0 {
		partitionSize = 128
	}
	// copy the rows so later mutation of the caller's slices cannot alter
	// the Partitions this DataSource produces
	copied := make([][]interface{}, len(rows))
	for i, row := range rows {
		if len(row) != schema.NumColumns() {
			return nil, fmt.Errorf("row %d has %d values but the Schema has %d columns", i, len(row), schema.NumColumns())
		}
		copied[i] = make([]interface{}, len(row))
		copy(copied[i], row)
	}
	return &DataSource{
		name:          name,
		schema:        schema.Clone(),
		rows:          copied,
		partitionSize: partitionSize,
	}, nil
}

// Name returns the name of this DataSource
func (ds *DataSource) Name() string {
	return ds.name
}

// Schema returns the Schema shared by this DataSource's Partitions
func (ds *DataSource) Schema() *weft.Schema {
	return ds.schema.Clone()
}

// NumPartitions returns the number of Partitions this DataSource divides into
func (ds *DataSource) NumPartitions() int {
	if len(ds.rows) == 0 {
		return 0
	}
	return (len(ds.rows) + ds.partitionSize - 1) / ds.partitionSize
}

// LoadPartition materializes the Partition at position idx
func (ds *DataSource) LoadPartition(idx int) (*weft.Partition, error) {
	if idx < 0 {
		return nil, fmt.Errorf("partition index %d is negative", idx)
	}
	if idx >= ds.NumPartitions() {
		return nil, werrors.NoMorePartitionsError{}
	}
	start := idx * ds.partitionSize
	end := start + ds.partitionSize
	if end > len(ds.rows) {
		end = len(ds.rows)
	}
	cols := make([]*weft.Column, 0, ds.schema.NumColumns())
	for c, meta := range ds.schema.Columns() {
		values := make([]interface{}, end-start)
		for r := start; r < end; r++ {
			values[r-start] = ds.rows[r][c]
		}
		col, err := weft.CreateColumn(meta.Name, meta.Type, values, nil)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return weft.CreatePartition(idx, cols)
}
