// Package jsonl provides a DataSource over JSON Lines data. Columns are
// extracted lazily from each document using https://github.com/tidwall/gjson,
// and Schema column names may be formatted as gjson paths.
package jsonl

import (
	"bytes"
	"fmt"

	"github.com/go-weft/weft"
	werrors "github.com/go-weft/weft/errors"
	"github.com/tidwall/gjson"
)

// Conf configures a JSONL DataSource
type Conf struct {
	PartitionSize int // The maximum number of rows per Partition. Defaults to 128.
}

// DataSource extracts typed columns from buffers of JSON Lines data
type DataSource struct {
	name          string
	schema        *weft.Schema
	lines         [][]byte
	partitionSize int
}

// CreateDataSource builds a DataSource from buffers of JSONL data. Each buffer
// may contain any number of newline-separated JSON documents; blank lines are
// skipped. A document field which is missing or null yields an absent element.
// Fields not named by the Schema are ignored.
func CreateDataSource(name string, schema *weft.Schema, data [][]byte, conf *Conf) (*DataSource, error) {
	if schema == nil || schema.NumColumns() == 0 {
		return nil, fmt.Errorf("jsonl DataSource requires a Schema with at least one column")
	}
	if conf == nil {
		conf = &Conf{}
	}
	partitionSize := conf.PartitionSize
	if partitionSize < 0 {
		return nil, fmt.Errorf("Conf.PartitionSize must not be negative, got %d", partitionSize)
	}
	if partitionSize == 0 {
		partitionSize = 128
	}
	var lines [][]byte
	for _, buf := range data {
		for _, line := range bytes.Split(buf, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			lines = append(lines, line)
		}
	}
	return &DataSource{
		name:          name,
		schema:        schema.Clone(),
		lines:         lines,
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
	if len(ds.lines) == 0 {
		return 0
	}
	return (len(ds.lines) + ds.partitionSize - 1) / ds.partitionSize
}

// LoadPartition parses the documents belonging to the Partition at position idx
func (ds *DataSource) LoadPartition(idx int) (*weft.Partition, error) {
	if idx < 0 {
		return nil, fmt.Errorf("partition index %d is negative", idx)
	}
	if idx >= ds.NumPartitions() {
		return nil, werrors.NoMorePartitionsError{}
	}
	start := idx * ds.partitionSize
	end := start + ds.partitionSize
	if end > len(ds.lines) {
		end = len(ds.lines)
	}
	cols := make([]*weft.Column, 0, ds.schema.NumColumns())
	for _, meta := range ds.schema.Columns() {
		values := make([]interface{}, end-start)
		for r := start; r < end; r++ {
			if !gjson.ValidBytes(ds.lines[r]) {
				return nil, fmt.Errorf("document %d of DataSource %s is not valid JSON", r, ds.name)
			}
			res := gjson.GetBytes(ds.lines[r], meta.Name)
			if !res.Exists() || res.Type == gjson.Null {
				continue // absent
			}
			switch meta.Type {
			case weft.BoolColumnType:
				values[r-start] = res.Bool()
			case weft.Int64ColumnType:
				values[r-start] = res.Int()
			case weft.Float64ColumnType:
				values[r-start] = res.Float()
			case weft.StringColumnType:
				values[r-start] = res.String()
			default:
				return nil, fmt.Errorf("jsonl DataSource cannot produce column type %s", meta.Type)
			}
		}
		col, err := weft.CreateColumn(meta.Name, meta.Type, values, nil)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return weft.CreatePartition(idx, cols)
}
