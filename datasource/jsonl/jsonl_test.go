package jsonl

import (
	"testing"

	"github.com/go-weft/weft"
	"github.com/stretchr/testify/require"
)

func TestJSONLDataSource(t *testing.T) {
	schema := weft.CreateSchema()
	require.Nil(t, schema.CreateColumn("name", weft.StringColumnType))
	require.Nil(t, schema.CreateColumn("meta.index", weft.Int64ColumnType))
	require.Nil(t, schema.CreateColumn("meta.score", weft.Float64ColumnType))
	require.Nil(t, schema.CreateColumn("active", weft.BoolColumnType))
	data := [][]byte{
		[]byte("{\"name\": \"Sean\", \"meta\": {\"index\": 1, \"score\": 0.5}, \"active\": true}\n{\"name\": \"Chris\", \"meta\": {\"index\": 3, \"score\": 1.5}, \"active\": false}"),
		[]byte("{\"name\": \"Phil\", \"meta\": {\"index\": 2}, \"active\": true}\n\n{\"name\": null, \"meta\": {\"index\": 4, \"score\": 2.5}, \"active\": false}"),
	}
	src, err := CreateDataSource("people", schema, data, &Conf{PartitionSize: 3})
	require.Nil(t, err)
	require.Equal(t, 2, src.NumPartitions())

	part, err := src.LoadPartition(0)
	require.Nil(t, err)
	require.Equal(t, 3, part.NumRows())
	nameCol, err := part.Column("name")
	require.Nil(t, err)
	v, ok := nameCol.Value(1)
	require.True(t, ok)
	require.Equal(t, "Chris", v)
	indexCol, err := part.Column("meta.index")
	require.Nil(t, err)
	v, ok = indexCol.Value(2)
	require.True(t, ok)
	require.Equal(t, int64(2), v)
	// a missing field yields an absent element
	scoreCol, err := part.Column("meta.score")
	require.Nil(t, err)
	require.False(t, scoreCol.IsValid(2))
	v, ok = scoreCol.Value(0)
	require.True(t, ok)
	require.Equal(t, 0.5, v)

	part, err = src.LoadPartition(1)
	require.Nil(t, err)
	require.Equal(t, 1, part.NumRows())
	// an explicit null also yields an absent element
	nameCol, err = part.Column("name")
	require.Nil(t, err)
	require.False(t, nameCol.IsValid(0))
	activeCol, err := part.Column("active")
	require.Nil(t, err)
	v, ok = activeCol.Value(0)
	require.True(t, ok)
	require.Equal(t, false, v)
}

func TestJSONLDataSourceRejectsInvalidJSON(t *testing.T) {
	schema := weft.CreateSchema()
	require.Nil(t, schema.CreateColumn("name", weft.StringColumnType))
	src, err := CreateDataSource("bad", schema, [][]byte{[]byte("{not json}")}, nil)
	require.Nil(t, err)
	_, err = src.LoadPartition(0)
	require.NotNil(t, err)
}

func TestJSONLDataSourceValidation(t *testing.T) {
	_, err := CreateDataSource("bad", weft.CreateSchema(), nil, nil)
	require.NotNil(t, err)
	schema := weft.CreateSchema()
	require.Nil(t, schema.CreateColumn("name", weft.StringColumnType))
	_, err = CreateDataSource("bad", schema, nil, &Conf{PartitionSize: -1})
	require.NotNil(t, err)
	src, err := CreateDataSource("empty", schema, nil, nil)
	require.Nil(t, err)
	require.Equal(t, 0, src.NumPartitions())
}
