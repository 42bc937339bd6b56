// Package codec serializes Partitions into a compact, lz4-compressed columnar
// interchange format for moving them across process or machine boundaries.
// Frames are integrity-checked with xxhash64 checksums computed over the
// compressed payload.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-weft/weft"
	"github.com/pierrec/lz4"
)

// formatVersion guards against decoding frames from incompatible releases
const formatVersion uint8 = 1

// Encode serializes and lz4-compresses one Partition
func Encode(p *weft.Partition) ([]byte, error) {
	raw := new(bytes.Buffer)
	raw.WriteByte(formatVersion)
	writeUint32(raw, uint32(p.Index()))
	writeUint32(raw, uint32(p.NumRows()))
	writeUint32(raw, uint32(p.NumColumns()))
	for _, col := range p.Columns() {
		if err := encodeColumn(raw, col, p.NumRows()); err != nil {
			return nil, err
		}
	}
	compressed := new(bytes.Buffer)
	zw := lz4.NewWriter(compressed)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}

// Decode decompresses and deserializes one Partition
func Decode(b []byte) (*weft.Partition, error) {
	zr := lz4.NewReader(bytes.NewReader(b))
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("unable to decompress partition data: %w", err)
	}
	r := bytes.NewReader(raw)
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unknown partition frame version %d", version)
	}
	index, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	numRows, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	numCols, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if numCols == 0 {
		return nil, fmt.Errorf("partition frame declares zero columns")
	}
	cols := make([]*weft.Column, 0, numCols)
	for i := uint32(0); i < numCols; i++ {
		col, err := decodeColumn(r, int(numRows))
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return weft.CreatePartition(int(index), cols)
}

// Checksum computes the xxhash64 digest of an encoded frame
func Checksum(b []byte) uint64 {
	return xxhash.Sum64(b)
}

func encodeColumn(w *bytes.Buffer, col *weft.Column, numRows int) error {
	name := col.Name()
	if len(name) > math.MaxUint16 {
		return fmt.Errorf("column name %q is too long to encode", name)
	}
	writeUint16(w, uint16(len(name)))
	w.WriteString(name)
	w.WriteByte(byte(col.Type()))
	for i := 0; i < numRows; i++ {
		if col.IsValid(i) {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	}
	for i := 0; i < numRows; i++ {
		v, ok := col.Value(i)
		if !ok {
			// absent elements occupy a zero value to keep offsets simple
			v = zeroValue(col.Type())
		}
		switch col.Type() {
		case weft.BoolColumnType:
			if v.(bool) {
				w.WriteByte(1)
			} else {
				w.WriteByte(0)
			}
		case weft.Int64ColumnType:
			writeUint64(w, uint64(v.(int64)))
		case weft.Float64ColumnType:
			writeUint64(w, math.Float64bits(v.(float64)))
		case weft.StringColumnType:
			s := v.(string)
			writeUint32(w, uint32(len(s)))
			w.WriteString(s)
		default:
			return fmt.Errorf("cannot encode column type %s", col.Type())
		}
	}
	return nil
}

func decodeColumn(r *bytes.Reader, numRows int) (*weft.Column, error) {
	nameLen, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return nil, err
	}
	rawType, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	ctype := weft.ColumnType(rawType)
	valid := make([]bool, numRows)
	for i := 0; i < numRows; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		valid[i] = b == 1
	}
	values := make([]interface{}, numRows)
	for i := 0; i < numRows; i++ {
		switch ctype {
		case weft.BoolColumnType:
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			values[i] = b == 1
		case weft.Int64ColumnType:
			u, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			values[i] = int64(u)
		case weft.Float64ColumnType:
			u, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			values[i] = math.Float64frombits(u)
		case weft.StringColumnType:
			strLen, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			strBytes := make([]byte, strLen)
			if _, err := io.ReadFull(r, strBytes); err != nil {
				return nil, err
			}
			values[i] = string(strBytes)
		default:
			return nil, fmt.Errorf("cannot decode column type %d", rawType)
		}
	}
	return weft.CreateColumn(string(nameBytes), ctype, values, valid)
}

func zeroValue(t weft.ColumnType) interface{} {
	switch t {
	case weft.BoolColumnType:
		return false
	case weft.Int64ColumnType:
		return int64(0)
	case weft.Float64ColumnType:
		return float64(0)
	default:
		return ""
	}
}

func writeUint16(w *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.Write(buf[:])
}

func writeUint32(w *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
