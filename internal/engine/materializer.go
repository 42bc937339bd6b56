package engine

import (
	"fmt"

	"github.com/go-weft/weft"
)

// materializer collects completed output Partitions for a target PartitionSet
// and reorders them by partition index, so that concurrent or out-of-order
// task completion never reorders data
type materializer struct {
	parts map[int]*weft.Partition
	count int // expected partition count, -1 until known
}

func createMaterializer() *materializer {
	return &materializer{parts: make(map[int]*weft.Partition), count: -1}
}

// Add accepts one completed output Partition, keyed by its partition index
func (m *materializer) Add(part *weft.Partition) error {
	if _, ok := m.parts[part.Index()]; ok {
		return fmt.Errorf("partition %d was materialized twice", part.Index())
	}
	m.parts[part.Index()] = part
	return nil
}

// SetNumPartitions declares the expected partition count once it is known
func (m *materializer) SetNumPartitions(n int) {
	m.count = n
}

// Complete returns true iff every expected Partition has been collected
func (m *materializer) Complete() bool {
	return m.count >= 0 && len(m.parts) == m.count
}

// Result assembles the collected Partitions into an index-ordered PartitionSet,
// transferring ownership to the caller
func (m *materializer) Result() (*weft.PartitionSet, error) {
	if !m.Complete() {
		return nil, fmt.Errorf("materializer holds %d of %d partitions", len(m.parts), m.count)
	}
	ordered := make([]*weft.Partition, m.count)
	for i := 0; i < m.count; i++ {
		ordered[i] = m.parts[i]
	}
	return weft.CreatePartitionSet(ordered)
}
