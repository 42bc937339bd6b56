package weft

// A Task is the partition-level unit of executable work derived from an
// Operation: it binds one Operation to one (or more, for repartition) input
// Partition, with a declared resource requirement inherited from its Operation.
type Task struct {
	ID         string
	Kind       OperationKind
	OpIndex    int          // position of the originating Operation within its Plan
	PartIndex  int          // index of this Task's output Partition within its stage
	NumOutputs int          // target partition count, for repartition tasks
	Budget     int          // remaining row budget, for limit tasks
	Inputs     []*Partition // input Partitions, in partition-index order
	Resources  ResourceRequest
	Attempt    int
}

// TotalInputRows returns the combined row count of this Task's input Partitions
func (t *Task) TotalInputRows() int {
	total := 0
	for _, p := range t.Inputs {
		total += p.NumRows()
	}
	return total
}
