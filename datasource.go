package weft

// DataSource is an externally-partitioned source of rows which a Plan's read
// Operation loads from. Implementations declare their partitioning up front;
// one read task is compiled per declared source partition.
type DataSource interface {
	Name() string                              // Name identifies this DataSource, for logging
	Schema() *Schema                           // Schema describes the Columns this DataSource produces
	NumPartitions() int                        // NumPartitions returns the number of source partitions
	LoadPartition(idx int) (*Partition, error) // LoadPartition materializes one source partition
}
