package weft

// OperationKind describes the logical transformation performed by an Operation
type OperationKind string

const (
	// ReadOperation indicates that an Operation sources Partitions from a DataSource
	ReadOperation OperationKind = "read"
	// LimitOperation indicates that an Operation truncates a PartitionSet to its first n rows
	LimitOperation OperationKind = "limit"
	// RepartitionOperation indicates that an Operation redistributes rows into n Partitions
	RepartitionOperation OperationKind = "repartition"
	// ProjectOperation indicates that an Operation restricts Partitions to a subset of Columns
	ProjectOperation OperationKind = "project"
	// UDFApplyOperation indicates that an Operation derives a Column by applying a UDF
	UDFApplyOperation OperationKind = "udf_apply"
	// CollectOperation indicates that an Operation materializes its input for the caller
	CollectOperation OperationKind = "collect"
)

// Operation is a single node of a finalized operation graph. Operations hold
// non-owning references to their upstream stage via their position in a Plan.
type Operation struct {
	kind      OperationKind
	n         int      // row budget for limit, target partition count for repartition
	cols      []string // retained columns for project
	udfName   string
	outputCol string
	inputCol  string
	resources ResourceRequest
	schema    *Schema // schema of this Operation's output PartitionSet
}

// Kind returns the OperationKind of this Operation
func (o *Operation) Kind() OperationKind {
	return o.kind
}

// N returns the row budget (limit) or target partition count (repartition) of this Operation
func (o *Operation) N() int {
	return o.n
}

// Cols returns the retained column names of a project Operation
func (o *Operation) Cols() []string {
	out := make([]string, len(o.cols))
	copy(out, o.cols)
	return out
}

// UDFName returns the registered UDF name of a udf_apply Operation
func (o *Operation) UDFName() string {
	return o.udfName
}

// OutputCol returns the derived column name of a udf_apply Operation
func (o *Operation) OutputCol() string {
	return o.outputCol
}

// InputCol returns the argument column name of a udf_apply Operation
func (o *Operation) InputCol() string {
	return o.inputCol
}

// Resources returns the per-task resource demand of this Operation
func (o *Operation) Resources() ResourceRequest {
	return o.resources
}

// Schema returns the Schema of this Operation's output PartitionSet
func (o *Operation) Schema() *Schema {
	return o.schema
}

// Plan is a finalized chain of Operations rooted at a read. The runner receives
// Plans as-is and never reorders them.
type Plan struct {
	source DataSource
	ops    []*Operation
}

// Source returns the DataSource feeding this Plan's read Operation
func (p *Plan) Source() DataSource {
	return p.source
}

// Size returns the number of Operations in this Plan
func (p *Plan) Size() int {
	return len(p.ops)
}

// Operation returns the Operation at a given position in this Plan
func (p *Plan) Operation(i int) *Operation {
	return p.ops[i]
}

// Schema returns the Schema of this Plan's final output
func (p *Plan) Schema() *Schema {
	return p.ops[len(p.ops)-1].schema
}
