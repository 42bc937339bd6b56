package weft

import (
	"fmt"
)

// A DataFrame is a tool for constructing a chain of logical operations over
// partitioned columnar data. Building a DataFrame performs no work; the chain
// is compiled and executed by an execution Context when the result is collected.
// Each builder method returns a new DataFrame, so chains may branch freely.
type DataFrame struct {
	source DataSource
	ops    []*Operation
	err    error
}

// extend copies this DataFrame and appends one Operation to the copy
func (df *DataFrame) extend(op *Operation) *DataFrame {
	ops := make([]*Operation, len(df.ops), len(df.ops)+1)
	copy(ops, df.ops)
	return &DataFrame{source: df.source, ops: append(ops, op)}
}

// fail copies this DataFrame, marking the copy as broken
func (df *DataFrame) fail(err error) *DataFrame {
	return &DataFrame{source: df.source, ops: df.ops, err: err}
}

// Read begins a DataFrame by declaring a DataSource to load Partitions from
func Read(source DataSource) *DataFrame {
	df := &DataFrame{source: source}
	if source == nil {
		df.err = fmt.Errorf("DataSource cannot be nil")
		return df
	}
	df.ops = append(df.ops, &Operation{
		kind:      ReadOperation,
		resources: DefaultResourceRequest(),
		schema:    source.Schema().Clone(),
	})
	return df
}

// Limit truncates the DataFrame to its first n rows, in partition order.
// Partitions beyond the cutoff are never materialized.
func (df *DataFrame) Limit(n int) *DataFrame {
	if df.err != nil {
		return df
	}
	if n < 0 {
		return df.fail(fmt.Errorf("Limit requires n >= 0, got %d", n))
	}
	return df.extend(&Operation{
		kind:      LimitOperation,
		n:         n,
		resources: DefaultResourceRequest(),
		schema:    df.schema().Clone(),
	})
}

// Repartition redistributes the DataFrame's rows into n Partitions, preserving
// total row count and global row order (concatenate-then-slice).
func (df *DataFrame) Repartition(n int) *DataFrame {
	if df.err != nil {
		return df
	}
	if n < 1 {
		return df.fail(fmt.Errorf("Repartition requires n >= 1, got %d", n))
	}
	return df.extend(&Operation{
		kind:      RepartitionOperation,
		n:         n,
		resources: DefaultResourceRequest(),
		schema:    df.schema().Clone(),
	})
}

// Select restricts the DataFrame to the named columns, in the given order
func (df *DataFrame) Select(cols ...string) *DataFrame {
	if df.err != nil {
		return df
	}
	if len(cols) == 0 {
		return df.fail(fmt.Errorf("Select requires at least one column"))
	}
	schema, err := df.schema().Select(cols...)
	if err != nil {
		return df.fail(err)
	}
	return df.extend(&Operation{
		kind:      ProjectOperation,
		cols:      cols,
		resources: DefaultResourceRequest(),
		schema:    schema,
	})
}

// WithColumn derives a new column by applying a registered UDF to an existing
// column, element-wise. The task-level resource demand is inherited from the
// UDF's registration.
func (df *DataFrame) WithColumn(name string, udfName string, inputCol string) *DataFrame {
	if df.err != nil {
		return df
	}
	reg, err := LookupUDF(udfName)
	if err != nil {
		return df.fail(err)
	}
	if !df.schema().HasColumn(inputCol) {
		return df.fail(fmt.Errorf("column %s does not exist in DataFrame", inputCol))
	}
	schema := df.schema().Clone()
	if err := schema.CreateColumn(name, reg.ReturnType); err != nil {
		return df.fail(err)
	}
	return df.extend(&Operation{
		kind:      UDFApplyOperation,
		udfName:   udfName,
		outputCol: name,
		inputCol:  inputCol,
		resources: reg.Resources,
		schema:    schema,
	})
}

// Plan finalizes this DataFrame into an executable operation chain, surfacing
// any error accumulated while building
func (df *DataFrame) Plan() (*Plan, error) {
	if df.err != nil {
		return nil, df.err
	}
	ops := make([]*Operation, len(df.ops), len(df.ops)+1)
	copy(ops, df.ops)
	ops = append(ops, &Operation{
		kind:      CollectOperation,
		resources: DefaultResourceRequest(),
		schema:    df.schema().Clone(),
	})
	return &Plan{source: df.source, ops: ops}, nil
}

// Schema returns the Schema of this DataFrame's output
func (df *DataFrame) Schema() *Schema {
	if df.err != nil {
		return CreateSchema()
	}
	return df.schema().Clone()
}

func (df *DataFrame) schema() *Schema {
	return df.ops[len(df.ops)-1].schema
}
