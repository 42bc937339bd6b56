package engine

import (
	"context"
	"fmt"

	"github.com/go-weft/weft"
	"github.com/go-weft/weft/errors"
)

// RunTask executes one Task against its input Partitions, returning its output
// Partitions. It is the single execution kernel shared by the local backend
// and remote cluster workers.
func RunTask(ctx context.Context, plan *weft.Plan, task *weft.Task) ([]*weft.Partition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch task.Kind {
	case weft.ReadOperation:
		return runRead(plan, task)
	case weft.ProjectOperation:
		return runProject(plan, task)
	case weft.UDFApplyOperation:
		return runUDFApply(ctx, plan, task)
	case weft.LimitOperation:
		return runLimit(task)
	case weft.RepartitionOperation:
		return runRepartition(ctx, plan, task)
	default:
		return nil, fmt.Errorf("cannot execute task of kind %s", task.Kind)
	}
}

func runRead(plan *weft.Plan, task *weft.Task) ([]*weft.Partition, error) {
	part, err := plan.Source().LoadPartition(task.PartIndex)
	if err != nil {
		return nil, err
	}
	if err := part.Schema().Equals(plan.Source().Schema()); err != nil {
		return nil, fmt.Errorf("source partition %d does not match declared schema: %w", task.PartIndex, err)
	}
	return []*weft.Partition{part.WithIndex(task.PartIndex)}, nil
}

func runProject(plan *weft.Plan, task *weft.Task) ([]*weft.Partition, error) {
	in := task.Inputs[0]
	op := plan.Operation(task.OpIndex)
	cols := make([]*weft.Column, 0, len(op.Cols()))
	for _, name := range op.Cols() {
		col, err := in.Column(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	out, err := weft.CreatePartition(task.PartIndex, cols)
	if err != nil {
		return nil, err
	}
	return []*weft.Partition{out}, nil
}

// runUDFApply derives a new Column by applying the registered UDF element-wise.
// A row whose input is absent is never passed to the function; its output is
// absent by propagation. A row for which the function errors produces an
// absent output, and execution of the remaining rows continues.
func runUDFApply(ctx context.Context, plan *weft.Plan, task *weft.Task) ([]*weft.Partition, error) {
	in := task.Inputs[0]
	op := plan.Operation(task.OpIndex)
	reg, err := weft.LookupUDF(op.UDFName())
	if err != nil {
		return nil, err
	}
	inCol, err := in.Column(op.InputCol())
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, in.NumRows())
	valid := make([]bool, in.NumRows())
	for i := 0; i < in.NumRows(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok := inCol.Value(i)
		if !ok {
			continue
		}
		res, err := reg.Fn(v)
		if err != nil {
			continue
		}
		if err := reg.ReturnType.ValidateValue(res); err != nil {
			continue
		}
		values[i] = res
		valid[i] = true
	}
	outCol, err := weft.CreateColumn(op.OutputCol(), reg.ReturnType, values, valid)
	if err != nil {
		return nil, err
	}
	out, err := weft.CreatePartition(task.PartIndex, append(in.Columns(), outCol))
	if err != nil {
		return nil, err
	}
	if out.NumRows() != in.NumRows() {
		return nil, errors.RowInvariantError{Op: string(task.Kind), Expected: in.NumRows(), Actual: out.NumRows()}
	}
	return []*weft.Partition{out}, nil
}

// runLimit truncates a Partition to at most the task's remaining row budget
func runLimit(task *weft.Task) ([]*weft.Partition, error) {
	in := task.Inputs[0]
	n := task.Budget
	if in.NumRows() < n {
		n = in.NumRows()
	}
	out, err := in.Slice(task.PartIndex, 0, n)
	if err != nil {
		return nil, err
	}
	return []*weft.Partition{out}, nil
}

// runRepartition redistributes rows from the input Partitions into NumOutputs
// Partitions by deterministic concatenate-then-slice: rows are taken in
// (partition index, row index) order and dealt into contiguous near-equal
// chunks, so global row order is preserved end-to-end.
func runRepartition(ctx context.Context, plan *weft.Plan, task *weft.Task) ([]*weft.Partition, error) {
	op := plan.Operation(task.OpIndex)
	n := task.NumOutputs
	totalRows := task.TotalInputRows()
	if len(task.Inputs) == 0 || totalRows == 0 {
		out := make([]*weft.Partition, n)
		for i := 0; i < n; i++ {
			empty, err := weft.CreateEmptyPartition(i, op.Schema())
			if err != nil {
				return nil, err
			}
			out[i] = empty
		}
		return out, nil
	}
	schema := task.Inputs[0].Schema()
	merged := make([]*weft.Column, 0, schema.NumColumns())
	for _, meta := range schema.Columns() {
		pieces := make([]*weft.Column, 0, len(task.Inputs))
		for _, in := range task.Inputs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			col, err := in.Column(meta.Name)
			if err != nil {
				return nil, err
			}
			pieces = append(pieces, col)
		}
		col, err := weft.ConcatColumns(pieces...)
		if err != nil {
			return nil, err
		}
		merged = append(merged, col)
	}
	// contiguous chunks: the first totalRows%n chunks carry one extra row
	base := totalRows / n
	extra := totalRows % n
	out := make([]*weft.Partition, n)
	offset := 0
	outRows := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		cols := make([]*weft.Column, len(merged))
		for j, c := range merged {
			cols[j] = c.Slice(offset, offset+size)
		}
		part, err := weft.CreatePartition(i, cols)
		if err != nil {
			return nil, err
		}
		out[i] = part
		offset += size
		outRows += part.NumRows()
	}
	if outRows != totalRows {
		return nil, errors.RowInvariantError{Op: string(task.Kind), Expected: totalRows, Actual: outRows}
	}
	return out, nil
}
