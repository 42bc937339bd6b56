package engine

import (
	"context"
	"testing"

	"github.com/go-weft/weft"
	"github.com/stretchr/testify/require"
)

// completeNode executes one generated task in-process and feeds its outputs
// back into the graph
func completeNode(t *testing.T, g *taskGraph, n *taskNode) {
	task := &weft.Task{
		ID:         n.id,
		Kind:       n.op.Kind(),
		OpIndex:    n.opIndex,
		PartIndex:  n.partIndex,
		NumOutputs: n.numOutputs,
		Budget:     n.budget,
	}
	for _, dep := range n.inputs {
		task.Inputs = append(task.Inputs, dep.node.outputs[dep.out])
	}
	outputs, err := RunTask(context.Background(), g.plan, task)
	require.Nil(t, err)
	g.onNodeDone(n, outputs)
}

func TestTaskGraphLimitDemandsOnePartitionAtATime(t *testing.T) {
	// 8 partitions of 20 rows; a limit of 30 needs only the first two
	src := createTestSource(t, 160, 20)
	plan, err := weft.Read(src).Limit(30).Plan()
	require.Nil(t, err)
	g := buildTaskGraph(plan)
	g.start()

	ready := g.takeReady()
	require.Len(t, ready, 1)
	require.Equal(t, weft.ReadOperation, ready[0].op.Kind())
	require.Equal(t, 0, ready[0].partIndex)
	completeNode(t, g, ready[0])

	ready = g.takeReady()
	require.Len(t, ready, 1)
	require.Equal(t, weft.LimitOperation, ready[0].op.Kind())
	require.Equal(t, 30, ready[0].budget)
	completeNode(t, g, ready[0])

	ready = g.takeReady()
	require.Len(t, ready, 1)
	require.Equal(t, weft.ReadOperation, ready[0].op.Kind())
	require.Equal(t, 1, ready[0].partIndex)
	completeNode(t, g, ready[0])

	ready = g.takeReady()
	require.Len(t, ready, 1)
	require.Equal(t, weft.LimitOperation, ready[0].op.Kind())
	// the second limit task carries the remaining budget
	require.Equal(t, 10, ready[0].budget)
	completeNode(t, g, ready[0])

	// budget satisfied: nothing further is ever generated
	require.Empty(t, g.takeReady())
	parts, count := g.drainFinal()
	require.Equal(t, 2, count)
	require.Len(t, parts, 2)
	require.Equal(t, 20, parts[0].NumRows())
	require.Equal(t, 10, parts[1].NumRows())
	// partitions beyond the cutoff were never compiled into tasks
	require.Equal(t, 4, g.numTasks())
}

func TestTaskGraphLimitZero(t *testing.T) {
	src := createTestSource(t, 40, 10)
	plan, err := weft.Read(src).Limit(0).Plan()
	require.Nil(t, err)
	g := buildTaskGraph(plan)
	g.start()
	require.Empty(t, g.takeReady())
	require.Equal(t, 0, g.numTasks())
	parts, count := g.drainFinal()
	require.Equal(t, 0, count)
	require.Empty(t, parts)
}

func TestTaskGraphEmptySource(t *testing.T) {
	src := createTestSource(t, 0, 10)
	plan, err := weft.Read(src).Plan()
	require.Nil(t, err)
	g := buildTaskGraph(plan)
	g.start()
	require.Empty(t, g.takeReady())
	parts, count := g.drainFinal()
	require.Equal(t, 0, count)
	require.Empty(t, parts)
}

func TestTaskGraphRepartitionPassThrough(t *testing.T) {
	// target matches the current partition count: no repartition tasks at all
	src := createTestSource(t, 20, 10)
	plan, err := weft.Read(src).Repartition(2).Plan()
	require.Nil(t, err)
	g := buildTaskGraph(plan)
	g.start()
	ready := g.takeReady()
	require.Len(t, ready, 2)
	for _, n := range ready {
		require.Equal(t, weft.ReadOperation, n.op.Kind())
		completeNode(t, g, n)
	}
	require.Empty(t, g.takeReady())
	require.Equal(t, 2, g.numTasks())
	parts, count := g.drainFinal()
	require.Equal(t, 2, count)
	require.Equal(t, sequentialIDs(20), collectIDs(t, parts))
}

func TestTaskGraphRepartitionMerge(t *testing.T) {
	src := createTestSource(t, 20, 10)
	plan, err := weft.Read(src).Repartition(5).Plan()
	require.Nil(t, err)
	g := buildTaskGraph(plan)
	g.start()
	ready := g.takeReady()
	require.Len(t, ready, 2)
	completeNode(t, g, ready[0])
	// the merge task waits for every upstream partition
	require.Empty(t, g.takeReady())
	completeNode(t, g, ready[1])
	ready = g.takeReady()
	require.Len(t, ready, 1)
	require.Equal(t, weft.RepartitionOperation, ready[0].op.Kind())
	require.Equal(t, 5, ready[0].numOutputs)
	require.Len(t, ready[0].inputs, 2)
	completeNode(t, g, ready[0])
	parts, count := g.drainFinal()
	require.Equal(t, 5, count)
	require.Len(t, parts, 5)
	require.Equal(t, sequentialIDs(20), collectIDs(t, parts))
}

func TestTaskGraphMapChainsPerPartition(t *testing.T) {
	require.Nil(t, weft.RegisterUDF("engine_test_square", func(v interface{}) (interface{}, error) {
		return v.(int64) * v.(int64), nil
	}, weft.Int64ColumnType, weft.ResourceRequest{}))
	src := createTestSource(t, 6, 2)
	plan, err := weft.Read(src).WithColumn("sq", "engine_test_square", "id").Plan()
	require.Nil(t, err)
	g := buildTaskGraph(plan)
	g.start()
	for done := false; !done; {
		ready := g.takeReady()
		done = len(ready) == 0
		for _, n := range ready {
			completeNode(t, g, n)
		}
	}
	// one read and one apply per partition
	require.Equal(t, 6, g.numTasks())
	parts, count := g.drainFinal()
	require.Equal(t, 3, count)
	for _, p := range parts {
		col, err := p.Column("sq")
		require.Nil(t, err)
		idCol, err := p.Column("id")
		require.Nil(t, err)
		for i := 0; i < p.NumRows(); i++ {
			id, _ := idCol.Value(i)
			sq, ok := col.Value(i)
			require.True(t, ok)
			require.Equal(t, id.(int64)*id.(int64), sq)
		}
	}
}
