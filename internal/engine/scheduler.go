package engine

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/go-weft/weft"
	werrors "github.com/go-weft/weft/errors"
	"github.com/hashicorp/go-multierror"
)

const defaultMaxTaskAttempts = 3

// RunConfig carries the scheduler's tunable policy
type RunConfig struct {
	// MaxTaskAttempts bounds how many times one task may run before the whole
	// task graph is aborted. Defaults to 3.
	MaxTaskAttempts int
}

type completion struct {
	node     *taskNode
	workerID string
	outputs  []*weft.Partition
	err      error
}

// Run compiles a Plan into partition-level tasks and executes them on the
// given Backend, blocking until the final PartitionSet is materialized or the
// task graph aborts. Each dispatched task occupies its own goroutine while it
// waits for a resource Slot and for Backend completion, so the dispatch loop
// services other ready tasks in the meantime. On failure no partial
// PartitionSet is ever returned.
func Run(goctx context.Context, plan *weft.Plan, backend weft.Backend, conf *RunConfig, stats *RunStatistics) (*weft.PartitionSet, error) {
	if plan == nil || plan.Size() == 0 {
		return nil, fmt.Errorf("cannot run an empty Plan")
	}
	maxAttempts := conf.MaxTaskAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxTaskAttempts
	}
	workers := backend.Describe()
	if len(workers) == 0 {
		return nil, werrors.ConfigError{Message: "backend reports no workers"}
	}
	rm := createResourceManager(workers)
	g := buildTaskGraph(plan)
	mat := createMaterializer()
	runCtx, cancel := context.WithCancel(goctx)
	defer cancel()
	completions := make(chan *completion)
	running := 0
	var fatal *multierror.Error
	var queue []*taskNode

	dispatch := func(n *taskNode) {
		task := &weft.Task{
			ID:         n.id,
			Kind:       n.op.Kind(),
			OpIndex:    n.opIndex,
			PartIndex:  n.partIndex,
			NumOutputs: n.numOutputs,
			Budget:     n.budget,
			Resources:  n.op.Resources(),
			Attempt:    n.attempt,
		}
		for _, dep := range n.inputs {
			task.Inputs = append(task.Inputs, dep.node.outputs[dep.out])
		}
		stats.TaskDispatched(task.Kind)
		go func() {
			slot, err := rm.Acquire(runCtx, task.Resources, n.exclude)
			if err != nil {
				completions <- &completion{node: n, err: err}
				return
			}
			outputs, err := backend.Submit(runCtx, plan, task, slot.WorkerID)
			rm.Release(slot)
			completions <- &completion{node: n, workerID: slot.WorkerID, outputs: outputs, err: err}
		}()
	}

	collect := func() error {
		parts, count := g.drainFinal()
		for _, p := range parts {
			if err := mat.Add(p); err != nil {
				return err
			}
		}
		if count >= 0 {
			mat.SetNumPartitions(count)
		}
		return nil
	}

	g.start()
	for {
		queue = append(queue, g.takeReady()...)
		if fatal == nil {
			for _, n := range queue {
				if err := rm.Feasible(n.op.Resources()); err != nil {
					fatal = multierror.Append(fatal, err)
					cancel()
					break
				}
				n.state = nodeRunning
				running++
				dispatch(n)
			}
		}
		queue = queue[:0]
		if fatal == nil {
			if err := collect(); err != nil {
				fatal = multierror.Append(fatal, err)
				cancel()
			} else if mat.Complete() && running == 0 {
				return mat.Result()
			}
		}
		if running == 0 {
			if fatal != nil {
				return nil, fatal
			}
			if err := goctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("scheduler stalled with %d of %d tasks runnable", len(queue), g.numTasks())
		}
		c := <-completions
		running--
		if c.err != nil {
			if fatal != nil || runCtx.Err() != nil {
				// already aborting: discard cancellation noise
				continue
			}
			if isPermanent(c.err) {
				fatal = multierror.Append(fatal, c.err)
				cancel()
				continue
			}
			if c.node.attempt+1 < maxAttempts {
				// reschedule, avoiding the worker that just failed
				c.node.attempt++
				c.node.exclude = c.workerID
				c.node.state = nodeReady
				stats.TaskRetried()
				queue = append(queue, c.node)
				continue
			}
			fatal = multierror.Append(fatal, asTaskError(c))
			cancel()
			continue
		}
		if fatal != nil || runCtx.Err() != nil {
			// task finished during abort; its output is no longer needed
			continue
		}
		rows := 0
		for _, p := range c.outputs {
			rows += p.NumRows()
		}
		stats.TaskCompleted(c.node.op.Kind(), rows)
		g.onNodeDone(c.node, c.outputs)
	}
}

// isPermanent reports whether an error must never be retried
func isPermanent(err error) bool {
	var resourceErr werrors.ResourceError
	var invariantErr werrors.RowInvariantError
	var udfErr werrors.UnknownUDFError
	var configErr werrors.ConfigError
	return stderrors.As(err, &resourceErr) ||
		stderrors.As(err, &invariantErr) ||
		stderrors.As(err, &udfErr) ||
		stderrors.As(err, &configErr)
}

func asTaskError(c *completion) error {
	var taskErr werrors.TaskError
	if stderrors.As(c.err, &taskErr) {
		return c.err
	}
	return werrors.TaskError{TaskID: c.node.id, WorkerID: c.workerID, Attempt: c.node.attempt, Cause: c.err}
}
