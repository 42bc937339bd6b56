package engine

import (
	"log"

	"github.com/go-weft/weft"
	uuid "github.com/gofrs/uuid"
)

type nodeState int

const (
	// nodeBlocked indicates a task whose dependencies have not all completed
	nodeBlocked nodeState = iota
	// nodeReady indicates a task eligible for dispatch
	nodeReady
	// nodeRunning indicates a dispatched task
	nodeRunning
	// nodeDone indicates a completed task whose outputs are available
	nodeDone
)

// slotRef names one output Partition of a task: out is always 0 except for
// repartition tasks, which produce several Partitions
type slotRef struct {
	node *taskNode
	out  int
}

// taskNode is one task in the compiled task graph, binding an Operation to an
// input partition index, with explicit dependency edges
type taskNode struct {
	id         string
	frameIdx   int
	partIndex  int
	opIndex    int
	op         *weft.Operation
	budget     int // limit tasks only
	numOutputs int // repartition tasks only
	inputs     []slotRef
	waiting    int // dependencies not yet complete
	dependents []*taskNode
	state      nodeState
	attempt    int
	exclude    string // worker to avoid after a failure
	outputs    []*weft.Partition
}

// opFrame tracks compilation state for one Operation: which of its tasks have
// been generated, how many output partitions it will have once known, and the
// demand signalled by downstream Operations
type opFrame struct {
	idx         int
	op          *weft.Operation
	nodes       map[int]*taskNode
	created     int  // tasks generated so far (output slots, for repartition)
	sealed      bool // output partition count is final
	outCount    int  // valid once sealed
	passThrough bool // frame forwards upstream slots without tasks
	remaining   int  // undistributed row budget, limit frames only
	demandAll   bool
	demanded    int // demand high-water mark: slots [0, demanded) are wanted
}

// taskGraph lowers a Plan into partition-level tasks under a demand protocol:
// downstream frames request upstream output partitions, and tasks are only
// generated for requested partitions. Limit frames request upstream partitions
// one at a time, in index order, and stop requesting the moment their row
// budget is satisfied, so partitions beyond the cutoff are never compiled.
type taskGraph struct {
	plan         *weft.Plan
	frames       []*opFrame
	ready        []*taskNode
	finalDrained map[int]bool
}

func buildTaskGraph(plan *weft.Plan) *taskGraph {
	g := &taskGraph{plan: plan, finalDrained: make(map[int]bool)}
	for i := 0; i < plan.Size(); i++ {
		op := plan.Operation(i)
		f := &opFrame{idx: i, op: op, nodes: make(map[int]*taskNode)}
		switch op.Kind() {
		case weft.ReadOperation:
			f.sealed = true
			f.outCount = plan.Source().NumPartitions()
		case weft.LimitOperation:
			f.remaining = op.N()
			if op.N() == 0 {
				f.sealed = true
			}
		case weft.CollectOperation:
			f.passThrough = true
		}
		g.frames = append(g.frames, f)
	}
	return g
}

// start demands the final frame's entire output and generates the initial tasks
func (g *taskGraph) start() {
	g.demandAllFrame(len(g.frames) - 1)
	g.advance()
}

// takeReady drains the set of tasks eligible for dispatch
func (g *taskGraph) takeReady() []*taskNode {
	ready := g.ready
	g.ready = nil
	return ready
}

// onNodeDone records a task's outputs, updates limit budgets, unblocks
// dependents, and generates any newly-demanded tasks
func (g *taskGraph) onNodeDone(n *taskNode, outputs []*weft.Partition) {
	n.state = nodeDone
	n.outputs = outputs
	f := g.frames[n.frameIdx]
	if f.op.Kind() == weft.LimitOperation {
		f.remaining -= outputs[0].NumRows()
		if f.remaining <= 0 && !f.sealed {
			// row budget satisfied: no further partitions are ever compiled
			f.sealed = true
			f.outCount = n.partIndex + 1
		}
	}
	for _, d := range n.dependents {
		d.waiting--
		if d.waiting == 0 && d.state == nodeBlocked {
			d.state = nodeReady
			g.ready = append(g.ready, d)
		}
	}
	g.advance()
}

// advance generates tasks until no frame can make further progress
func (g *taskGraph) advance() {
	for progress := true; progress; {
		progress = false
		for _, f := range g.frames {
			if g.advanceFrame(f) {
				progress = true
			}
		}
	}
}

func (g *taskGraph) advanceFrame(f *opFrame) bool {
	switch f.op.Kind() {
	case weft.ReadOperation:
		return g.advanceRead(f)
	case weft.ProjectOperation, weft.UDFApplyOperation:
		return g.advanceMap(f)
	case weft.LimitOperation:
		return g.advanceLimit(f)
	case weft.RepartitionOperation:
		return g.advanceRepartition(f)
	case weft.CollectOperation:
		return g.advanceCollect(f)
	default:
		log.Panicf("cannot compile unknown operation kind %s", f.op.Kind())
		return false
	}
}

func (g *taskGraph) advanceRead(f *opFrame) bool {
	bound := f.demanded
	if f.demandAll {
		bound = f.outCount
	}
	if bound > f.outCount {
		bound = f.outCount
	}
	progress := false
	for f.created < bound {
		g.createNode(f, f.created, nil)
		progress = true
	}
	return progress
}

func (g *taskGraph) advanceMap(f *opFrame) bool {
	progress := false
	u := f.idx - 1
	if !f.sealed && g.frames[u].sealed {
		f.sealed = true
		f.outCount = g.frames[u].outCount
		progress = true
	}
	for {
		if !f.demandAll && f.created >= f.demanded {
			break
		}
		if f.sealed && f.created >= f.outCount {
			break
		}
		dep := g.resolveSlot(u, f.created)
		if dep.node == nil {
			break
		}
		g.createNode(f, f.created, []slotRef{dep})
		progress = true
	}
	return progress
}

func (g *taskGraph) advanceLimit(f *opFrame) bool {
	if f.sealed || (!f.demandAll && f.demanded == 0) {
		return false
	}
	u := f.idx - 1
	if f.remaining <= 0 {
		f.sealed = true
		f.outCount = f.created
		return true
	}
	if g.frames[u].sealed && f.created >= g.frames[u].outCount {
		// upstream exhausted before the budget was
		f.sealed = true
		f.outCount = f.created
		return true
	}
	i := f.created
	if i > 0 && f.nodes[i-1].state != nodeDone {
		// tasks are generated one partition at a time, in order
		return false
	}
	demanded := g.demandSlot(u, i)
	dep := g.resolveSlot(u, i)
	if dep.node == nil {
		// raising demand is progress: upstream frames react on the next pass
		return demanded
	}
	n := g.createNode(f, i, []slotRef{dep})
	n.budget = f.remaining
	return true
}

func (g *taskGraph) advanceRepartition(f *opFrame) bool {
	if f.sealed || (!f.demandAll && f.demanded == 0) {
		return false
	}
	u := f.idx - 1
	if !g.frames[u].sealed {
		return false
	}
	upCount := g.frames[u].outCount
	if f.op.N() == upCount {
		// target matches the current partition count: pass-through, no tasks
		f.passThrough = true
		f.sealed = true
		f.outCount = upCount
		return true
	}
	if g.slotsCreated(u) < upCount {
		return false
	}
	inputs := make([]slotRef, upCount)
	for i := 0; i < upCount; i++ {
		inputs[i] = g.resolveSlot(u, i)
	}
	n := g.createNode(f, 0, inputs)
	n.numOutputs = f.op.N()
	f.created = f.op.N()
	f.sealed = true
	f.outCount = f.op.N()
	return true
}

func (g *taskGraph) advanceCollect(f *opFrame) bool {
	u := f.idx - 1
	if !f.sealed && g.frames[u].sealed {
		f.sealed = true
		f.outCount = g.frames[u].outCount
		return true
	}
	return false
}

// demandSlot requests that output partition i of frame fi eventually exist,
// reporting whether any demand was raised
func (g *taskGraph) demandSlot(fi int, i int) bool {
	f := g.frames[fi]
	if f.demandAll || i < f.demanded {
		return false
	}
	f.demanded = i + 1
	switch f.op.Kind() {
	case weft.ReadOperation:
		// leaf: no upstream
	case weft.LimitOperation:
		// limit drives its own upstream demand, one partition at a time
	case weft.RepartitionOperation:
		// any output partition requires every upstream partition
		g.demandAllFrame(fi - 1)
	default:
		g.demandSlot(fi-1, i)
	}
	return true
}

// demandAllFrame requests every output partition of frame fi, reporting
// whether any demand was raised
func (g *taskGraph) demandAllFrame(fi int) bool {
	f := g.frames[fi]
	if f.demandAll {
		return false
	}
	f.demandAll = true
	switch f.op.Kind() {
	case weft.ReadOperation:
	case weft.LimitOperation:
		// sequential upstream demand regardless of how much is wanted below
	default:
		g.demandAllFrame(fi - 1)
	}
	return true
}

// resolveSlot returns the task (and output offset) backing output partition i
// of frame fi, following pass-through frames upstream. A nil node means the
// backing task has not been generated yet.
func (g *taskGraph) resolveSlot(fi int, i int) slotRef {
	f := g.frames[fi]
	if f.passThrough {
		return g.resolveSlot(fi-1, i)
	}
	if f.op.Kind() == weft.RepartitionOperation {
		return slotRef{node: f.nodes[0], out: i}
	}
	return slotRef{node: f.nodes[i], out: 0}
}

// slotsCreated counts the output slots of frame fi whose backing tasks exist
func (g *taskGraph) slotsCreated(fi int) int {
	f := g.frames[fi]
	if f.passThrough {
		return g.slotsCreated(fi - 1)
	}
	return f.created
}

func (g *taskGraph) createNode(f *opFrame, partIndex int, inputs []slotRef) *taskNode {
	id, err := uuid.NewV4()
	if err != nil {
		log.Panicf("failed to generate UUID for task: %v", err)
	}
	n := &taskNode{
		id:        id.String(),
		frameIdx:  f.idx,
		partIndex: partIndex,
		opIndex:   f.idx,
		op:        f.op,
		inputs:    inputs,
	}
	for _, dep := range inputs {
		if dep.node.state != nodeDone {
			n.waiting++
			dep.node.dependents = append(dep.node.dependents, n)
		}
	}
	f.nodes[partIndex] = n
	if f.op.Kind() != weft.RepartitionOperation {
		f.created = partIndex + 1
	}
	if n.waiting == 0 {
		n.state = nodeReady
		g.ready = append(g.ready, n)
	}
	return n
}

// drainFinal emits output Partitions of the final frame which have completed
// since the last call, in no particular order, alongside the final partition
// count once it is known (-1 otherwise)
func (g *taskGraph) drainFinal() ([]*weft.Partition, int) {
	fi := len(g.frames) - 1
	f := g.frames[fi]
	bound := g.slotsCreated(fi)
	if f.sealed && f.outCount < bound {
		bound = f.outCount
	}
	var out []*weft.Partition
	for i := 0; i < bound; i++ {
		if g.finalDrained[i] {
			continue
		}
		dep := g.resolveSlot(fi, i)
		if dep.node == nil || dep.node.state != nodeDone {
			continue
		}
		g.finalDrained[i] = true
		out = append(out, dep.node.outputs[dep.out].WithIndex(i))
	}
	count := -1
	if f.sealed {
		count = f.outCount
	}
	return out, count
}

// numTasks reports how many tasks have been generated, for statistics
func (g *taskGraph) numTasks() int {
	total := 0
	for _, f := range g.frames {
		total += len(f.nodes)
	}
	return total
}
