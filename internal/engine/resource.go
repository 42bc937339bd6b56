package engine

import (
	"context"
	"sync"

	"github.com/go-weft/weft"
	"github.com/go-weft/weft/errors"
)

// Slot is a claim on a fixed quantity of CPU/GPU capacity on a specific worker,
// acquired before a task runs and released on completion or failure
type Slot struct {
	WorkerID string
	CPUs     int
	GPUs     int
}

type workerSlots struct {
	id        string
	totalCPUs int
	totalGPUs int
	freeCPUs  int
	freeGPUs  int
}

type slotRequest struct {
	cpus    int
	gpus    int
	exclude string
	grant   chan Slot
}

// resourceManager tracks total and available CPU/GPU capacity per worker.
// Grants are atomic: a request is satisfied by a single worker's currently
// free capacity, never borrowed across workers. Waiting requests queue in
// FIFO order per resource class (CPU-only vs GPU), so neither class can
// starve the other and no request starves within its class.
type resourceManager struct {
	mu         sync.Mutex
	workers    []*workerSlots
	cpuWaiters []*slotRequest
	gpuWaiters []*slotRequest
}

func createResourceManager(workers []weft.WorkerResources) *resourceManager {
	rm := &resourceManager{}
	for _, w := range workers {
		rm.workers = append(rm.workers, &workerSlots{
			id:        w.ID,
			totalCPUs: w.CPUs,
			totalGPUs: w.GPUs,
			freeCPUs:  w.CPUs,
			freeGPUs:  w.GPUs,
		})
	}
	return rm
}

// Feasible returns nil iff at least one worker's total capacity can ever
// satisfy the request. Infeasible requests fail permanently.
func (rm *resourceManager) Feasible(req weft.ResourceRequest) error {
	for _, w := range rm.workers {
		if w.totalCPUs >= req.CPUs && w.totalGPUs >= req.GPUs {
			return nil
		}
	}
	return errors.ResourceError{CPUs: req.CPUs, GPUs: req.GPUs}
}

// Acquire blocks until a Slot matching the request is granted, without
// busy-waiting. The worker named by exclude is avoided when any other worker
// could ever satisfy the request (used to reschedule retries elsewhere).
func (rm *resourceManager) Acquire(ctx context.Context, req weft.ResourceRequest, exclude string) (Slot, error) {
	if err := rm.Feasible(req); err != nil {
		return Slot{}, err
	}
	rm.mu.Lock()
	exclude = rm.usableExclusion(req, exclude)
	if slot, ok := rm.tryGrant(req, exclude); ok {
		rm.mu.Unlock()
		return slot, nil
	}
	r := &slotRequest{cpus: req.CPUs, gpus: req.GPUs, exclude: exclude, grant: make(chan Slot, 1)}
	if req.GPUs > 0 {
		rm.gpuWaiters = append(rm.gpuWaiters, r)
	} else {
		rm.cpuWaiters = append(rm.cpuWaiters, r)
	}
	rm.mu.Unlock()
	select {
	case slot := <-r.grant:
		return slot, nil
	case <-ctx.Done():
		rm.abandon(r)
		// a grant may have raced the cancellation
		select {
		case slot := <-r.grant:
			rm.Release(slot)
		default:
		}
		return Slot{}, ctx.Err()
	}
}

// Release returns a Slot's capacity to its worker and grants queued requests
// in FIFO order per class
func (rm *resourceManager) Release(slot Slot) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, w := range rm.workers {
		if w.id == slot.WorkerID {
			w.freeCPUs += slot.CPUs
			w.freeGPUs += slot.GPUs
			break
		}
	}
	rm.gpuWaiters = rm.grantQueued(rm.gpuWaiters)
	rm.cpuWaiters = rm.grantQueued(rm.cpuWaiters)
}

// grantQueued grants waiters from the head of a queue until the head no
// longer fits, preserving FIFO order within the class
func (rm *resourceManager) grantQueued(waiters []*slotRequest) []*slotRequest {
	for len(waiters) > 0 {
		head := waiters[0]
		slot, ok := rm.tryGrant(weft.ResourceRequest{CPUs: head.cpus, GPUs: head.gpus}, head.exclude)
		if !ok {
			break
		}
		head.grant <- slot
		waiters = waiters[1:]
	}
	return waiters
}

// tryGrant atomically claims capacity on the first worker able to satisfy the
// request. Caller must hold rm.mu.
func (rm *resourceManager) tryGrant(req weft.ResourceRequest, exclude string) (Slot, bool) {
	for _, w := range rm.workers {
		if w.id == exclude {
			continue
		}
		if w.freeCPUs >= req.CPUs && w.freeGPUs >= req.GPUs {
			w.freeCPUs -= req.CPUs
			w.freeGPUs -= req.GPUs
			return Slot{WorkerID: w.id, CPUs: req.CPUs, GPUs: req.GPUs}, true
		}
	}
	return Slot{}, false
}

// usableExclusion drops an exclusion that would leave no worker able to ever
// satisfy the request, which would otherwise deadlock single-worker pools.
// Caller must hold rm.mu.
func (rm *resourceManager) usableExclusion(req weft.ResourceRequest, exclude string) string {
	if exclude == "" {
		return ""
	}
	for _, w := range rm.workers {
		if w.id != exclude && w.totalCPUs >= req.CPUs && w.totalGPUs >= req.GPUs {
			return exclude
		}
	}
	return ""
}

func (rm *resourceManager) abandon(r *slotRequest) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.cpuWaiters = removeWaiter(rm.cpuWaiters, r)
	rm.gpuWaiters = removeWaiter(rm.gpuWaiters, r)
}

func removeWaiter(waiters []*slotRequest, r *slotRequest) []*slotRequest {
	for i, w := range waiters {
		if w == r {
			copy(waiters[i:], waiters[i+1:])
			waiters[len(waiters)-1] = nil
			return waiters[:len(waiters)-1]
		}
	}
	return waiters
}
