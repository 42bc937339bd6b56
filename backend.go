package weft

import (
	"context"
)

// BackendKind describes the execution substrate of a Backend
type BackendKind string

const (
	// LocalBackend executes tasks on an in-process worker pool
	LocalBackend BackendKind = "local"
	// ClusterBackend submits tasks to remote worker processes
	ClusterBackend BackendKind = "cluster"
)

// WorkerResources reports the total CPU/GPU capacity of a single worker
type WorkerResources struct {
	ID   string
	CPUs int
	GPUs int
}

// Backend is the execution substrate for Tasks. Local and Cluster backends
// share this contract; the scheduler never needs to know which it is bound to.
// Submit executes one Task on the named worker and blocks until its output
// Partitions are available; the scheduler invokes it from a dedicated goroutine
// per dispatched task, so waiting on completion never starves other ready work.
type Backend interface {
	Kind() BackendKind
	Describe() []WorkerResources // Describe reports per-worker capacities for resource accounting
	Submit(ctx context.Context, plan *Plan, task *Task, workerID string) ([]*Partition, error)
	Stop() error
}
