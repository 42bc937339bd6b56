package engine

import (
	"context"
	"runtime"

	"github.com/go-weft/weft"
	"github.com/go-weft/weft/errors"
)

// localBackend runs tasks on an in-process worker pool. It is modeled as a
// single logical worker whose CPU capacity equals the pool size, so slot
// accounting in the resource manager bounds task concurrency: with a pool of
// size C and 1-CPU tasks, at most C tasks execute at any instant. A pool of
// size 1 yields fully sequential, deterministic execution.
type localBackend struct {
	poolSize int
	gpus     int
}

// CreateLocalBackend is a factory for local Backends. A poolSize of 0 selects
// the detected CPU count.
func CreateLocalBackend(poolSize int, gpus int) (weft.Backend, error) {
	if poolSize < 0 || gpus < 0 {
		return nil, errors.ConfigError{Message: "local worker pool size and GPU count must be non-negative"}
	}
	if poolSize == 0 {
		poolSize = runtime.NumCPU()
	}
	return &localBackend{poolSize: poolSize, gpus: gpus}, nil
}

// Kind identifies this Backend as local
func (b *localBackend) Kind() weft.BackendKind {
	return weft.LocalBackend
}

// Describe reports the pool as one logical worker
func (b *localBackend) Describe() []weft.WorkerResources {
	return []weft.WorkerResources{{ID: "local-0", CPUs: b.poolSize, GPUs: b.gpus}}
}

// Submit executes one task in-process
func (b *localBackend) Submit(ctx context.Context, plan *weft.Plan, task *weft.Task, workerID string) ([]*weft.Partition, error) {
	return RunTask(ctx, plan, task)
}

// Stop is a no-op for local Backends
func (b *localBackend) Stop() error {
	return nil
}
