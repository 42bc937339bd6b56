package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-weft/weft"
	werrors "github.com/go-weft/weft/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func runPlan(t *testing.T, df *weft.DataFrame, backend weft.Backend) (*weft.PartitionSet, *RunStatistics, error) {
	plan, err := df.Plan()
	require.Nil(t, err)
	stats := CreateRunStatistics()
	result, err := Run(context.Background(), plan, backend, &RunConfig{}, stats)
	return result, stats, err
}

func createSequentialBackend(t *testing.T) weft.Backend {
	backend, err := CreateLocalBackend(1, 0)
	require.Nil(t, err)
	return backend
}

func TestSchedulerCollect(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 160, 20)
	result, stats, err := runPlan(t, weft.Read(src), createSequentialBackend(t))
	require.Nil(t, err)
	require.Equal(t, 8, result.NumPartitions())
	require.Equal(t, 160, result.NumRows())
	require.Equal(t, sequentialIDs(160), collectIDs(t, result.Partitions()))
	require.Equal(t, 8, stats.NumDispatched(weft.ReadOperation))
	require.Equal(t, 8, stats.NumCompleted(weft.ReadOperation))
	require.Equal(t, 0, stats.NumRetries())
}

func TestSchedulerLimitSkipsTrailingPartitions(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 160, 20)
	result, stats, err := runPlan(t, weft.Read(src).Limit(30), createSequentialBackend(t))
	require.Nil(t, err)
	require.Equal(t, 30, result.NumRows())
	require.Equal(t, sequentialIDs(30), collectIDs(t, result.Partitions()))
	// only the partitions needed to satisfy the budget were ever read
	require.Equal(t, 2, stats.NumDispatched(weft.ReadOperation))
	require.Equal(t, 2, stats.NumDispatched(weft.LimitOperation))
}

func TestSchedulerLimitExceedingDataset(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 160, 20)
	result, _, err := runPlan(t, weft.Read(src).Limit(1000), createSequentialBackend(t))
	require.Nil(t, err)
	require.Equal(t, 160, result.NumRows())
	require.Equal(t, 8, result.NumPartitions())
}

func TestSchedulerRepartition(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 160, 20)
	result, _, err := runPlan(t, weft.Read(src).Repartition(4), createSequentialBackend(t))
	require.Nil(t, err)
	require.Equal(t, 4, result.NumPartitions())
	require.Equal(t, 160, result.NumRows())
	for i := 0; i < 4; i++ {
		require.Equal(t, 40, result.Partition(i).NumRows())
	}
	require.Equal(t, sequentialIDs(160), collectIDs(t, result.Partitions()))
}

func TestSchedulerRepartitionThenLimit(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 160, 20)
	result, _, err := runPlan(t, weft.Read(src).Repartition(4).Limit(160), createSequentialBackend(t))
	require.Nil(t, err)
	require.Equal(t, 160, result.NumRows())
	require.Equal(t, sequentialIDs(160), collectIDs(t, result.Partitions()))
}

func TestSchedulerUDFApply(t *testing.T) {
	defer goleak.VerifyNone(t)
	require.Nil(t, weft.RegisterUDF("scheduler_test_third", func(v interface{}) (interface{}, error) {
		id := v.(int64)
		if id%3 != 0 {
			return nil, fmt.Errorf("%d is not divisible by 3", id)
		}
		return id / 3, nil
	}, weft.Int64ColumnType, weft.ResourceRequest{}))
	src := createTestSource(t, 30, 10)
	backend, err := CreateLocalBackend(4, 0)
	require.Nil(t, err)
	result, _, err := runPlan(t, weft.Read(src).WithColumn("third", "scheduler_test_third", "id"), backend)
	require.Nil(t, err)
	require.Equal(t, 30, result.NumRows())
	snap := result.Snapshot(-1)
	for i, row := range snap.Rows {
		if i%3 == 0 {
			require.Equal(t, int64(i/3), row[1])
		} else {
			require.Nil(t, row[1])
		}
	}
}

// flakyBackend fails the first attempt of every task, succeeding on retries
type flakyBackend struct {
	weft.Backend
	mu     sync.Mutex
	failed map[string]bool
}

func (b *flakyBackend) Submit(ctx context.Context, plan *weft.Plan, task *weft.Task, workerID string) ([]*weft.Partition, error) {
	b.mu.Lock()
	first := !b.failed[task.ID]
	b.failed[task.ID] = true
	b.mu.Unlock()
	if first {
		return nil, fmt.Errorf("transient failure for task %s", task.ID)
	}
	return b.Backend.Submit(ctx, plan, task, workerID)
}

func TestSchedulerRetriesTransientFailures(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 160, 20)
	backend := &flakyBackend{Backend: createSequentialBackend(t), failed: make(map[string]bool)}
	result, stats, err := runPlan(t, weft.Read(src), backend)
	require.Nil(t, err)
	require.Equal(t, 160, result.NumRows())
	require.Equal(t, sequentialIDs(160), collectIDs(t, result.Partitions()))
	require.Equal(t, 8, stats.NumRetries())
	// every read was dispatched twice: the failed attempt and the retry
	require.Equal(t, 16, stats.NumDispatched(weft.ReadOperation))
	require.Equal(t, 8, stats.NumCompleted(weft.ReadOperation))
}

// brokenBackend fails every submission
type brokenBackend struct {
	weft.Backend
}

func (b *brokenBackend) Submit(ctx context.Context, plan *weft.Plan, task *weft.Task, workerID string) ([]*weft.Partition, error) {
	return nil, fmt.Errorf("worker is on fire")
}

func TestSchedulerAbortsAfterRetriesExhausted(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 40, 10)
	backend := &brokenBackend{Backend: createSequentialBackend(t)}
	plan, err := weft.Read(src).Plan()
	require.Nil(t, err)
	stats := CreateRunStatistics()
	result, err := Run(context.Background(), plan, backend, &RunConfig{MaxTaskAttempts: 2}, stats)
	// no partial result is ever returned
	require.Nil(t, result)
	require.NotNil(t, err)
	var taskErr werrors.TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, 1, taskErr.Attempt)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
}

func TestSchedulerAbortsOnInfeasibleResources(t *testing.T) {
	defer goleak.VerifyNone(t)
	require.Nil(t, weft.RegisterUDF("scheduler_test_greedy", func(v interface{}) (interface{}, error) {
		return v, nil
	}, weft.Int64ColumnType, weft.ResourceRequest{CPUs: 100}))
	src := createTestSource(t, 10, 5)
	backend, err := CreateLocalBackend(2, 0)
	require.Nil(t, err)
	result, _, err := runPlan(t, weft.Read(src).WithColumn("out", "scheduler_test_greedy", "id"), backend)
	require.Nil(t, result)
	var resourceErr werrors.ResourceError
	require.ErrorAs(t, err, &resourceErr)
	require.Equal(t, 100, resourceErr.CPUs)
}

// stallingBackend fails one task permanently and parks every other submission
// until its context is cancelled
type stallingBackend struct {
	weft.Backend
}

func (b *stallingBackend) Submit(ctx context.Context, plan *weft.Plan, task *weft.Task, workerID string) ([]*weft.Partition, error) {
	if task.PartIndex == 0 {
		return nil, werrors.RowInvariantError{Op: string(task.Kind)}
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSchedulerAbortCancelsInFlightTasks(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 160, 20)
	local, err := CreateLocalBackend(4, 0)
	require.Nil(t, err)
	backend := &stallingBackend{Backend: local}
	result, _, err := runPlan(t, weft.Read(src), backend)
	require.Nil(t, result)
	var invariantErr werrors.RowInvariantError
	require.ErrorAs(t, err, &invariantErr)
}

// observingBackend tracks the peak number of concurrently executing tasks
type observingBackend struct {
	weft.Backend
	mu      sync.Mutex
	current int
	peak    int
}

func (b *observingBackend) Submit(ctx context.Context, plan *weft.Plan, task *weft.Task, workerID string) ([]*weft.Partition, error) {
	b.mu.Lock()
	b.current++
	if b.current > b.peak {
		b.peak = b.current
	}
	b.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	out, err := b.Backend.Submit(ctx, plan, task, workerID)
	b.mu.Lock()
	b.current--
	b.mu.Unlock()
	return out, err
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 200, 10)
	local, err := CreateLocalBackend(3, 0)
	require.Nil(t, err)
	backend := &observingBackend{Backend: local}
	result, _, err := runPlan(t, weft.Read(src), backend)
	require.Nil(t, err)
	require.Equal(t, 200, result.NumRows())
	require.LessOrEqual(t, backend.peak, 3)
}

func TestSchedulerHonorsCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := createTestSource(t, 40, 10)
	plan, err := weft.Read(src).Plan()
	require.Nil(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := Run(ctx, plan, createSequentialBackend(t), &RunConfig{}, CreateRunStatistics())
	require.Nil(t, result)
	require.Equal(t, context.Canceled, err)
}

func TestSchedulerRejectsEmptyPlan(t *testing.T) {
	_, err := Run(context.Background(), nil, createSequentialBackend(t), &RunConfig{}, CreateRunStatistics())
	require.NotNil(t, err)
}
