package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-weft/weft"
	werrors "github.com/go-weft/weft/errors"
	"github.com/go-weft/weft/logging"
	"golang.org/x/sync/semaphore"
)

// BackendOptions configure a coordinator's connection to a pool of workers
type BackendOptions struct {
	WorkerAddrs          []string      // [REQUIRED] host:port of each worker
	RPCTimeout           time.Duration // timeout for all RPC calls
	MaxInFlightPerWorker int           // cap on concurrent task submissions per worker
	ShutdownWorkers      bool          // iff true, Stop() asks workers to shut down
}

func ensureDefaultBackendOptionsValues(opts *BackendOptions) error {
	if len(opts.WorkerAddrs) == 0 {
		return werrors.ConfigError{Message: "BackendOptions.WorkerAddrs must name at least one worker"}
	}
	if opts.RPCTimeout == 0 {
		opts.RPCTimeout = time.Duration(30) * time.Second
	}
	if opts.MaxInFlightPerWorker == 0 {
		opts.MaxInFlightPerWorker = 8
	}
	return nil
}

// remoteWorker is the coordinator's handle on one worker process
type remoteWorker struct {
	id       string
	addr     string
	cpus     int
	gpus     int
	inFlight *semaphore.Weighted
}

type backend struct {
	opts    *BackendOptions
	client  *http.Client
	workers map[string]*remoteWorker
	order   []string // worker IDs in WorkerAddrs order, for stable Describe output
}

// CreateBackend connects to a pool of running workers and returns a Backend
// which executes tasks on them. Workers are polled for their advertised
// resources, with retries to tolerate workers which are still binding.
func CreateBackend(opts *BackendOptions) (weft.Backend, error) {
	if err := ensureDefaultBackendOptionsValues(opts); err != nil {
		return nil, err
	}
	b := &backend{
		opts:    opts,
		client:  &http.Client{Timeout: opts.RPCTimeout},
		workers: make(map[string]*remoteWorker),
	}
	for _, addr := range opts.WorkerAddrs {
		res, err := b.fetchResources(addr)
		if err != nil {
			return nil, fmt.Errorf("unable to reach worker at %s: %w", addr, err)
		}
		if _, ok := b.workers[res.WorkerID]; ok {
			return nil, werrors.ConfigError{Message: fmt.Sprintf("worker %s appears at more than one address", res.WorkerID)}
		}
		b.workers[res.WorkerID] = &remoteWorker{
			id:       res.WorkerID,
			addr:     addr,
			cpus:     res.CPUs,
			gpus:     res.GPUs,
			inFlight: semaphore.NewWeighted(int64(opts.MaxInFlightPerWorker)),
		}
		b.order = append(b.order, res.WorkerID)
	}
	return b, nil
}

func (b *backend) fetchResources(addr string) (*resourcesResponse, error) {
	var lastErr error
	for retries := 0; retries < 5; retries++ {
		if retries > 0 {
			time.Sleep(time.Second)
		}
		resp, err := b.client.Get(fmt.Sprintf("http://%s%s", addr, resourcesPath))
		if err != nil {
			lastErr = err
			continue
		}
		var res resourcesResponse
		err = json.NewDecoder(resp.Body).Decode(&res)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return &res, nil
	}
	return nil, lastErr
}

// Kind identifies this as a cluster Backend
func (b *backend) Kind() weft.BackendKind {
	return weft.ClusterBackend
}

// Describe returns the resources advertised by each connected worker
func (b *backend) Describe() []weft.WorkerResources {
	out := make([]weft.WorkerResources, 0, len(b.order))
	for _, id := range b.order {
		w := b.workers[id]
		out = append(out, weft.WorkerResources{ID: w.id, CPUs: w.cpus, GPUs: w.gpus})
	}
	return out
}

// Submit executes one Task on the named worker, blocking until it completes.
// Partitions are shipped both ways as compressed, checksummed frames.
func (b *backend) Submit(ctx context.Context, plan *weft.Plan, task *weft.Task, workerID string) ([]*weft.Partition, error) {
	w, ok := b.workers[workerID]
	if !ok {
		return nil, fmt.Errorf("unknown worker %s", workerID)
	}
	if err := w.inFlight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer w.inFlight.Release(1)
	inputs := make([]partitionEnvelope, 0, len(task.Inputs))
	for _, part := range task.Inputs {
		env, err := encodePartition(part)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, env)
	}
	req := &taskRequest{
		TaskID:     task.ID,
		Kind:       string(task.Kind),
		OpIndex:    task.OpIndex,
		PartIndex:  task.PartIndex,
		NumOutputs: task.NumOutputs,
		Budget:     task.Budget,
		Attempt:    task.Attempt,
		Inputs:     inputs,
	}
	res, err := b.post(ctx, w, req)
	if err != nil {
		return nil, err
	}
	// replay worker-side log lines before surfacing the outcome
	for _, msg := range res.Logs {
		logging.Logf(msg.Level, msg.Source, "%s", msg.Message)
	}
	if res.ErrorKind != "" {
		return nil, reconstructError(res, task)
	}
	outputs, err := decodeInputs(res.Outputs)
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

func (b *backend) post(ctx context.Context, w *remoteWorker, req *taskRequest) (*taskResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s%s", w.addr, tasksPath), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("worker %s rejected task %s: %s", w.id, req.TaskID, string(msg))
	}
	var res taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("malformed response from worker %s: %w", w.id, err)
	}
	return &res, nil
}

// Stop releases the backend, optionally asking workers to shut down
func (b *backend) Stop() error {
	if !b.opts.ShutdownWorkers {
		return nil
	}
	for _, id := range b.order {
		w := b.workers[id]
		resp, err := b.client.Post(fmt.Sprintf("http://%s%s", w.addr, shutdownPath), "application/json", nil)
		if err != nil {
			logging.Logf(logging.WarnLevel, w.id, "unable to request shutdown: %v", err)
			continue
		}
		resp.Body.Close()
	}
	return nil
}

// workerError carries a failure reported by a worker, unwrapping to a typed
// error so retry policy can classify it
type workerError struct {
	msg  string
	kind error
}

func (e workerError) Error() string {
	return e.msg
}

func (e workerError) Unwrap() error {
	return e.kind
}

// reconstructError rebuilds a typed error from a worker's wire error kind
func reconstructError(res *taskResponse, task *weft.Task) error {
	switch res.ErrorKind {
	case errorKindResource:
		return workerError{msg: res.Error, kind: werrors.ResourceError{CPUs: task.Resources.CPUs, GPUs: task.Resources.GPUs}}
	case errorKindRowInvariant:
		return workerError{msg: res.Error, kind: werrors.RowInvariantError{Op: string(task.Kind)}}
	case errorKindUnknownUDF:
		return workerError{msg: res.Error, kind: werrors.UnknownUDFError{}}
	case errorKindConfig:
		return workerError{msg: res.Error, kind: werrors.ConfigError{Message: res.Error}}
	default:
		return fmt.Errorf("task %s failed on worker: %s", task.ID, res.Error)
	}
}
