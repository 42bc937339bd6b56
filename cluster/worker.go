package cluster

import (
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/go-weft/weft"
	werrors "github.com/go-weft/weft/errors"
	"github.com/go-weft/weft/internal/codec"
	"github.com/go-weft/weft/internal/engine"
	"github.com/go-weft/weft/logging"
	uuid "github.com/gofrs/uuid"
)

type worker struct {
	id            string
	opts          *NodeOptions
	plan          *weft.Plan
	server        *http.Server
	listener      net.Listener
	lifecycleLock sync.Mutex
	tasksWg       sync.WaitGroup
}

// createWorker is a factory for Workers
func createWorker(opts *NodeOptions) (*worker, error) {
	ensureDefaultNodeOptionsValues(opts)
	// generate worker ID
	id, err := uuid.NewV4()
	if err != nil {
		log.Fatalf("failed to generate UUID: %v", err)
	}
	return &worker{id: id.String(), opts: opts}, nil
}

// ID returns the ID of this worker
func (w *worker) ID() string {
	return w.id
}

// Addr returns the address this worker's server is bound to
func (w *worker) Addr() string {
	w.lifecycleLock.Lock()
	defer w.lifecycleLock.Unlock()
	if w.listener == nil {
		return ""
	}
	return w.listener.Addr().String()
}

// Start binds the worker's server and begins accepting task submissions
func (w *worker) Start(df *weft.DataFrame) error {
	if df == nil {
		return fmt.Errorf("DataFrame cannot be nil")
	}
	// compile the plan once; every submitted task references it by index
	plan, err := df.Plan()
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", w.opts.connectionString())
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(resourcesPath, w.handleResources)
	mux.HandleFunc(tasksPath, w.handleTask)
	mux.HandleFunc(shutdownPath, w.handleShutdown)
	w.lifecycleLock.Lock()
	w.plan = plan
	w.listener = lis
	w.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  w.opts.RPCTimeout,
		WriteTimeout: w.opts.RPCTimeout,
	}
	server := w.server
	w.lifecycleLock.Unlock()
	go func() {
		if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
			logging.Logf(logging.ErrorLevel, w.id, "worker server terminated: %v", err)
		}
	}()
	logging.Logf(logging.InfoLevel, w.id, "worker serving on %s", lis.Addr().String())
	return nil
}

// GracefulStop shuts the worker down after in-flight tasks finish
func (w *worker) GracefulStop() error {
	w.tasksWg.Wait()
	return w.Stop()
}

// Stop shuts the worker down immediately
func (w *worker) Stop() error {
	w.lifecycleLock.Lock()
	defer w.lifecycleLock.Unlock()
	if w.server != nil {
		err := w.server.Close()
		w.server = nil
		w.listener = nil
		return err
	}
	return nil
}

func (w *worker) handleResources(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, &resourcesResponse{
		WorkerID: w.id,
		CPUs:     w.opts.CPUs,
		GPUs:     w.opts.GPUs,
	})
}

func (w *worker) handleShutdown(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
	// stop after the response is flushed
	go func() {
		w.tasksWg.Wait()
		if err := w.Stop(); err != nil {
			logging.Logf(logging.WarnLevel, w.id, "error during shutdown: %v", err)
		}
	}()
}

func (w *worker) handleTask(rw http.ResponseWriter, r *http.Request) {
	w.tasksWg.Add(1)
	defer w.tasksWg.Done()
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(rw, fmt.Sprintf("malformed task request: %v", err), http.StatusBadRequest)
		return
	}
	logs := createLogBuffer(w.id)
	inputs, err := decodeInputs(req.Inputs)
	if err != nil {
		writeJSON(rw, taskFailure(err, logs))
		return
	}
	task := &weft.Task{
		ID:         req.TaskID,
		Kind:       weft.OperationKind(req.Kind),
		OpIndex:    req.OpIndex,
		PartIndex:  req.PartIndex,
		NumOutputs: req.NumOutputs,
		Budget:     req.Budget,
		Inputs:     inputs,
		Attempt:    req.Attempt,
	}
	logs.logf(logging.DebugLevel, "executing %s task %s (attempt %d)", task.Kind, task.ID, task.Attempt)
	outputs, err := engine.RunTask(r.Context(), w.plan, task)
	if err != nil {
		logs.logf(logging.ErrorLevel, "task %s failed: %v", task.ID, err)
		writeJSON(rw, taskFailure(err, logs))
		return
	}
	envelopes := make([]partitionEnvelope, 0, len(outputs))
	for _, part := range outputs {
		env, err := encodePartition(part)
		if err != nil {
			writeJSON(rw, taskFailure(err, logs))
			return
		}
		envelopes = append(envelopes, env)
	}
	rows := 0
	for _, part := range outputs {
		rows += part.NumRows()
	}
	logs.logf(logging.DebugLevel, "task %s produced %d partition(s), %d row(s)", task.ID, len(outputs), rows)
	writeJSON(rw, &taskResponse{Outputs: envelopes, Logs: logs.messages()})
}

func taskFailure(err error, logs *logBuffer) *taskResponse {
	return &taskResponse{
		ErrorKind: classifyError(err),
		Error:     err.Error(),
		Logs:      logs.messages(),
	}
}

// classifyError maps a task error onto a wire error kind, so the coordinator
// can reconstruct a typed error and decide whether to retry
func classifyError(err error) string {
	var resourceErr werrors.ResourceError
	var rowErr werrors.RowInvariantError
	var udfErr werrors.UnknownUDFError
	var confErr werrors.ConfigError
	switch {
	case stderrors.As(err, &resourceErr):
		return errorKindResource
	case stderrors.As(err, &rowErr):
		return errorKindRowInvariant
	case stderrors.As(err, &udfErr):
		return errorKindUnknownUDF
	case stderrors.As(err, &confErr):
		return errorKindConfig
	default:
		return errorKindInternal
	}
}

// encodePartition wraps one Partition in a checksummed wire envelope
func encodePartition(part *weft.Partition) (partitionEnvelope, error) {
	data, err := codec.Encode(part)
	if err != nil {
		return partitionEnvelope{}, err
	}
	return partitionEnvelope{
		Index:    part.Index(),
		NumRows:  part.NumRows(),
		Checksum: hex.EncodeToString(checksumBytes(data)),
		Data:     data,
	}, nil
}

// decodePartition verifies and unwraps one wire envelope
func decodePartition(env partitionEnvelope) (*weft.Partition, error) {
	sum := hex.EncodeToString(checksumBytes(env.Data))
	if sum != env.Checksum {
		return nil, fmt.Errorf("partition %d failed checksum verification: got %s, want %s", env.Index, sum, env.Checksum)
	}
	part, err := codec.Decode(env.Data)
	if err != nil {
		return nil, err
	}
	if part.NumRows() != env.NumRows {
		return nil, fmt.Errorf("partition %d declares %d rows but contains %d", env.Index, env.NumRows, part.NumRows())
	}
	return part, nil
}

func decodeInputs(envs []partitionEnvelope) ([]*weft.Partition, error) {
	parts := make([]*weft.Partition, 0, len(envs))
	for _, env := range envs {
		part, err := decodePartition(env)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func checksumBytes(data []byte) []byte {
	sum := codec.Checksum(data)
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (8 * (7 - i)))
	}
	return buf
}

func writeJSON(rw http.ResponseWriter, body interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		log.Printf("unable to write response: %v", err)
	}
}

// logBuffer accumulates log lines produced while executing a task, printing
// them locally and retaining them for forwarding to the coordinator
type logBuffer struct {
	source string
	mu     sync.Mutex
	msgs   []logMessage
}

func createLogBuffer(source string) *logBuffer {
	return &logBuffer{source: source}
}

func (b *logBuffer) logf(level int, format string, args ...interface{}) {
	logging.Logf(level, b.source, format, args...)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, logMessage{
		Level:   level,
		Source:  b.source,
		Message: fmt.Sprintf(format, args...),
	})
}

func (b *logBuffer) messages() []logMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]logMessage, len(b.msgs))
	copy(out, b.msgs)
	return out
}
