package cluster

// Request and response bodies for the worker control plane. Partition payloads
// travel inside JSON envelopes as lz4-compressed binary frames with xxhash64
// checksums, so the JSON layer never inspects row data.

const (
	resourcesPath = "/v1/resources"
	tasksPath     = "/v1/tasks"
	shutdownPath  = "/v1/shutdown"
)

// error kinds used to reconstruct typed errors on the coordinator side
const (
	errorKindResource     = "resource"
	errorKindRowInvariant = "row_invariant"
	errorKindUnknownUDF   = "unknown_udf"
	errorKindConfig       = "config"
	errorKindInternal     = "internal"
)

// partitionEnvelope carries one encoded Partition frame across the wire
type partitionEnvelope struct {
	Index    int    `json:"index"`
	NumRows  int    `json:"num_rows"`
	Checksum string `json:"checksum"` // xxhash64 of Data, hex-encoded
	Data     []byte `json:"data"`
}

// taskRequest asks a worker to execute one Task against its resident Plan
type taskRequest struct {
	TaskID     string              `json:"task_id"`
	Kind       string              `json:"kind"`
	OpIndex    int                 `json:"op_index"`
	PartIndex  int                 `json:"part_index"`
	NumOutputs int                 `json:"num_outputs"`
	Budget     int                 `json:"budget"`
	Attempt    int                 `json:"attempt"`
	Inputs     []partitionEnvelope `json:"inputs"`
}

// logMessage is a log line produced on a worker while executing a task,
// forwarded to the coordinator for replay
type logMessage struct {
	Level   int    `json:"level"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// taskResponse reports the outcome of one task execution
type taskResponse struct {
	Outputs   []partitionEnvelope `json:"outputs,omitempty"`
	Logs      []logMessage        `json:"logs,omitempty"`
	ErrorKind string              `json:"error_kind,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// resourcesResponse advertises a worker's identity and execution resources
type resourcesResponse struct {
	WorkerID string `json:"worker_id"`
	CPUs     int    `json:"cpus"`
	GPUs     int    `json:"gpus"`
}
