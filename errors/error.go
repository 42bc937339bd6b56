package errors

import (
	"fmt"
)

// ConfigError occurs when an execution Context is misconfigured, or reconfigured after first use
type ConfigError struct{ Message string }

// Error returns a textual representation of this ConfigError
func (e ConfigError) Error() string {
	return fmt.Sprintf("Invalid runner configuration: %s", e.Message)
}

// ResourceError occurs when a Task's declared resource requirement exceeds the
// total capacity of every worker known to the Backend. It is permanent and never retried.
type ResourceError struct {
	CPUs int
	GPUs int
}

// Error returns a textual representation of this ResourceError
func (e ResourceError) Error() string {
	return fmt.Sprintf("Task requirement of %d CPUs and %d GPUs exceeds the total capacity of every worker", e.CPUs, e.GPUs)
}

// TaskError occurs when a Task fails on a worker. TaskErrors are retried up to
// a configured bound before aborting the task graph.
type TaskError struct {
	TaskID   string
	WorkerID string
	Attempt  int
	Cause    error
}

// Error returns a textual representation of this TaskError
func (e TaskError) Error() string {
	return fmt.Sprintf("Task %s failed on worker %s (attempt %d): %v", e.TaskID, e.WorkerID, e.Attempt, e.Cause)
}

// Unwrap returns the underlying cause of this TaskError
func (e TaskError) Unwrap() error {
	return e.Cause
}

// RowInvariantError occurs when an Operation produces a row count inconsistent
// with its contract. It indicates an engine bug and is always fatal.
type RowInvariantError struct {
	Op       string
	Expected int
	Actual   int
}

// Error returns a textual representation of this RowInvariantError
func (e RowInvariantError) Error() string {
	return fmt.Sprintf("Operation %s produced %d rows where %d were expected", e.Op, e.Actual, e.Expected)
}

// UnknownUDFError occurs when a UDF name does not correspond to a registered UDF
type UnknownUDFError struct{ Name string }

// Error returns a textual representation of this UnknownUDFError
func (e UnknownUDFError) Error() string {
	return fmt.Sprintf("No UDF registered under the name %s", e.Name)
}

// IncompatibleColumnError occurs when a Column's length does not match its Partition
type IncompatibleColumnError struct{}

// Error returns a textual representation of this IncompatibleColumnError
func (e IncompatibleColumnError) Error() string {
	return "Column length is not compatible with Partition"
}

// NoMorePartitionsError occurs when there are no more partitions in an iterator
type NoMorePartitionsError struct{}

// Error returns a textual representation of this NoMorePartitionsError
func (e NoMorePartitionsError) Error() string {
	return "No more partitions"
}
