package engine

import (
	"sync"

	"github.com/go-weft/weft"
)

// RunStatistics tracks task counts and row throughput for a single run
type RunStatistics struct {
	mu         sync.Mutex
	dispatched map[weft.OperationKind]int
	completed  map[weft.OperationKind]int
	retries    int
	rowsOut    int
}

// CreateRunStatistics is a factory for RunStatistics
func CreateRunStatistics() *RunStatistics {
	return &RunStatistics{
		dispatched: make(map[weft.OperationKind]int),
		completed:  make(map[weft.OperationKind]int),
	}
}

// TaskDispatched records that a task of the given kind was handed to the Backend
func (s *RunStatistics) TaskDispatched(kind weft.OperationKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched[kind]++
}

// TaskCompleted records a successful task and the rows it produced
func (s *RunStatistics) TaskCompleted(kind weft.OperationKind, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[kind]++
	s.rowsOut += rows
}

// TaskRetried records a failed task attempt that will be rescheduled
func (s *RunStatistics) TaskRetried() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
}

// NumDispatched returns how many tasks of a kind were handed to the Backend
func (s *RunStatistics) NumDispatched(kind weft.OperationKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatched[kind]
}

// NumCompleted returns how many tasks of a kind completed successfully
func (s *RunStatistics) NumCompleted(kind weft.OperationKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[kind]
}

// NumRetries returns how many task attempts were rescheduled after failure
func (s *RunStatistics) NumRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// RowsProduced returns the total rows produced by completed tasks
func (s *RunStatistics) RowsProduced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowsOut
}
