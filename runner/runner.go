// Package runner is the public entrypoint for executing DataFrames. A process
// configures one execution Context, either local or cluster, and submits
// DataFrames to it for materialization.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-weft/weft"
	"github.com/go-weft/weft/cluster"
	werrors "github.com/go-weft/weft/errors"
	"github.com/go-weft/weft/internal/engine"
)

// Config selects and configures an execution backend
type Config struct {
	Backend              weft.BackendKind // local or cluster; defaults to local
	PoolSize             int              // local: max concurrently executing tasks; 0 means NumCPU, 1 means sequential
	GPUs                 int              // local: GPU slots to advertise
	WorkerAddrs          []string         // cluster: [REQUIRED] host:port of each worker
	RPCTimeout           time.Duration    // cluster: timeout for all RPC calls
	MaxInFlightPerWorker int              // cluster: cap on concurrent task submissions per worker
	ShutdownWorkers      bool             // cluster: iff true, Stop() asks workers to shut down
	MaxTaskAttempts      int              // attempts per task before the run aborts; 0 means 3
}

// Context executes DataFrames against one configured Backend
type Context struct {
	conf      *Config
	backend   weft.Backend
	mu        sync.Mutex
	lastStats *engine.RunStatistics
}

// CreateContext builds an execution Context from a Config
func CreateContext(conf *Config) (*Context, error) {
	if conf == nil {
		conf = &Config{}
	}
	kind := conf.Backend
	if kind == "" {
		kind = weft.LocalBackend
	}
	var backend weft.Backend
	var err error
	switch kind {
	case weft.LocalBackend:
		backend, err = engine.CreateLocalBackend(conf.PoolSize, conf.GPUs)
	case weft.ClusterBackend:
		backend, err = cluster.CreateBackend(&cluster.BackendOptions{
			WorkerAddrs:          conf.WorkerAddrs,
			RPCTimeout:           conf.RPCTimeout,
			MaxInFlightPerWorker: conf.MaxInFlightPerWorker,
			ShutdownWorkers:      conf.ShutdownWorkers,
		})
	default:
		return nil, werrors.ConfigError{Message: fmt.Sprintf("unknown backend kind %q", kind)}
	}
	if err != nil {
		return nil, err
	}
	return &Context{conf: conf, backend: backend}, nil
}

// Run materializes a DataFrame, returning its collected partitions.
// Run blocks until every task has completed or the run has aborted.
func (c *Context) Run(ctx context.Context, df *weft.DataFrame) (*weft.PartitionSet, error) {
	plan, err := df.Plan()
	if err != nil {
		return nil, err
	}
	stats := engine.CreateRunStatistics()
	result, err := engine.Run(ctx, plan, c.backend, &engine.RunConfig{MaxTaskAttempts: c.conf.MaxTaskAttempts}, stats)
	c.mu.Lock()
	c.lastStats = stats
	c.mu.Unlock()
	return result, err
}

// Show materializes at most n rows of a DataFrame and prints them as a table.
// The limit is applied within the plan, so trailing partitions are never
// loaded or processed.
func (c *Context) Show(ctx context.Context, df *weft.DataFrame, n int) error {
	result, err := c.Run(ctx, df.Limit(n))
	if err != nil {
		return err
	}
	fmt.Print(result.Snapshot(-1).String())
	return nil
}

// LastRunStatistics returns counters from this Context's most recent Run,
// or nil if it has not run anything yet
func (c *Context) LastRunStatistics() *engine.RunStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStats
}

// Stop releases the Context's backend
func (c *Context) Stop() error {
	return c.backend.Stop()
}

var (
	currentMu      sync.Mutex
	currentContext *Context
)

// Init installs the process-wide execution Context. It returns a ConfigError
// if a Context has already been installed, including implicitly by Current.
func Init(conf *Config) (*Context, error) {
	currentMu.Lock()
	defer currentMu.Unlock()
	if currentContext != nil {
		return nil, werrors.ConfigError{Message: "execution context already initialized"}
	}
	c, err := CreateContext(conf)
	if err != nil {
		return nil, err
	}
	currentContext = c
	return c, nil
}

// Current returns the process-wide execution Context, installing a default
// local Context if none has been configured
func Current() (*Context, error) {
	currentMu.Lock()
	defer currentMu.Unlock()
	if currentContext == nil {
		c, err := CreateContext(&Config{Backend: weft.LocalBackend})
		if err != nil {
			return nil, err
		}
		currentContext = c
	}
	return currentContext, nil
}
