// Package cluster provides the worker process for distributed execution, along
// with the coordinator-side Backend which submits tasks to a pool of workers
// over HTTP. Workers are started with the same DataFrame as the coordinator,
// so registered UDFs resolve by name on both sides.
package cluster

import (
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/go-weft/weft"
)

// Node is a member of a weft cluster. Nodes present several methods to
// control their lifecycle.
type Node interface {
	// ID returns this Node's cluster-unique identifier
	ID() string
	// Addr returns the host:port this Node is reachable at, once started
	Addr() string
	// Start binds the Node's server and begins accepting task submissions.
	// The supplied DataFrame must be identical to the coordinator's.
	Start(df *weft.DataFrame) error
	// GracefulStop shuts the Node down after in-flight tasks finish
	GracefulStop() error
	// Stop shuts the Node down immediately
	Stop() error
}

// NodeOptions are options for a worker Node
type NodeOptions struct {
	Port       int           // port for this Node to bind to
	Host       string        // hostname for this Node to bind to
	CPUs       int           // number of CPU execution slots this Node advertises
	GPUs       int           // number of GPU execution slots this Node advertises
	RPCTimeout time.Duration // read/write timeout for task submissions
}

// CloneNodeOptions makes a copy of a NodeOptions
func CloneNodeOptions(opts *NodeOptions) *NodeOptions {
	return &NodeOptions{
		Port:       opts.Port,
		Host:       opts.Host,
		CPUs:       opts.CPUs,
		GPUs:       opts.GPUs,
		RPCTimeout: opts.RPCTimeout,
	}
}

func ensureDefaultNodeOptionsValues(opts *NodeOptions) {
	// crash if certain required options are not supplied
	if opts.CPUs < 0 || opts.GPUs < 0 {
		log.Fatal("NodeOptions.CPUs and NodeOptions.GPUs must not be negative")
	}
	// default certain options if not supplied
	if len(opts.Host) == 0 {
		opts.Host = "0.0.0.0"
	}
	if opts.CPUs == 0 {
		opts.CPUs = runtime.NumCPU()
	}
	if opts.RPCTimeout == 0 {
		opts.RPCTimeout = time.Duration(30) * time.Second
	}
}

// connectionString returns the bind address for this node
func (o *NodeOptions) connectionString() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// CreateWorker creates a worker Node
func CreateWorker(opts *NodeOptions) (Node, error) {
	return createWorker(opts)
}
