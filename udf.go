package weft

import (
	"sync"

	"github.com/go-weft/weft/errors"
)

// UDF is a user-supplied function applied to one element of a Column. Returning
// an error marks the corresponding output element absent; it never fails the task.
type UDF func(v interface{}) (interface{}, error)

// ResourceRequest declares the CPU and GPU demand of a single Task
type ResourceRequest struct {
	CPUs int
	GPUs int
}

// DefaultResourceRequest returns the default Task demand of 1 CPU and 0 GPUs
func DefaultResourceRequest() ResourceRequest {
	return ResourceRequest{CPUs: 1, GPUs: 0}
}

// UDFRegistration binds a UDF to its declared return type and resource demand
type UDFRegistration struct {
	Name       string
	Fn         UDF
	ReturnType ColumnType
	Resources  ResourceRequest
}

var udfRegistry = struct {
	sync.RWMutex
	udfs map[string]*UDFRegistration
}{udfs: make(map[string]*UDFRegistration)}

// RegisterUDF registers a UDF under a process-global name. Cluster workers
// resolve UDFs by name, so every process in a cluster must register the same
// UDFs before starting nodes or submitting work. Zero-valued resources are
// replaced with the defaults (1 CPU, 0 GPUs).
func RegisterUDF(name string, fn UDF, returnType ColumnType, resources ResourceRequest) error {
	if fn == nil {
		return errors.ConfigError{Message: "cannot register a nil UDF"}
	}
	if resources.CPUs < 0 || resources.GPUs < 0 {
		return errors.ConfigError{Message: "UDF resource demands must be non-negative"}
	}
	if resources.CPUs == 0 {
		resources.CPUs = DefaultResourceRequest().CPUs
	}
	udfRegistry.Lock()
	defer udfRegistry.Unlock()
	if _, ok := udfRegistry.udfs[name]; ok {
		return errors.ConfigError{Message: "UDF " + name + " is already registered"}
	}
	udfRegistry.udfs[name] = &UDFRegistration{Name: name, Fn: fn, ReturnType: returnType, Resources: resources}
	return nil
}

// LookupUDF resolves a registered UDF by name
func LookupUDF(name string) (*UDFRegistration, error) {
	udfRegistry.RLock()
	defer udfRegistry.RUnlock()
	reg, ok := udfRegistry.udfs[name]
	if !ok {
		return nil, errors.UnknownUDFError{Name: name}
	}
	return reg, nil
}
