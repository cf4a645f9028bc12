// Package native keeps the contracts that are compiled into the host binary.
// Contract packages register themselves from init, the engine looks them up
// by contract name when a native module is deployed or called.
package native

import (
	"fmt"
	"sort"
	"sync"

	"github.com/govm-net/helloworld/core"
)

// Registry maps contract names to native contract descriptors
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*core.Contract
}

var defaultRegistry = NewRegistry()

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[string]*core.Contract)}
}

// Register adds a contract. Names are unique.
func (r *Registry) Register(c *core.Contract) error {
	if c == nil {
		return fmt.Errorf("nil contract: %w", core.ErrInvalidArgument)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contracts[c.Name]; exists {
		return fmt.Errorf("contract %s already registered", c.Name)
	}
	r.contracts[c.Name] = c
	return nil
}

// Lookup returns the contract registered under name
func (r *Registry) Lookup(name string) (*core.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[name]
	if !ok {
		return nil, fmt.Errorf("native contract %s: %w", name, core.ErrContractNotFound)
	}
	return c, nil
}

// Names returns the registered contract names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the process wide registry
func Default() *Registry {
	return defaultRegistry
}

// Register adds c to the default registry
func Register(c *core.Contract) error {
	return defaultRegistry.Register(c)
}

// MustRegister is Register for use from init functions
func MustRegister(c *core.Contract) {
	if err := Register(c); err != nil {
		panic(err)
	}
}

// Lookup finds a contract in the default registry
func Lookup(name string) (*core.Contract, error) {
	return defaultRegistry.Lookup(name)
}
