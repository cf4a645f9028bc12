// Package context selects the BlockchainContext backend the engine runs on.
// Backends register a constructor under a ContextType from their init
// function; importing context/memory or context/db makes them available.
package context

import (
	"fmt"
	"sort"
	"sync"

	"github.com/govm-net/helloworld/types"
)

// ContextType represents the type of blockchain context
type ContextType string

const (
	// MemoryContextType keeps everything in process memory
	MemoryContextType ContextType = "memory"
	// DBContextType persists to sqlite through gorm
	DBContextType ContextType = "db"
)

// ContextConstructor creates a new BlockchainContext from backend specific params
type ContextConstructor func(params map[string]any) (types.BlockchainContext, error)

// Registry manages the available BlockchainContext implementations
type Registry interface {
	Register(ct ContextType, constructor ContextConstructor) error
	SetDefault(ct ContextType) error
	Get(ct ContextType, params map[string]any) (types.BlockchainContext, error)
	GetDefault(params map[string]any) (types.BlockchainContext, error)
	DefaultContextType() ContextType
	ListRegistered() []ContextType
}

type registry struct {
	mu        sync.RWMutex
	contexts  map[ContextType]ContextConstructor
	defaultCt ContextType
}

var defaultRegistry Registry = NewRegistry()

// NewRegistry returns an empty registry whose default is DBContextType
func NewRegistry() Registry {
	return &registry{
		contexts: make(map[ContextType]ContextConstructor),
	}
}

// GetRegistry returns the global Registry instance
func GetRegistry() Registry {
	return defaultRegistry
}

func (r *registry) Register(ct ContextType, constructor ContextConstructor) error {
	if constructor == nil {
		return fmt.Errorf("nil constructor for context type %s", ct)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contexts[ct]; exists {
		return fmt.Errorf("context type %s already registered", ct)
	}
	r.contexts[ct] = constructor
	return nil
}

func (r *registry) SetDefault(ct ContextType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contexts[ct]; !exists {
		return fmt.Errorf("context type %s not registered", ct)
	}
	r.defaultCt = ct
	return nil
}

func (r *registry) Get(ct ContextType, params map[string]any) (types.BlockchainContext, error) {
	r.mu.RLock()
	constructor, exists := r.contexts[ct]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("context type %s not found", ct)
	}
	ctx, err := constructor(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s context: %w", ct, err)
	}
	return ctx, nil
}

func (r *registry) GetDefault(params map[string]any) (types.BlockchainContext, error) {
	return r.Get(r.DefaultContextType(), params)
}

func (r *registry) DefaultContextType() ContextType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultCt == "" {
		return DBContextType
	}
	return r.defaultCt
}

func (r *registry) ListRegistered() []ContextType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cts := make([]ContextType, 0, len(r.contexts))
	for ct := range r.contexts {
		cts = append(cts, ct)
	}
	sort.Slice(cts, func(i, j int) bool { return cts[i] < cts[j] })
	return cts
}

// Register adds a constructor to the global registry
func Register(ct ContextType, constructor ContextConstructor) error {
	return GetRegistry().Register(ct, constructor)
}

// SetDefault sets the default context type of the global registry
func SetDefault(ct ContextType) error {
	return GetRegistry().SetDefault(ct)
}

// Get creates a context of type ct; an empty ct selects the default
func Get(ct ContextType, params map[string]any) (types.BlockchainContext, error) {
	if ct == "" {
		return GetRegistry().GetDefault(params)
	}
	return GetRegistry().Get(ct, params)
}

// ListRegistered returns the registered context types of the global registry
func ListRegistered() []ContextType {
	return GetRegistry().ListRegistered()
}
